package handlers

import (
	"net/http"

	"github.com/agentcontrol/hub/internal/api/middleware"
	"github.com/agentcontrol/hub/pkg/models"
)

// ── Escalations ──────────────────────────────────────────────

func (h *Handlers) ListEscalations(w http.ResponseWriter, r *http.Request) {
	status := models.EscalationStatus(r.URL.Query().Get("status"))
	list, err := h.Escalations.List(r.Context(), status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.Escalations.Views(list))
}

func (h *Handlers) CreateEscalation(w http.ResponseWriter, r *http.Request) {
	var in models.EscalationInput
	if err := decode(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	e, err := h.Escalations.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.Escalations.View(*e))
}

func (h *Handlers) GetEscalation(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	e, err := h.Escalations.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.Escalations.View(*e))
}

// UpdateEscalation applies an operator decision. The operator defaults to
// the X-Operator-Id header when the body does not name one.
func (h *Handlers) UpdateEscalation(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var patch models.EscalationPatch
	if err := decode(r, &patch); err != nil {
		respondError(w, r, err)
		return
	}
	if patch.OperatorID == nil {
		if op := middleware.GetOperator(r.Context()); op != "" {
			patch.OperatorID = &op
		}
	}
	e, err := h.Escalations.Update(r.Context(), id, patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.Escalations.View(*e))
}

// ── Chat ─────────────────────────────────────────────────────

type postMessageRequest struct {
	Sender  models.Sender `json:"sender"`
	Message string        `json:"message"`
}

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	msgs, err := h.Chat.List(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	respondJSON(w, http.StatusOK, msgs)
}

func (h *Handlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req postMessageRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	msg, err := h.Chat.Post(r.Context(), id, req.Sender, req.Message)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}
