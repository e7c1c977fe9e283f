package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/pkg/models"
)

// ── Agent sessions ───────────────────────────────────────────

func (h *Handlers) ListAgentSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Sessions.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if list == nil {
		list = []models.AgentSession{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) StartAgentSession(w http.ResponseWriter, r *http.Request) {
	var in models.AgentSessionInput
	if err := decode(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	sess, err := h.Sessions.Start(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (h *Handlers) GetAgentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.Get(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handlers) CompleteAgentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.Complete(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handlers) TerminateAgentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.Terminate(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// ── Agent actions ────────────────────────────────────────────

func (h *Handlers) ListAgentActions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Actions.List(r.Context(), store.ActionFilter{SessionID: r.URL.Query().Get("sessionId")})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if list == nil {
		list = []models.AgentAction{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) RecordAgentAction(w http.ResponseWriter, r *http.Request) {
	var in models.AgentActionInput
	if err := decode(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	action, err := h.Actions.Record(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, action)
}
