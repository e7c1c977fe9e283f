package handlers

import (
	"net/http"
	"strconv"

	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/pkg/models"
)

// ── Threat detections ────────────────────────────────────────

func (h *Handlers) ListThreats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	unmitigated, _ := strconv.ParseBool(q.Get("unmitigated"))
	list, err := h.Threats.List(r.Context(), store.ThreatFilter{
		SessionID:   q.Get("sessionId"),
		Unmitigated: unmitigated,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if list == nil {
		list = []models.ThreatDetection{}
	}
	respondJSON(w, http.StatusOK, list)
}

// ReportThreat stores a threat raised outside the built-in detector, such
// as by a judge model. Critical reports auto-escalate like detected ones.
func (h *Handlers) ReportThreat(w http.ResponseWriter, r *http.Request) {
	var in models.ThreatDetectionInput
	if err := decode(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	t, err := h.Threats.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

func (h *Handlers) MitigateThreat(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	t, err := h.Threats.Mitigate(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// ── Judge evaluations ────────────────────────────────────────

func (h *Handlers) ListJudgeEvaluations(w http.ResponseWriter, r *http.Request) {
	list, err := h.Judge.List(r.Context(), r.URL.Query().Get("sessionId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if list == nil {
		list = []models.JudgeEvaluation{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) RecordJudgeEvaluation(w http.ResponseWriter, r *http.Request) {
	var in models.JudgeEvaluationInput
	if err := decode(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	eval, err := h.Judge.Record(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, eval)
}

// ── Governance ───────────────────────────────────────────────

func (h *Handlers) GovernanceDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Governance.Dashboard(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}
