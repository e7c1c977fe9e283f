// Package handlers implements the HTTP handlers for the hub's REST API and
// WebSocket observer endpoint.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/agentcontrol/hub/internal/apperr"
	"github.com/agentcontrol/hub/internal/chat"
	"github.com/agentcontrol/hub/internal/escalation"
	"github.com/agentcontrol/hub/internal/fanout"
	"github.com/agentcontrol/hub/internal/governance"
	"github.com/agentcontrol/hub/internal/ingest"
	"github.com/agentcontrol/hub/internal/judge"
	"github.com/agentcontrol/hub/internal/sessions"
	"github.com/agentcontrol/hub/internal/threat"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Escalations *escalation.Manager
	Chat        *chat.Service
	Sessions    *sessions.Service
	Actions     *ingest.Recorder
	Threats     *threat.Service
	Judge       *judge.Service
	Governance  *governance.Aggregator
	Hub         *fanout.Hub
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes {"error": kind, "message": text}. Internal failures are
// logged with their cause and reported with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Validation:
		status = http.StatusBadRequest
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
	}
	respondJSON(w, status, map[string]string{
		"error":   kind.String(),
		"message": apperr.Message(err),
	})
}

// NotFound answers requests that match no route.
func NotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, apperr.NotFoundf("no route for %s %s", r.Method, r.URL.Path))
}

// decode reads a JSON body into v. Malformed bodies are validation errors.
func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validationf("invalid request body: %v", err)
	}
	return nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validationf("invalid %s %q", name, raw)
	}
	return id, nil
}
