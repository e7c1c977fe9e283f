// Package ingest records agent actions: validate, score, persist, then run the
// post-commit hooks (threat detection) before returning.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agentcontrol/hub/internal/apperr"
	"github.com/agentcontrol/hub/internal/metrics"
	"github.com/agentcontrol/hub/internal/risk"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/internal/validate"
	"github.com/agentcontrol/hub/pkg/models"
)

var tracer = otel.Tracer("hub/ingest")

// Hook runs after an action is committed. flagged reports whether the hook
// found something that should mark the action as flagged.
type Hook interface {
	Name() string
	AfterRecord(ctx context.Context, action models.AgentAction) (flagged bool, err error)
}

// SessionGuard rejects actions for sessions that are missing or ended.
type SessionGuard interface {
	RequireActive(ctx context.Context, sessionID string) error
}

// Recorder is the action ingestion pipeline.
type Recorder struct {
	store    store.AgentActionStore
	sessions SessionGuard
	scorer   risk.Scorer
	hooks    []Hook
	now      func() time.Time
}

// NewRecorder creates a recorder. sessions may be nil to skip the session check.
func NewRecorder(s store.AgentActionStore, sessions SessionGuard, scorer risk.Scorer, hooks ...Hook) *Recorder {
	return &Recorder{store: s, sessions: sessions, scorer: scorer, hooks: hooks, now: time.Now}
}

// WithClock replaces the recorder's time source. Used by tests and seeding.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record stores an action and runs every hook synchronously. By the time it
// returns, any threats and escalations caused by the action exist, and the
// returned action carries the back-filled flagged bit.
func (r *Recorder) Record(ctx context.Context, in models.AgentActionInput) (*models.AgentAction, error) {
	ctx, span := tracer.Start(ctx, "ingest.Record")
	defer span.End()

	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if r.sessions != nil {
		if err := r.sessions.RequireActive(ctx, in.SessionID); err != nil {
			return nil, err
		}
	}

	score := r.scorer.Score(in)
	action := &models.AgentAction{
		SessionID:   in.SessionID,
		AgentID:     in.AgentID,
		ActionType:  in.ActionType,
		TargetAgent: in.TargetAgent,
		Payload:     models.CloneMap(in.Payload),
		Timestamp:   r.now().UTC(),
		RiskScore:   score,
	}
	if err := r.store.CreateAgentAction(ctx, action); err != nil {
		return nil, apperr.Wrap(err, "create agent action")
	}
	span.SetAttributes(
		attribute.Int64("action.id", action.ID),
		attribute.String("action.type", string(action.ActionType)),
		attribute.Int("action.risk_score", score),
	)
	metrics.ActionsRecorded.WithLabelValues(string(action.ActionType)).Inc()
	metrics.ActionRiskScore.Observe(float64(score))

	flagged := false
	for _, h := range r.hooks {
		hit, err := runHook(ctx, h, *action)
		if err != nil {
			log.Error().Err(err).Str("hook", h.Name()).Int64("action_id", action.ID).Msg("Ingest hook failed")
		}
		flagged = flagged || hit
	}

	if flagged {
		updated, err := r.store.UpdateAgentAction(ctx, action.ID, func(a *models.AgentAction) error {
			a.Flagged = true
			return nil
		})
		if err != nil {
			log.Error().Err(err).Int64("action_id", action.ID).Msg("Failed to flag action")
		} else {
			action = updated
		}
	}

	log.Debug().
		Int64("action_id", action.ID).
		Str("session_id", action.SessionID).
		Str("agent_id", action.AgentID).
		Str("type", string(action.ActionType)).
		Int("risk_score", action.RiskScore).
		Bool("flagged", action.Flagged).
		Msg("Agent action recorded")
	return action, nil
}

func runHook(ctx context.Context, h Hook, a models.AgentAction) (flagged bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			flagged, err = false, fmt.Errorf("hook %s panicked: %v", h.Name(), p)
		}
	}()
	return h.AfterRecord(ctx, a)
}

// List returns actions newest first.
func (r *Recorder) List(ctx context.Context, filter store.ActionFilter) ([]models.AgentAction, error) {
	return r.store.ListAgentActions(ctx, filter)
}
