// Package sessions manages the lifecycle of multi-agent work sessions.
// A session starts active and ends completed or terminated; actions may only
// be recorded into an active session.
package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agentcontrol/hub/internal/apperr"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/internal/validate"
	"github.com/agentcontrol/hub/pkg/models"
)

// Service starts, ends and looks up agent sessions.
type Service struct {
	store store.AgentSessionStore
	now   func() time.Time
}

// NewService creates a session service.
func NewService(s store.AgentSessionStore) *Service {
	return &Service{store: s, now: time.Now}
}

// WithClock replaces the service's time source. Used by tests and seeding.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Start creates an active session. A sessionId is generated when absent.
func (s *Service) Start(ctx context.Context, in models.AgentSessionInput) (*models.AgentSession, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	id := in.SessionID
	if id == "" {
		id = "session-" + uuid.NewString()
	}
	sess := &models.AgentSession{
		SessionID:      id,
		OrchestratorID: in.OrchestratorID,
		Status:         models.SessionActive,
		StartedAt:      s.now().UTC(),
		Metadata:       models.CloneMap(in.Metadata),
	}
	if err := s.store.CreateAgentSession(ctx, sess); err != nil {
		return nil, err
	}
	log.Info().Str("session_id", id).Str("orchestrator_id", in.OrchestratorID).Msg("Agent session started")
	return sess, nil
}

// Get returns a session by sessionId.
func (s *Service) Get(ctx context.Context, sessionID string) (*models.AgentSession, error) {
	return s.store.GetAgentSession(ctx, sessionID)
}

// List returns sessions, most recently started first.
func (s *Service) List(ctx context.Context) ([]models.AgentSession, error) {
	return s.store.ListAgentSessions(ctx)
}

// Complete ends a session normally.
func (s *Service) Complete(ctx context.Context, sessionID string) (*models.AgentSession, error) {
	return s.end(ctx, sessionID, models.SessionCompleted)
}

// Terminate forcibly stops a session.
func (s *Service) Terminate(ctx context.Context, sessionID string) (*models.AgentSession, error) {
	return s.end(ctx, sessionID, models.SessionTerminated)
}

func (s *Service) end(ctx context.Context, sessionID string, status models.SessionStatus) (*models.AgentSession, error) {
	changed := false
	sess, err := s.store.UpdateAgentSession(ctx, sessionID, func(cur *models.AgentSession) error {
		switch cur.Status {
		case models.SessionActive:
			at := s.now().UTC()
			cur.Status = status
			cur.CompletedAt = &at
			changed = true
		case status:
			// already there
		default:
			return apperr.Validationf("session %s is already %s", sessionID, cur.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		log.Info().Str("session_id", sessionID).Str("status", string(status)).Msg("Agent session ended")
	}
	return sess, nil
}

// RequireActive returns a validation error unless sessionID names an
// existing, active session.
func (s *Service) RequireActive(ctx context.Context, sessionID string) error {
	sess, err := s.store.GetAgentSession(ctx, sessionID)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return apperr.Validationf("unknown session %s", sessionID)
		}
		return err
	}
	if sess.Status != models.SessionActive {
		return apperr.Validationf("session %s is %s", sessionID, sess.Status)
	}
	return nil
}
