// Package store provides the storage interface and implementations for the hub.
// The in-memory store is the default (optionally snapshotted to disk); the
// PostgreSQL store is used when HUB_STORE=postgres.
package store

import (
	"context"
	"time"

	"github.com/agentcontrol/hub/pkg/models"
)

// Store is the Record Store. Every service depends on this interface, making
// it easy to swap between in-memory (tests, local dev) and PostgreSQL.
//
// Create* methods assign the record's sequential ID in place. Update* methods
// are atomic read-modify-write: fn receives a private copy of the current
// record and the result is committed only when fn returns nil. Readers always
// receive copies.
type Store interface {
	UserStore
	EscalationStore
	ChatStore
	AgentSessionStore
	AgentActionStore
	ThreatStore
	JudgeStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate runs database migrations.
	Migrate(ctx context.Context) error
}

// ── User Store ──────────────────────────────────────────────

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// ── Escalation Store ────────────────────────────────────────

type EscalationStore interface {
	CreateEscalation(ctx context.Context, esc *models.Escalation) error
	GetEscalation(ctx context.Context, id int64) (*models.Escalation, error)
	// ListEscalations returns escalations newest first.
	ListEscalations(ctx context.Context, filter EscalationFilter) ([]models.Escalation, error)
	UpdateEscalation(ctx context.Context, id int64, fn func(*models.Escalation) error) (*models.Escalation, error)
}

// ── Chat Store ──────────────────────────────────────────────

type ChatStore interface {
	CreateChatMessage(ctx context.Context, msg *models.ChatMessage) error
	// ListChatMessages returns an escalation's messages oldest first, ties in insertion order.
	ListChatMessages(ctx context.Context, escalationID int64) ([]models.ChatMessage, error)
}

// ── Agent Session Store ─────────────────────────────────────

type AgentSessionStore interface {
	// CreateAgentSession returns *ErrConflict when the sessionId is taken.
	CreateAgentSession(ctx context.Context, session *models.AgentSession) error
	GetAgentSession(ctx context.Context, sessionID string) (*models.AgentSession, error)
	ListAgentSessions(ctx context.Context) ([]models.AgentSession, error)
	UpdateAgentSession(ctx context.Context, sessionID string, fn func(*models.AgentSession) error) (*models.AgentSession, error)
}

// ── Agent Action Store ──────────────────────────────────────

type AgentActionStore interface {
	CreateAgentAction(ctx context.Context, action *models.AgentAction) error
	GetAgentAction(ctx context.Context, id int64) (*models.AgentAction, error)
	// ListAgentActions returns actions newest first.
	ListAgentActions(ctx context.Context, filter ActionFilter) ([]models.AgentAction, error)
	UpdateAgentAction(ctx context.Context, id int64, fn func(*models.AgentAction) error) (*models.AgentAction, error)
}

// ── Threat Store ────────────────────────────────────────────

type ThreatStore interface {
	CreateThreat(ctx context.Context, threat *models.ThreatDetection) error
	GetThreat(ctx context.Context, id int64) (*models.ThreatDetection, error)
	// ListThreats returns threats newest first.
	ListThreats(ctx context.Context, filter ThreatFilter) ([]models.ThreatDetection, error)
	UpdateThreat(ctx context.Context, id int64, fn func(*models.ThreatDetection) error) (*models.ThreatDetection, error)
}

// ── Judge Store ─────────────────────────────────────────────

type JudgeStore interface {
	CreateJudgeEvaluation(ctx context.Context, eval *models.JudgeEvaluation) error
	// ListJudgeEvaluations returns evaluations newest first. Empty sessionID lists all.
	ListJudgeEvaluations(ctx context.Context, sessionID string) ([]models.JudgeEvaluation, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ErrConflict is returned when a unique key is already taken.
type ErrConflict struct {
	Entity string
	Key    string
}

func (e *ErrConflict) Error() string {
	return e.Entity + " already exists: " + e.Key
}

// ── Filters ─────────────────────────────────────────────────

// EscalationFilter narrows ListEscalations. Zero value lists everything.
type EscalationFilter struct {
	Status models.EscalationStatus
}

// ActionFilter narrows ListAgentActions. Zero value lists everything.
type ActionFilter struct {
	SessionID string
	// AgentIDs matches actions whose agentId is any of the given ids.
	AgentIDs []string
	// Since keeps actions with timestamp >= Since.
	Since *time.Time
	Limit int
}

// ThreatFilter narrows ListThreats. Zero value lists everything.
type ThreatFilter struct {
	SessionID   string
	Unmitigated bool
}

func (f ActionFilter) match(a *models.AgentAction) bool {
	if f.SessionID != "" && a.SessionID != f.SessionID {
		return false
	}
	if f.Since != nil && a.Timestamp.Before(*f.Since) {
		return false
	}
	if len(f.AgentIDs) > 0 {
		for _, id := range f.AgentIDs {
			if a.AgentID == id {
				return true
			}
		}
		return false
	}
	return true
}
