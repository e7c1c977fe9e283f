// Package escalation owns the escalation state machine: creation, operator
// decisions, and automatic promotion of critical threats.
//
// Status moves pending → {approved, denied, escalated} and the three targets
// are terminal. resolvedAt is stamped exactly once, on the transition away
// from pending; re-applying the same terminal status leaves it untouched.
// Every committed change is published to the fanout hub after the store call
// returns, and changes to one escalation are published in commit order.
package escalation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agentcontrol/hub/internal/apperr"
	"github.com/agentcontrol/hub/internal/fanout"
	"github.com/agentcontrol/hub/internal/metrics"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/internal/validate"
	"github.com/agentcontrol/hub/pkg/models"
)

var tracer = otel.Tracer("hub/escalation")

// Origins label where an escalation came from in metrics and logs.
const (
	OriginAPI    = "api"
	OriginThreat = "threat"
	OriginJudge  = "judge"
)

const (
	// ThreatSLAMinutes is the SLA given to escalations raised from critical threats.
	ThreatSLAMinutes = 15
	// ThreatAgentType tags escalations raised from critical threats.
	ThreatAgentType = "Threat Detection System"
)

// Manager creates and updates escalations.
type Manager struct {
	store store.EscalationStore
	pub   fanout.Publisher
	now   func() time.Time
	locks *keyedMutex
}

// NewManager creates a manager that persists to s and publishes to pub.
func NewManager(s store.EscalationStore, pub fanout.Publisher) *Manager {
	return &Manager{
		store: s,
		pub:   pub,
		now:   time.Now,
		locks: newKeyedMutex(),
	}
}

// WithClock replaces the manager's time source. Used by tests and seeding.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time { return m.now() }

// Create stores a new escalation and publishes new_escalation.
func (m *Manager) Create(ctx context.Context, in models.EscalationInput) (*models.Escalation, error) {
	return m.CreateWithOrigin(ctx, in, OriginAPI)
}

// CreateWithOrigin is Create with an explicit origin label.
func (m *Manager) CreateWithOrigin(ctx context.Context, in models.EscalationInput, origin string) (*models.Escalation, error) {
	ctx, span := tracer.Start(ctx, "escalation.Create")
	defer span.End()

	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	e := &models.Escalation{
		AgentID:          in.AgentID,
		Title:            in.Title,
		AgentType:        in.AgentType,
		RiskLevel:        in.RiskLevel,
		EscalationReason: in.EscalationReason,
		Question:         in.Question,
		Context:          models.CloneMap(in.Context),
		SLAMinutes:       in.SLAMinutes,
		CreatedAt:        now,
		Status:           in.Status,
		OperatorID:       in.OperatorID,
		Response:         in.Response,
	}
	if e.Status == "" {
		e.Status = models.EscalationPending
	}
	if e.Status != models.EscalationPending {
		resolved := now
		e.ResolvedAt = &resolved
	}

	if err := m.store.CreateEscalation(ctx, e); err != nil {
		return nil, apperr.Wrap(err, "create escalation")
	}
	span.SetAttributes(attribute.Int64("escalation.id", e.ID), attribute.String("escalation.origin", origin))
	metrics.EscalationsCreated.WithLabelValues(origin).Inc()

	log.Info().
		Int64("escalation_id", e.ID).
		Str("agent_id", e.AgentID).
		Str("risk_level", string(e.RiskLevel)).
		Str("origin", origin).
		Msg("Escalation created")

	m.pub.Publish(fanout.Event{Type: fanout.EventNewEscalation, Data: *e})
	return e, nil
}

// Get returns an escalation by id.
func (m *Manager) Get(ctx context.Context, id int64) (*models.Escalation, error) {
	return m.store.GetEscalation(ctx, id)
}

// List returns escalations newest first, optionally filtered by status.
func (m *Manager) List(ctx context.Context, status models.EscalationStatus) ([]models.Escalation, error) {
	return m.store.ListEscalations(ctx, store.EscalationFilter{Status: status})
}

// Update merges patch onto escalation id and publishes escalation_updated.
//
// Moving a terminal escalation to a different status is a validation error.
// Re-applying its current status is accepted and leaves resolvedAt unchanged.
func (m *Manager) Update(ctx context.Context, id int64, patch models.EscalationPatch) (*models.Escalation, error) {
	ctx, span := tracer.Start(ctx, "escalation.Update")
	defer span.End()
	span.SetAttributes(attribute.Int64("escalation.id", id))

	if err := validate.Struct(patch); err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	var resolvedNow models.EscalationStatus
	updated, err := m.store.UpdateEscalation(ctx, id, func(e *models.Escalation) error {
		resolvedNow = ""
		if patch.Status != nil {
			next := *patch.Status
			switch {
			case e.Status.IsTerminal() && next != e.Status:
				return apperr.Validationf("escalation %d is already %s", id, e.Status)
			case e.Status == models.EscalationPending && next != models.EscalationPending:
				resolved := m.now().UTC()
				e.Status = next
				e.ResolvedAt = &resolved
				resolvedNow = next
			}
		}
		if patch.OperatorID != nil {
			e.OperatorID = patch.OperatorID
		}
		if patch.Response != nil {
			e.Response = patch.Response
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resolvedNow != "" {
		metrics.EscalationsResolved.WithLabelValues(string(resolvedNow)).Inc()
		op := ""
		if updated.OperatorID != nil {
			op = *updated.OperatorID
		}
		log.Info().
			Int64("escalation_id", id).
			Str("status", string(resolvedNow)).
			Str("operator_id", op).
			Msg("Escalation resolved")
	}

	m.pub.Publish(fanout.Event{Type: fanout.EventEscalationUpdated, Data: *updated})
	return updated, nil
}

// AutoEscalate promotes a critical threat into a high-risk escalation with a
// 15 minute SLA. Non-critical threats are ignored and return nil.
func (m *Manager) AutoEscalate(ctx context.Context, t models.ThreatDetection) (*models.Escalation, error) {
	if t.Severity != models.SeverityCritical {
		return nil, nil
	}
	in := models.EscalationInput{
		AgentID:          "THREAT-" + strconv.FormatInt(t.ID, 10),
		Title:            fmt.Sprintf("Critical Threat Detected: %s", t.ThreatType),
		AgentType:        ThreatAgentType,
		RiskLevel:        models.RiskHigh,
		EscalationReason: "Automated Threat Detection",
		Question: fmt.Sprintf("A critical %s threat has been detected. %s. Immediate review required.",
			t.ThreatType, t.Description),
		Context: map[string]interface{}{
			"threatId":   t.ID,
			"evidence":   t.Evidence,
			"confidence": t.Confidence,
			"sessionId":  t.SessionID,
		},
		SLAMinutes: ThreatSLAMinutes,
		Status:     models.EscalationPending,
	}
	return m.CreateWithOrigin(ctx, in, OriginThreat)
}

// OnThreatCreated adapts AutoEscalate to the threat service's created-hook signature.
func (m *Manager) OnThreatCreated(ctx context.Context, t models.ThreatDetection) error {
	_, err := m.AutoEscalate(ctx, t)
	return err
}
