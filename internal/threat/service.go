// Package threat detects dangerous multi-agent interaction patterns and
// persists them as threat detections.
package threat

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agentcontrol/hub/internal/apperr"
	"github.com/agentcontrol/hub/internal/metrics"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/internal/validate"
	"github.com/agentcontrol/hub/pkg/models"
)

var tracer = otel.Tracer("hub/threat")

// CreatedHook runs synchronously after a threat is committed. Auto-escalation
// of critical threats is registered here.
type CreatedHook func(ctx context.Context, t models.ThreatDetection) error

// Service owns threat detection records.
type Service struct {
	store store.ThreatStore
	hooks []CreatedHook
	now   func() time.Time
}

// NewService creates a threat service backed by s.
func NewService(s store.ThreatStore) *Service {
	return &Service{store: s, now: time.Now}
}

// WithClock replaces the service's time source. Used by tests and seeding.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// OnCreated registers a hook that runs after every committed threat.
// Not safe to call concurrently with Create; register during wiring.
func (s *Service) OnCreated(h CreatedHook) {
	s.hooks = append(s.hooks, h)
}

// Create validates and persists a threat, then runs the created hooks.
// A failing hook is logged and does not fail the call: the threat is committed.
func (s *Service) Create(ctx context.Context, in models.ThreatDetectionInput) (*models.ThreatDetection, error) {
	ctx, span := tracer.Start(ctx, "threat.Create")
	defer span.End()

	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	t := &models.ThreatDetection{
		SessionID:    in.SessionID,
		ThreatType:   in.ThreatType,
		Severity:     in.Severity,
		Description:  in.Description,
		Evidence:     models.CloneMap(in.Evidence),
		DetectedAt:   s.now().UTC(),
		JudgeModelID: in.JudgeModelID,
		Confidence:   in.Confidence,
	}
	if err := s.store.CreateThreat(ctx, t); err != nil {
		return nil, apperr.Wrap(err, "create threat detection")
	}
	span.SetAttributes(
		attribute.Int64("threat.id", t.ID),
		attribute.String("threat.type", string(t.ThreatType)),
		attribute.String("threat.severity", string(t.Severity)),
	)
	metrics.ThreatsDetected.WithLabelValues(string(t.ThreatType), string(t.Severity)).Inc()

	log.Info().
		Int64("threat_id", t.ID).
		Str("session_id", t.SessionID).
		Str("type", string(t.ThreatType)).
		Str("severity", string(t.Severity)).
		Int("confidence", t.Confidence).
		Msg("Threat detected")

	for i, h := range s.hooks {
		if err := runHook(ctx, h, *t); err != nil {
			log.Error().Err(err).Int("hook", i).Int64("threat_id", t.ID).Msg("Threat created-hook failed")
		}
	}
	return t, nil
}

func runHook(ctx context.Context, h CreatedHook, t models.ThreatDetection) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, t)
}

// Get returns a threat by id.
func (s *Service) Get(ctx context.Context, id int64) (*models.ThreatDetection, error) {
	return s.store.GetThreat(ctx, id)
}

// List returns threats newest first.
func (s *Service) List(ctx context.Context, filter store.ThreatFilter) ([]models.ThreatDetection, error) {
	return s.store.ListThreats(ctx, filter)
}

// Mitigate marks a threat as mitigated. Mitigating twice is a no-op.
func (s *Service) Mitigate(ctx context.Context, id int64) (*models.ThreatDetection, error) {
	changed := false
	t, err := s.store.UpdateThreat(ctx, id, func(cur *models.ThreatDetection) error {
		changed = !cur.Mitigated
		cur.Mitigated = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		log.Info().Int64("threat_id", id).Msg("Threat mitigated")
	}
	return t, nil
}
