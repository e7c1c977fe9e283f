package threat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agentcontrol/hub/internal/metrics"
	"github.com/agentcontrol/hub/pkg/models"
)

// Detector runs every rule against a committed action and persists what they
// find through the Service. Rules are independent: an error or panic in one
// is logged and treated as "no threat" without affecting the others.
type Detector struct {
	rules   []Rule
	service *Service
}

// NewDetector creates a detector that persists threats through svc.
func NewDetector(svc *Service, rules ...Rule) *Detector {
	return &Detector{rules: rules, service: svc}
}

// Name identifies the detector in the ingestion hook list.
func (d *Detector) Name() string { return "threat-detector" }

// AfterRecord evaluates action and persists any threats. It reports whether
// at least one threat was created for the action.
func (d *Detector) AfterRecord(ctx context.Context, action models.AgentAction) (bool, error) {
	created, err := d.Detect(ctx, action)
	return len(created) > 0, err
}

// Detect evaluates all rules and returns the persisted threats.
func (d *Detector) Detect(ctx context.Context, action models.AgentAction) ([]models.ThreatDetection, error) {
	ctx, span := tracer.Start(ctx, "threat.Detect")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("action.id", action.ID),
		attribute.String("action.type", string(action.ActionType)),
	)

	var created []models.ThreatDetection
	for _, r := range d.rules {
		inputs, err := evaluate(ctx, r, action)
		if err != nil {
			metrics.DetectorFailures.WithLabelValues(r.Name()).Inc()
			log.Error().Err(err).Str("rule", r.Name()).Int64("action_id", action.ID).Msg("Detection rule failed")
			continue
		}
		for _, in := range inputs {
			t, err := d.service.Create(ctx, in)
			if err != nil {
				log.Error().Err(err).Str("rule", r.Name()).Int64("action_id", action.ID).Msg("Failed to persist threat")
				continue
			}
			created = append(created, *t)
		}
	}
	span.SetAttributes(attribute.Int("threats.created", len(created)))
	return created, nil
}

func evaluate(ctx context.Context, r Rule, action models.AgentAction) (out []models.ThreatDetectionInput, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("rule %s panicked: %v", r.Name(), p)
		}
	}()
	return r.Evaluate(ctx, action)
}
