// Package judge records assessments made by supervising models. An
// evaluation recommending escalation opens an escalation before it is stored.
package judge

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentcontrol/hub/internal/apperr"
	"github.com/agentcontrol/hub/internal/escalation"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/internal/validate"
	"github.com/agentcontrol/hub/pkg/models"
)

// RecommendEscalate is the recommendation that triggers an escalation.
const RecommendEscalate = "escalate"

// Escalator is the part of the escalation manager the judge service uses.
type Escalator interface {
	CreateWithOrigin(ctx context.Context, in models.EscalationInput, origin string) (*models.Escalation, error)
}

// Service stores judge evaluations.
type Service struct {
	store     store.JudgeStore
	escalator Escalator
	now       func() time.Time
}

// NewService creates a judge service.
func NewService(s store.JudgeStore, esc Escalator) *Service {
	return &Service{store: s, escalator: esc, now: time.Now}
}

// WithClock replaces the service's time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Record stores an evaluation. When the recommendation is "escalate" the
// escalation is created first and the evaluation records that it triggered one.
func (s *Service) Record(ctx context.Context, in models.JudgeEvaluationInput) (*models.JudgeEvaluation, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	eval := &models.JudgeEvaluation{
		SessionID:      in.SessionID,
		JudgeModelID:   in.JudgeModelID,
		EvaluationType: in.EvaluationType,
		TargetActions:  append([]int64(nil), in.TargetActions...),
		Assessment:     models.CloneMap(in.Assessment),
		Recommendation: in.Recommendation,
		Timestamp:      s.now().UTC(),
	}

	var esc *models.Escalation
	if strings.EqualFold(strings.TrimSpace(in.Recommendation), RecommendEscalate) {
		var err error
		esc, err = s.escalator.CreateWithOrigin(ctx, escalationFor(in), escalation.OriginJudge)
		if err != nil {
			return nil, err
		}
		eval.EscalationTriggered = true
		log.Info().
			Int64("escalation_id", esc.ID).
			Str("judge_model_id", in.JudgeModelID).
			Str("session_id", in.SessionID).
			Msg("Judge evaluation triggered escalation")
	}

	if err := s.store.CreateJudgeEvaluation(ctx, eval); err != nil {
		if esc != nil {
			// The escalation stays open for operators without a stored evaluation.
			log.Error().Err(err).
				Int64("escalation_id", esc.ID).
				Str("session_id", in.SessionID).
				Msg("Judge evaluation not stored after escalation was created")
		}
		return nil, apperr.Wrap(err, "create judge evaluation")
	}
	return eval, nil
}

// List returns evaluations newest first. Empty sessionID lists all.
func (s *Service) List(ctx context.Context, sessionID string) ([]models.JudgeEvaluation, error) {
	return s.store.ListJudgeEvaluations(ctx, sessionID)
}

func escalationFor(in models.JudgeEvaluationInput) models.EscalationInput {
	return models.EscalationInput{
		AgentID:          in.JudgeModelID,
		Title:            "Judge Escalation: " + strings.ReplaceAll(in.EvaluationType, "_", " "),
		AgentType:        "Judge Model",
		RiskLevel:        models.RiskHigh,
		EscalationReason: "Judge Recommendation",
		Question:         "Judge model " + in.JudgeModelID + " recommends escalation for session " + in.SessionID + ". Review the flagged actions.",
		Context: map[string]interface{}{
			"sessionId":      in.SessionID,
			"evaluationType": in.EvaluationType,
			"assessment":     in.Assessment,
			"targetActions":  in.TargetActions,
		},
		SLAMinutes: escalation.ThreatSLAMinutes,
		Status:     models.EscalationPending,
	}
}
