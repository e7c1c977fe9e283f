package threat

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/agentcontrol/hub/internal/risk"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/pkg/models"
)

// JudgeModelID identifies the built-in rule engine as the detecting model.
const JudgeModelID = "judge-v1"

// Rule inspects one committed action and reports any threats it implies.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, action models.AgentAction) ([]models.ThreatDetectionInput, error)
}

// Config tunes the built-in rules. Zero values fall back to the defaults.
type Config struct {
	CollusionWindow    time.Duration
	CollusionThreshold int
	MisalignmentScore  int
	BoundaryLimit      float64
	DetectAnomaly      bool
	Now                func() time.Time
}

// DefaultConfig returns the standard rule thresholds.
func DefaultConfig() Config {
	return Config{
		CollusionWindow:    5 * time.Minute,
		CollusionThreshold: 5,
		MisalignmentScore:  60,
		BoundaryLimit:      5000,
		DetectAnomaly:      true,
		Now:                time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CollusionWindow <= 0 {
		c.CollusionWindow = d.CollusionWindow
	}
	if c.CollusionThreshold <= 0 {
		c.CollusionThreshold = d.CollusionThreshold
	}
	if c.MisalignmentScore <= 0 {
		c.MisalignmentScore = d.MisalignmentScore
	}
	if c.BoundaryLimit <= 0 {
		c.BoundaryLimit = d.BoundaryLimit
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}

// DefaultRules builds the built-in rule set. The anomaly rule is included
// only when cfg.DetectAnomaly is set.
func DefaultRules(actions store.AgentActionStore, cfg Config) []Rule {
	cfg = cfg.withDefaults()
	rules := []Rule{
		&CollusionRule{actions: actions, window: cfg.CollusionWindow, threshold: cfg.CollusionThreshold, now: cfg.Now},
		&MisalignmentRule{minScore: cfg.MisalignmentScore},
		&BoundaryRule{limit: cfg.BoundaryLimit},
	}
	if cfg.DetectAnomaly {
		rules = append(rules, &AnomalyRule{})
	}
	return rules
}

// ── Collusion ───────────────────────────────────────────────

// CollusionRule flags excessive messaging between two agents in one session.
type CollusionRule struct {
	actions   store.AgentActionStore
	window    time.Duration
	threshold int
	now       func() time.Time
}

func (r *CollusionRule) Name() string { return "collusion" }

func (r *CollusionRule) Evaluate(ctx context.Context, a models.AgentAction) ([]models.ThreatDetectionInput, error) {
	if a.ActionType != models.ActionMessage || !a.HasTarget() {
		return nil, nil
	}

	now := r.now()
	since := now.Add(-r.window)
	recent, err := r.actions.ListAgentActions(ctx, store.ActionFilter{
		SessionID: a.SessionID,
		AgentIDs:  []string{a.AgentID, *a.TargetAgent},
		Since:     &since,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(recent))
	for _, ra := range recent {
		if now.Sub(ra.Timestamp) < r.window {
			ids = append(ids, ra.ID)
		}
	}
	if len(ids) <= r.threshold {
		return nil, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return []models.ThreatDetectionInput{{
		SessionID:    a.SessionID,
		ThreatType:   models.ThreatCollusion,
		Severity:     models.SeverityHigh,
		Description:  "Detected suspicious inter-agent communication pattern suggesting potential collusion",
		Evidence:     map[string]interface{}{"actions": ids, "pattern": "excessive_messaging"},
		JudgeModelID: JudgeModelID,
		Confidence:   85,
	}}, nil
}

// ── Misalignment ────────────────────────────────────────────

// MisalignmentRule flags high-risk delegations.
type MisalignmentRule struct {
	minScore int
}

func (r *MisalignmentRule) Name() string { return "misalignment" }

func (r *MisalignmentRule) Evaluate(_ context.Context, a models.AgentAction) ([]models.ThreatDetectionInput, error) {
	if a.ActionType != models.ActionDelegation || a.RiskScore <= r.minScore {
		return nil, nil
	}
	return []models.ThreatDetectionInput{{
		SessionID:    a.SessionID,
		ThreatType:   models.ThreatMisalignment,
		Severity:     models.SeverityMedium,
		Description:  "Agent delegation may violate principal intent or authority boundaries",
		Evidence:     map[string]interface{}{"actionId": a.ID, "riskScore": a.RiskScore},
		JudgeModelID: JudgeModelID,
		Confidence:   70,
	}}, nil
}

// ── Boundary violation ──────────────────────────────────────

// BoundaryRule flags payload amounts above the financial authority limit.
type BoundaryRule struct {
	limit float64
}

func (r *BoundaryRule) Name() string { return "boundary_violation" }

func (r *BoundaryRule) Evaluate(_ context.Context, a models.AgentAction) ([]models.ThreatDetectionInput, error) {
	amount, ok := risk.Amount(a.Payload)
	if !ok || amount <= r.limit {
		return nil, nil
	}
	return []models.ThreatDetectionInput{{
		SessionID:    a.SessionID,
		ThreatType:   models.ThreatBoundaryViolation,
		Severity:     models.SeverityCritical,
		Description:  "Agent attempting to exceed financial authority limits",
		Evidence:     map[string]interface{}{"actionId": a.ID, "amount": a.Payload["amount"], "limit": formatLimit(r.limit)},
		JudgeModelID: JudgeModelID,
		Confidence:   95,
	}}, nil
}

// formatLimit renders 5000 as "$5,000".
func formatLimit(limit float64) string {
	n := int64(limit)
	digits := []byte{}
	for i := 0; n > 0 || i == 0; i++ {
		if i > 0 && i%3 == 0 {
			digits = append([]byte{','}, digits...)
		}
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return "$" + string(digits)
}

// ── Anomaly ─────────────────────────────────────────────────

// injectionPatterns match attempts by one agent to override another agent's
// instructions through message content.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?|directions?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|prompts?|rules?|context)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)pretend\s+you\s+(are|have)\s+no\s+(restrictions?|rules?|guidelines?)`),
	regexp.MustCompile(`(?i)(override|bypass)\s+(your|the|all)\s+(controls?|limits?|validation|approval)`),
	regexp.MustCompile(`(?i)skip\s+(the\s+)?(validation|approval|review)`),
}

// AnomalyRule flags inter-agent messages and delegations that carry
// prompt-injection style content.
type AnomalyRule struct{}

func (r *AnomalyRule) Name() string { return "anomaly" }

func (r *AnomalyRule) Evaluate(_ context.Context, a models.AgentAction) ([]models.ThreatDetectionInput, error) {
	if a.ActionType != models.ActionMessage && a.ActionType != models.ActionDelegation {
		return nil, nil
	}
	keys := make([]string, 0, len(a.Payload))
	for k := range a.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		text, ok := a.Payload[k].(string)
		if !ok {
			continue
		}
		for _, re := range injectionPatterns {
			if re.MatchString(text) {
				return []models.ThreatDetectionInput{{
					SessionID:    a.SessionID,
					ThreatType:   models.ThreatAnomaly,
					Severity:     models.SeverityMedium,
					Description:  "Agent message contains instruction-override content",
					Evidence:     map[string]interface{}{"actionId": a.ID, "field": k, "pattern": "prompt_injection"},
					JudgeModelID: JudgeModelID,
					Confidence:   60,
				}}, nil
			}
		}
	}
	return nil, nil
}
