// Package risk assigns a deterministic 0–100 risk score to agent actions.
//
// The score is a sum of additive heuristics clamped to 100. There is no
// learned model behind it: the same input always yields the same score.
package risk

import (
	"strconv"
	"strings"

	"github.com/agentcontrol/hub/pkg/models"
)

const (
	// MaxScore is the upper clamp for any score.
	MaxScore = 100

	targetAgentAddend = 30
	largeAmountAddend = 25
	afterHoursAddend  = 15
	newMerchantAddend = 20

	// LargeAmount is the payload amount above which the large-amount addend applies.
	LargeAmount = 1000.0
)

// typeAddends lists the action-type tiers from highest to lowest. In cascading
// mode an action collects its own tier plus every tier after it.
var typeAddends = []struct {
	typ    models.ActionType
	addend int
}{
	{models.ActionDelegation, 40},
	{models.ActionEscalation, 20},
	{models.ActionToolCall, 15},
	{models.ActionMessage, 5},
}

// Scorer computes action risk scores.
type Scorer struct {
	// Exclusive makes each action type contribute only its own tier instead
	// of cascading through the lower tiers.
	Exclusive bool
}

// Default is the cascading scorer used by the hub.
var Default = Scorer{}

// Score scores in with the default scorer.
func Score(in models.AgentActionInput) int {
	return Default.Score(in)
}

// Score returns the risk score for in, in [0, MaxScore].
func (s Scorer) Score(in models.AgentActionInput) int {
	score := 0

	if in.TargetAgent != nil && *in.TargetAgent != "" {
		score += targetAgentAddend
	}
	score += s.typeAddend(in.ActionType)

	if in.Payload != nil {
		if amount, ok := Amount(in.Payload); ok && amount > LargeAmount {
			score += largeAmountAddend
		}
		if Truthy(in.Payload["afterHours"]) {
			score += afterHoursAddend
		}
		if Truthy(in.Payload["newMerchant"]) {
			score += newMerchantAddend
		}
	}

	if score > MaxScore {
		score = MaxScore
	}
	if score < 0 {
		score = 0
	}
	return score
}

func (s Scorer) typeAddend(t models.ActionType) int {
	total := 0
	matched := false
	for _, tier := range typeAddends {
		if tier.typ == t {
			matched = true
		}
		if !matched {
			continue
		}
		total += tier.addend
		if s.Exclusive {
			break
		}
	}
	return total
}

// Amount extracts payload["amount"] as a number. Strings may carry a "$"
// prefix and "," thousands separators ("$6,000.00"). ok is false when the
// field is missing or not numeric.
func Amount(payload map[string]interface{}) (float64, bool) {
	raw, exists := payload["amount"]
	if !exists || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(v))
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Truthy reports whether a decoded JSON value counts as set: true, a
// non-zero number, or a non-empty string other than "false".
func Truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case string:
		return t != "" && !strings.EqualFold(t, "false")
	}
	return true
}
