package validate_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcontrol/hub/internal/apperr"
	"github.com/agentcontrol/hub/internal/validate"
	"github.com/agentcontrol/hub/pkg/models"
)

func TestStruct_EscalationInput(t *testing.T) {
	valid := models.EscalationInput{
		AgentID:          "PA-001",
		Title:            "Large payment",
		AgentType:        "Payment Agent",
		RiskLevel:        models.RiskHigh,
		EscalationReason: "amount",
		Question:         "Approve?",
		Context:          map[string]interface{}{},
		SLAMinutes:       5,
	}
	require.NoError(t, validate.Struct(valid))

	bad := valid
	bad.RiskLevel = "extreme"
	bad.SLAMinutes = 0
	err := validate.Struct(bad)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "riskLevel must be one of")
	assert.Contains(t, apperr.Message(err), "slaMinutes is required")
}

func TestStruct_NotBlank(t *testing.T) {
	type msg struct {
		Text string `json:"message" validate:"notblank"`
	}
	err := validate.Struct(msg{Text: "   "})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(apperr.Message(err), "message is required"))
	assert.NoError(t, validate.Struct(msg{Text: "hi"}))
}
