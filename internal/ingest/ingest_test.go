package ingest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcontrol/hub/internal/apperr"
	"github.com/agentcontrol/hub/internal/escalation"
	"github.com/agentcontrol/hub/internal/fanout"
	"github.com/agentcontrol/hub/internal/ingest"
	"github.com/agentcontrol/hub/internal/risk"
	"github.com/agentcontrol/hub/internal/sessions"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/internal/threat"
	"github.com/agentcontrol/hub/pkg/models"
)

type pipeline struct {
	store    *store.MemoryStore
	recorder *ingest.Recorder
	hub      *fanout.Hub
}

func newPipeline(t *testing.T, extra ...ingest.Hook) *pipeline {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })

	hub := fanout.NewHub(256, 0)
	mgr := escalation.NewManager(s, hub)
	threats := threat.NewService(s)
	threats.OnCreated(mgr.OnThreatCreated)
	detector := threat.NewDetector(threats, threat.DefaultRules(s, threat.DefaultConfig())...)
	sess := sessions.NewService(s)

	_, err := sess.Start(context.Background(), models.AgentSessionInput{SessionID: "s-1", OrchestratorID: "o"})
	require.NoError(t, err)

	hooks := append([]ingest.Hook{detector}, extra...)
	return &pipeline{store: s, recorder: ingest.NewRecorder(s, sess, risk.Default, hooks...), hub: hub}
}

func TestRecord_ScoresAndPersists(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	a, err := p.recorder.Record(ctx, models.AgentActionInput{
		SessionID: "s-1", AgentID: "PA-001", ActionType: models.ActionToolCall,
		Payload: map[string]interface{}{"tool": "lookup"},
	})
	require.NoError(t, err)
	assert.Equal(t, 20, a.RiskScore)
	assert.False(t, a.Flagged)

	got, err := p.store.GetAgentAction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.RiskScore, got.RiskScore)
}

func TestRecord_CriticalThreatEscalatesBeforeReturn(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	sub := p.hub.Subscribe()
	defer sub.Close()

	a, err := p.recorder.Record(ctx, models.AgentActionInput{
		SessionID: "s-1", AgentID: "PA-001", ActionType: models.ActionToolCall,
		Payload: map[string]interface{}{"amount": "$6,000.00"},
	})
	require.NoError(t, err)
	assert.True(t, a.Flagged)

	stored, _ := p.store.GetAgentAction(ctx, a.ID)
	assert.True(t, stored.Flagged)

	threats, _ := p.store.ListThreats(ctx, store.ThreatFilter{})
	require.Len(t, threats, 1)
	assert.Equal(t, models.ThreatBoundaryViolation, threats[0].ThreatType)

	escs, _ := p.store.ListEscalations(ctx, store.EscalationFilter{})
	require.Len(t, escs, 1)
	assert.Contains(t, escs[0].AgentID, "THREAT-")
	assert.Equal(t, threats[0].ID, escs[0].Context["threatId"])

	require.Len(t, sub.C(), 1)
	assert.Equal(t, fanout.EventNewEscalation, (<-sub.C()).Type)
}

func TestRecord_SessionMustBeActive(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	_, err := p.recorder.Record(ctx, models.AgentActionInput{SessionID: "missing", AgentID: "A", ActionType: models.ActionMessage})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = p.recorder.Record(ctx, models.AgentActionInput{SessionID: "s-1", AgentID: "A", ActionType: "teleport"})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

type brokenHook struct{ panics bool }

func (h brokenHook) Name() string { return "broken" }
func (h brokenHook) AfterRecord(context.Context, models.AgentAction) (bool, error) {
	if h.panics {
		panic("detector bug")
	}
	return false, errors.New("detector offline")
}

func TestRecord_HookFailureDoesNotBlockIngestion(t *testing.T) {
	p := newPipeline(t, brokenHook{}, brokenHook{panics: true})

	a, err := p.recorder.Record(context.Background(), models.AgentActionInput{
		SessionID: "s-1", AgentID: "VA-002", ActionType: models.ActionDelegation,
	})
	require.NoError(t, err)
	// The misalignment rule still ran and flagged the delegation.
	assert.True(t, a.Flagged)
	assert.WithinDuration(t, time.Now(), a.Timestamp, 5*time.Second)
}
