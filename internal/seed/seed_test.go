package seed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/agentcontrol/hub/internal/escalation"
	"github.com/agentcontrol/hub/internal/fanout"
	"github.com/agentcontrol/hub/internal/ingest"
	"github.com/agentcontrol/hub/internal/risk"
	"github.com/agentcontrol/hub/internal/seed"
	"github.com/agentcontrol/hub/internal/sessions"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/internal/threat"
)

func services(s *store.MemoryStore) seed.Services {
	mgr := escalation.NewManager(s, fanout.NewHub(0, 0))
	threats := threat.NewService(s)
	threats.OnCreated(mgr.OnThreatCreated)
	sess := sessions.NewService(s)
	detector := threat.NewDetector(threats, threat.DefaultRules(s, threat.DefaultConfig())...)
	return seed.Services{
		Users:       s,
		Sessions:    sess,
		Actions:     ingest.NewRecorder(s, sess, risk.Default, detector),
		Threats:     threats,
		Escalations: mgr,
	}
}

func TestDemo(t *testing.T) {
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	svc := services(s)

	require.NoError(t, seed.Demo(ctx, svc))

	sessList, _ := s.ListAgentSessions(ctx)
	assert.Len(t, sessList, 2)
	actions, _ := s.ListAgentActions(ctx, store.ActionFilter{})
	assert.Len(t, actions, 4)

	// The critical seeded threat escalates on its own.
	escs, _ := s.ListEscalations(ctx, store.EscalationFilter{})
	var auto int
	for _, e := range escs {
		if e.AgentType == escalation.ThreatAgentType {
			auto++
		}
	}
	assert.GreaterOrEqual(t, len(escs), 7)
	assert.Equal(t, 1, auto)

	u, err := s.GetUserByUsername(ctx, seed.DemoOperator)
	require.NoError(t, err)
	assert.NotEqual(t, "oversight", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("oversight")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("wrong")))

	// Seeding again is a no-op.
	require.NoError(t, seed.Demo(ctx, svc))
	again, _ := s.ListEscalations(ctx, store.EscalationFilter{})
	assert.Len(t, again, len(escs))
}

func TestEnsureUser_Idempotent(t *testing.T) {
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, seed.EnsureUser(ctx, s, "alice", "pw"))
	first, _ := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, seed.EnsureUser(ctx, s, "alice", "other"))
	second, _ := s.GetUserByUsername(ctx, "alice")
	assert.Equal(t, first.ID, second.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(second.PasswordHash), []byte("pw")))
}
