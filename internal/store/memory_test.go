package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/pkg/models"
)

// newTestStore creates a fresh in-memory store with no persistence.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	return s
}

func newEscalation(agentID string, createdAt time.Time) *models.Escalation {
	return &models.Escalation{
		AgentID:          agentID,
		Title:            "Approve payment",
		AgentType:        "Payment Agent",
		RiskLevel:        models.RiskHigh,
		EscalationReason: "amount over limit",
		Question:         "Approve?",
		Context:          map[string]interface{}{"amount": "$2,000.00"},
		SLAMinutes:       5,
		CreatedAt:        createdAt,
		Status:           models.EscalationPending,
	}
}

// ─── Escalations ─────────────────────────────────────────────

func TestCreateEscalation_AssignsSequentialIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 1; i <= 3; i++ {
		e := newEscalation("PA-001", now)
		if err := s.CreateEscalation(ctx, e); err != nil {
			t.Fatalf("CreateEscalation() error = %v", err)
		}
		if e.ID != int64(i) {
			t.Errorf("CreateEscalation() ID = %d, want %d", e.ID, i)
		}
	}
}

func TestGetEscalation_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetEscalation(context.Background(), 42)
	if err == nil {
		t.Fatal("GetEscalation() expected error for unknown id")
	}
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("GetEscalation() error = %T, want *store.ErrNotFound", err)
	}
	if nf.Key != "42" {
		t.Errorf("ErrNotFound.Key = %q, want %q", nf.Key, "42")
	}
}

func TestListEscalations_NewestFirstAndStatusFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	old := newEscalation("A", base)
	mid := newEscalation("B", base.Add(time.Minute))
	mid.Status = models.EscalationApproved
	newest := newEscalation("C", base.Add(2*time.Minute))
	for _, e := range []*models.Escalation{old, mid, newest} {
		s.CreateEscalation(ctx, e)
	}

	all, err := s.ListEscalations(ctx, store.EscalationFilter{})
	if err != nil {
		t.Fatalf("ListEscalations() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListEscalations() len = %d, want 3", len(all))
	}
	if all[0].AgentID != "C" || all[2].AgentID != "A" {
		t.Errorf("ListEscalations() order = %s,%s,%s, want C,B,A", all[0].AgentID, all[1].AgentID, all[2].AgentID)
	}

	pending, _ := s.ListEscalations(ctx, store.EscalationFilter{Status: models.EscalationPending})
	if len(pending) != 2 {
		t.Errorf("ListEscalations(pending) len = %d, want 2", len(pending))
	}
}

func TestUpdateEscalation_AtomicAndCopied(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := newEscalation("PA-001", time.Now())
	s.CreateEscalation(ctx, e)

	boom := errors.New("boom")
	_, err := s.UpdateEscalation(ctx, e.ID, func(cur *models.Escalation) error {
		cur.Status = models.EscalationDenied
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("UpdateEscalation() error = %v, want %v", err, boom)
	}
	got, _ := s.GetEscalation(ctx, e.ID)
	if got.Status != models.EscalationPending {
		t.Errorf("Status after failed update = %q, want %q", got.Status, models.EscalationPending)
	}

	updated, err := s.UpdateEscalation(ctx, e.ID, func(cur *models.Escalation) error {
		cur.Status = models.EscalationApproved
		cur.Response = models.StringPtr("ok")
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateEscalation() error = %v", err)
	}
	if updated.Status != models.EscalationApproved {
		t.Errorf("UpdateEscalation().Status = %q, want %q", updated.Status, models.EscalationApproved)
	}

	// Mutating a returned record must not leak into the store.
	updated.Context["amount"] = "tampered"
	again, _ := s.GetEscalation(ctx, e.ID)
	if again.Context["amount"] != "$2,000.00" {
		t.Errorf("Context leaked through returned copy: %v", again.Context["amount"])
	}
}

func TestUpdateEscalation_ConcurrentWritersSerialize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := newEscalation("PA-001", time.Now())
	e.Context = map[string]interface{}{"n": 0}
	s.CreateEscalation(ctx, e)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.UpdateEscalation(ctx, e.ID, func(cur *models.Escalation) error {
				cur.Context["n"] = cur.Context["n"].(int) + 1
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := s.GetEscalation(ctx, e.ID)
	if got.Context["n"] != 50 {
		t.Errorf("counter = %v, want 50", got.Context["n"])
	}
}

// ─── Chat ────────────────────────────────────────────────────

func TestListChatMessages_OrderedWithStableTies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Now()

	s.CreateChatMessage(ctx, &models.ChatMessage{EscalationID: 1, Sender: models.SenderAgent, Message: "second", Timestamp: ts.Add(time.Second)})
	s.CreateChatMessage(ctx, &models.ChatMessage{EscalationID: 1, Sender: models.SenderAgent, Message: "first-a", Timestamp: ts})
	s.CreateChatMessage(ctx, &models.ChatMessage{EscalationID: 1, Sender: models.SenderOperator, Message: "first-b", Timestamp: ts})
	s.CreateChatMessage(ctx, &models.ChatMessage{EscalationID: 2, Sender: models.SenderAgent, Message: "other", Timestamp: ts})

	msgs, err := s.ListChatMessages(ctx, 1)
	if err != nil {
		t.Fatalf("ListChatMessages() error = %v", err)
	}
	want := []string{"first-a", "first-b", "second"}
	if len(msgs) != len(want) {
		t.Fatalf("ListChatMessages() len = %d, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		if msgs[i].Message != w {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].Message, w)
		}
	}
}

// ─── Sessions & actions ──────────────────────────────────────

func TestCreateAgentSession_Conflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := &models.AgentSession{SessionID: "s-1", OrchestratorID: "orch", Status: models.SessionActive, StartedAt: time.Now()}
	if err := s.CreateAgentSession(ctx, sess); err != nil {
		t.Fatalf("CreateAgentSession() error = %v", err)
	}
	err := s.CreateAgentSession(ctx, &models.AgentSession{SessionID: "s-1"})
	var conflict *store.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("CreateAgentSession() duplicate error = %v, want *store.ErrConflict", err)
	}
}

func TestListAgentActions_Filter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	add := func(session, agent string, at time.Time) {
		s.CreateAgentAction(ctx, &models.AgentAction{SessionID: session, AgentID: agent, ActionType: models.ActionMessage, Timestamp: at})
	}
	add("s-1", "PA-001", now.Add(-10*time.Minute))
	add("s-1", "PA-001", now)
	add("s-1", "SV-001", now)
	add("s-1", "XX-001", now)
	add("s-2", "PA-001", now)

	since := now.Add(-5 * time.Minute)
	got, err := s.ListAgentActions(ctx, store.ActionFilter{
		SessionID: "s-1",
		AgentIDs:  []string{"PA-001", "SV-001"},
		Since:     &since,
	})
	if err != nil {
		t.Fatalf("ListAgentActions() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListAgentActions() len = %d, want 2", len(got))
	}

	limited, _ := s.ListAgentActions(ctx, store.ActionFilter{Limit: 3})
	if len(limited) != 3 {
		t.Errorf("ListAgentActions(limit 3) len = %d, want 3", len(limited))
	}
}

func TestListThreats_Unmitigated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := &models.ThreatDetection{SessionID: "s", ThreatType: models.ThreatCollusion, Severity: models.SeverityHigh, DetectedAt: time.Now()}
	b := &models.ThreatDetection{SessionID: "s", ThreatType: models.ThreatAnomaly, Severity: models.SeverityMedium, DetectedAt: time.Now()}
	s.CreateThreat(ctx, a)
	s.CreateThreat(ctx, b)
	s.UpdateThreat(ctx, a.ID, func(t *models.ThreatDetection) error {
		t.Mitigated = true
		return nil
	})

	open, _ := s.ListThreats(ctx, store.ThreatFilter{Unmitigated: true})
	if len(open) != 1 || open[0].ID != b.ID {
		t.Errorf("ListThreats(unmitigated) = %+v, want only threat %d", open, b.ID)
	}
}

// ─── Persistence ─────────────────────────────────────────────

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1 := store.NewMemoryStore(dir)
	e := newEscalation("PA-001", time.Now().UTC())
	s1.CreateEscalation(ctx, e)
	s1.CreateUser(ctx, &models.User{Username: "operator", PasswordHash: "x"})
	if err := s1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2 := store.NewMemoryStore(dir)
	defer s2.Close()
	got, err := s2.GetEscalation(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEscalation() after reload error = %v", err)
	}
	if got.AgentID != "PA-001" {
		t.Errorf("reloaded AgentID = %q, want %q", got.AgentID, "PA-001")
	}

	// Sequence counters survive the restart.
	next := newEscalation("PA-002", time.Now())
	s2.CreateEscalation(ctx, next)
	if next.ID != e.ID+1 {
		t.Errorf("ID after reload = %d, want %d", next.ID, e.ID+1)
	}
}
