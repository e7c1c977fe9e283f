package sla_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentcontrol/hub/internal/sla"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/pkg/models"
)

func TestCompute(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	later := sla.Compute(created, 5, created.Add(6*time.Minute))
	if !later.Overdue {
		t.Errorf("Compute(T+6m).Overdue = false, want true")
	}
	if later.RemainingSeconds() != 0 {
		t.Errorf("Compute(T+6m).RemainingSeconds() = %d, want 0", later.RemainingSeconds())
	}

	early := sla.Compute(created, 5, created.Add(2*time.Minute))
	if early.Overdue {
		t.Errorf("Compute(T+2m).Overdue = true, want false")
	}
	if early.Remaining != 3*time.Minute {
		t.Errorf("Compute(T+2m).Remaining = %v, want 3m", early.Remaining)
	}
	if want := created.Add(5 * time.Minute); !early.Deadline.Equal(want) {
		t.Errorf("Compute().Deadline = %v, want %v", early.Deadline, want)
	}

	edge := sla.Compute(created, 5, created.Add(5*time.Minute))
	if !edge.Overdue {
		t.Errorf("Compute(at deadline).Overdue = false, want true")
	}
}

func TestWatcher_RunCycle(t *testing.T) {
	s := store.NewMemoryStore("")
	defer s.Close()
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	add := func(created time.Time, minutes int, status models.EscalationStatus) {
		s.CreateEscalation(ctx, &models.Escalation{
			AgentID: "A", Title: "t", AgentType: "x", RiskLevel: models.RiskLow,
			EscalationReason: "r", Question: "q", SLAMinutes: minutes,
			CreatedAt: created, Status: status,
		})
	}
	add(now.Add(-10*time.Minute), 5, models.EscalationPending)  // overdue
	add(now.Add(-4*time.Minute), 5, models.EscalationPending)   // due soon
	add(now, 30, models.EscalationPending)                      // fine
	add(now.Add(-60*time.Minute), 5, models.EscalationApproved) // resolved, ignored

	w := sla.NewWatcher(s, time.Minute, 2*time.Minute).WithClock(func() time.Time { return now })

	stats := w.RunCycle(ctx)
	if stats.Pending != 3 || stats.Overdue != 1 || stats.DueSoon != 1 {
		t.Errorf("RunCycle() = %+v, want pending=3 overdue=1 dueSoon=1", stats)
	}
	if len(stats.NewlyOverdue) != 1 {
		t.Errorf("RunCycle().NewlyOverdue = %v, want one id", stats.NewlyOverdue)
	}

	again := w.RunCycle(ctx)
	if len(again.NewlyOverdue) != 0 {
		t.Errorf("second RunCycle().NewlyOverdue = %v, want none", again.NewlyOverdue)
	}
}
