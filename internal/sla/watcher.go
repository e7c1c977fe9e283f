package sla

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentcontrol/hub/internal/metrics"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/pkg/models"
)

// DefaultInterval is how often the watcher sweeps pending escalations.
const DefaultInterval = 30 * time.Second

// DefaultDueSoon is the window before a deadline in which an escalation
// counts as due soon.
const DefaultDueSoon = 2 * time.Minute

// CycleStats summarizes one sweep.
type CycleStats struct {
	Pending int
	Overdue int
	DueSoon int
	// NewlyOverdue lists escalations that crossed their deadline since the last sweep.
	NewlyOverdue []int64
}

// Watcher periodically sweeps pending escalations and exports SLA gauges.
// It only observes: it never changes an escalation.
type Watcher struct {
	store    store.EscalationStore
	interval time.Duration
	dueSoon  time.Duration
	now      func() time.Time

	mu       sync.Mutex
	reported map[int64]struct{} // overdue escalations already logged
}

// NewWatcher creates a watcher that sweeps on the given interval.
func NewWatcher(s store.EscalationStore, interval, dueSoon time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if dueSoon <= 0 {
		dueSoon = DefaultDueSoon
	}
	return &Watcher{
		store:    s,
		interval: interval,
		dueSoon:  dueSoon,
		now:      time.Now,
		reported: make(map[int64]struct{}),
	}
}

// WithClock replaces the watcher's time source. Used by tests.
func (w *Watcher) WithClock(now func() time.Time) *Watcher {
	w.now = now
	return w
}

// Start runs the watcher until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Dur("due_soon", w.dueSoon).Msg("SLA watcher started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	w.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("SLA watcher stopped")
			return
		case <-ticker.C:
			w.RunCycle(ctx)
		}
	}
}

// RunCycle performs one sweep and returns what it saw.
func (w *Watcher) RunCycle(ctx context.Context) CycleStats {
	var stats CycleStats

	pending, err := w.store.ListEscalations(ctx, store.EscalationFilter{Status: models.EscalationPending})
	if err != nil {
		log.Warn().Err(err).Msg("SLA watcher: failed to list escalations")
		return stats
	}

	now := w.now()
	live := make(map[int64]struct{}, len(pending))

	w.mu.Lock()
	for i := range pending {
		e := &pending[i]
		live[e.ID] = struct{}{}
		st := For(e, now)
		stats.Pending++

		switch {
		case st.Overdue:
			stats.Overdue++
			if _, seen := w.reported[e.ID]; !seen {
				w.reported[e.ID] = struct{}{}
				stats.NewlyOverdue = append(stats.NewlyOverdue, e.ID)
				log.Warn().
					Int64("escalation_id", e.ID).
					Str("agent_id", e.AgentID).
					Str("risk_level", string(e.RiskLevel)).
					Time("deadline", st.Deadline).
					Msg("Escalation SLA overdue")
			}
		case st.Remaining <= w.dueSoon:
			stats.DueSoon++
		}
	}
	// Forget escalations that are no longer pending.
	for id := range w.reported {
		if _, ok := live[id]; !ok {
			delete(w.reported, id)
		}
	}
	w.mu.Unlock()

	metrics.EscalationsPending.Set(float64(stats.Pending))
	metrics.EscalationsOverdue.Set(float64(stats.Overdue))
	metrics.EscalationsDueSoon.Set(float64(stats.DueSoon))
	return stats
}
