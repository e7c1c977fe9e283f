// Package sla derives escalation deadlines from creation time and SLA
// minutes, and watches pending escalations for overdue deadlines.
//
// Deadlines are never persisted. They are a function of wall-clock time and
// are recomputed on every read.
package sla

import (
	"time"

	"github.com/agentcontrol/hub/pkg/models"
)

// Status is the SLA position of an escalation at a given instant.
type Status struct {
	Deadline time.Time
	// Remaining is Deadline minus now. Negative once the deadline has passed.
	Remaining time.Duration
	// Overdue is true when Remaining <= 0.
	Overdue bool
}

// Compute returns the SLA status of an escalation created at createdAt with a
// budget of slaMinutes, as seen at now.
func Compute(createdAt time.Time, slaMinutes int, now time.Time) Status {
	deadline := createdAt.Add(time.Duration(slaMinutes) * time.Minute)
	remaining := deadline.Sub(now)
	return Status{
		Deadline:  deadline,
		Remaining: remaining,
		Overdue:   remaining <= 0,
	}
}

// For is Compute applied to an escalation record.
func For(e *models.Escalation, now time.Time) Status {
	return Compute(e.CreatedAt, e.SLAMinutes, now)
}

// RemainingSeconds returns the remaining time in whole seconds, floored at zero.
func (s Status) RemainingSeconds() int64 {
	if s.Remaining <= 0 {
		return 0
	}
	return int64(s.Remaining / time.Second)
}
