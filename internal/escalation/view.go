package escalation

import (
	"time"

	"github.com/agentcontrol/hub/internal/sla"
	"github.com/agentcontrol/hub/pkg/models"
)

// View is an escalation rendered with its SLA position at a given instant.
// The SLA fields are derived on every call and never stored.
type View struct {
	models.Escalation
	SLADeadline         time.Time `json:"slaDeadline"`
	SLARemainingSeconds int64     `json:"slaRemainingSeconds"`
	Overdue             bool      `json:"overdue"`
}

// NewView renders e as seen at now.
func NewView(e models.Escalation, now time.Time) View {
	st := sla.For(&e, now)
	return View{
		Escalation:          e,
		SLADeadline:         st.Deadline,
		SLARemainingSeconds: st.RemainingSeconds(),
		Overdue:             st.Overdue,
	}
}

// View renders e with the manager's clock.
func (m *Manager) View(e models.Escalation) View {
	return NewView(e, m.now())
}

// Views renders a list with one shared instant.
func (m *Manager) Views(list []models.Escalation) []View {
	now := m.now()
	out := make([]View, len(list))
	for i, e := range list {
		out[i] = NewView(e, now)
	}
	return out
}
