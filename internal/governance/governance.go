// Package governance builds the aggregate oversight dashboard.
package governance

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/agentcontrol/hub/internal/apperr"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/pkg/models"
)

// RecentActionLimit caps Dashboard.RecentActions.
const RecentActionLimit = 50

// Source is the read side of the store the aggregator needs.
type Source interface {
	ListEscalations(ctx context.Context, filter store.EscalationFilter) ([]models.Escalation, error)
	ListThreats(ctx context.Context, filter store.ThreatFilter) ([]models.ThreatDetection, error)
	ListAgentSessions(ctx context.Context) ([]models.AgentSession, error)
	ListAgentActions(ctx context.Context, filter store.ActionFilter) ([]models.AgentAction, error)
}

// ThreatSummary counts unmitigated threats by severity.
type ThreatSummary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Dashboard is the aggregate governance view.
type Dashboard struct {
	Escalations    []models.Escalation      `json:"escalations"`
	Threats        []models.ThreatDetection `json:"threatDetections"`
	Sessions       []models.AgentSession    `json:"sessions"`
	ActiveSessions []models.AgentSession    `json:"activeSessions"`
	RecentActions  []models.AgentAction     `json:"recentActions"`
	ThreatSummary  ThreatSummary            `json:"threatSummary"`
}

// Aggregator assembles dashboards. Nothing is cached.
type Aggregator struct {
	src Source
}

// NewAggregator creates an aggregator over src.
func NewAggregator(src Source) *Aggregator {
	return &Aggregator{src: src}
}

// Dashboard fetches all collections concurrently and summarizes them.
func (a *Aggregator) Dashboard(ctx context.Context) (*Dashboard, error) {
	d := &Dashboard{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		d.Escalations, err = a.src.ListEscalations(gctx, store.EscalationFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		d.Threats, err = a.src.ListThreats(gctx, store.ThreatFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		d.Sessions, err = a.src.ListAgentSessions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.RecentActions, err = a.src.ListAgentActions(gctx, store.ActionFilter{Limit: RecentActionLimit})
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(err, "build governance dashboard")
	}

	// Stores may return nil for empty results; the dashboard always has arrays.
	if d.Escalations == nil {
		d.Escalations = []models.Escalation{}
	}
	if d.Threats == nil {
		d.Threats = []models.ThreatDetection{}
	}
	if d.Sessions == nil {
		d.Sessions = []models.AgentSession{}
	}
	if d.RecentActions == nil {
		d.RecentActions = []models.AgentAction{}
	}

	d.ActiveSessions = make([]models.AgentSession, 0)
	for _, s := range d.Sessions {
		if s.Status == models.SessionActive {
			d.ActiveSessions = append(d.ActiveSessions, s)
		}
	}
	if len(d.RecentActions) > RecentActionLimit {
		d.RecentActions = d.RecentActions[:RecentActionLimit]
	}
	d.ThreatSummary = Summarize(d.Threats)
	return d, nil
}

// Summarize counts unmitigated threats by severity.
func Summarize(threats []models.ThreatDetection) ThreatSummary {
	var s ThreatSummary
	for _, t := range threats {
		if t.Mitigated {
			continue
		}
		switch t.Severity {
		case models.SeverityCritical:
			s.Critical++
		case models.SeverityHigh:
			s.High++
		case models.SeverityMedium:
			s.Medium++
		case models.SeverityLow:
			s.Low++
		}
		s.Total++
	}
	return s
}
