// Package seed loads the demo oversight scenarios: a collusion session, a
// misalignment session, their actions and threats, and a queue of pending
// escalations. Everything goes through the real services, so scoring,
// detection and auto-escalation run exactly as they would for live traffic.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/agentcontrol/hub/internal/escalation"
	"github.com/agentcontrol/hub/internal/ingest"
	"github.com/agentcontrol/hub/internal/sessions"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/internal/threat"
	"github.com/agentcontrol/hub/pkg/models"
)

// DemoOperator is the seeded operator account.
const (
	DemoOperator         = "operator"
	demoOperatorPassword = "oversight"
)

// Services are the write paths the seed data flows through.
type Services struct {
	Users       store.UserStore
	Sessions    *sessions.Service
	Actions     *ingest.Recorder
	Threats     *threat.Service
	Escalations *escalation.Manager
}

// Demo loads the demo data unless it is already present, which happens when
// a persisted store is reopened.
func Demo(ctx context.Context, svc Services) error {
	if _, err := svc.Sessions.Get(ctx, "session-collusion-001"); err == nil {
		log.Info().Msg("Demo data already present, skipping seed")
		return nil
	}

	if err := EnsureUser(ctx, svc.Users, DemoOperator, demoOperatorPassword); err != nil {
		return err
	}

	for _, in := range demoSessions() {
		if _, err := svc.Sessions.Start(ctx, in); err != nil {
			return fmt.Errorf("seed session %s: %w", in.SessionID, err)
		}
	}
	for _, in := range demoActions() {
		if _, err := svc.Actions.Record(ctx, in); err != nil {
			return fmt.Errorf("seed action: %w", err)
		}
	}
	for _, in := range demoThreats() {
		if _, err := svc.Threats.Create(ctx, in); err != nil {
			return fmt.Errorf("seed threat: %w", err)
		}
	}
	for _, in := range demoEscalations() {
		if _, err := svc.Escalations.Create(ctx, in); err != nil {
			return fmt.Errorf("seed escalation %s: %w", in.AgentID, err)
		}
	}

	log.Info().Msg("Demo data seeded")
	return nil
}

// EnsureUser creates username with a bcrypt hash of password unless the
// user already exists.
func EnsureUser(ctx context.Context, users store.UserStore, username, password string) error {
	_, err := users.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return users.CreateUser(ctx, &models.User{Username: username, PasswordHash: string(hash)})
}
