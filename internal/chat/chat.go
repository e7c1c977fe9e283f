// Package chat is the append-only conversation attached to each escalation.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentcontrol/hub/internal/apperr"
	"github.com/agentcontrol/hub/internal/fanout"
	"github.com/agentcontrol/hub/internal/store"
	"github.com/agentcontrol/hub/pkg/models"
)

// Store is the slice of the record store chat needs.
type Store interface {
	store.ChatStore
	GetEscalation(ctx context.Context, id int64) (*models.Escalation, error)
}

// Service posts and lists escalation messages.
type Service struct {
	store Store
	pub   fanout.Publisher
	now   func() time.Time
}

// NewService creates a chat service.
func NewService(s Store, pub fanout.Publisher) *Service {
	return &Service{store: s, pub: pub, now: time.Now}
}

// WithClock replaces the service's time source. Used by tests and seeding.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Post appends a message to escalation escalationID and publishes new_message.
func (s *Service) Post(ctx context.Context, escalationID int64, sender models.Sender, text string) (*models.ChatMessage, error) {
	if sender != models.SenderAgent && sender != models.SenderOperator {
		return nil, apperr.Validationf("sender must be one of [agent operator]")
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validationf("message is required")
	}
	if _, err := s.store.GetEscalation(ctx, escalationID); err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		EscalationID: escalationID,
		Sender:       sender,
		Message:      text,
		Timestamp:    s.now().UTC(),
	}
	if err := s.store.CreateChatMessage(ctx, msg); err != nil {
		return nil, apperr.Wrap(err, "create chat message")
	}
	log.Debug().Int64("escalation_id", escalationID).Str("sender", string(sender)).Msg("Chat message posted")

	s.pub.Publish(fanout.Event{Type: fanout.EventNewMessage, Data: *msg})
	return msg, nil
}

// List returns the escalation's messages oldest first. An unknown
// escalation has no messages.
func (s *Service) List(ctx context.Context, escalationID int64) ([]models.ChatMessage, error) {
	msgs, err := s.store.ListChatMessages(ctx, escalationID)
	if err != nil {
		return nil, apperr.Wrap(err, "list chat messages")
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return msgs, nil
}
