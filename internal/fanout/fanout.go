// Package fanout broadcasts state-change events to live observers.
//
// Each subscriber owns a bounded queue. Publish never blocks: when a queue is
// full the event is dropped for that subscriber only, and a subscriber that
// keeps overflowing is pruned. There is no replay for late subscribers.
package fanout

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agentcontrol/hub/internal/metrics"
)

// EventType names an event on the wire.
type EventType string

const (
	EventNewEscalation     EventType = "new_escalation"
	EventEscalationUpdated EventType = "escalation_updated"
	EventNewMessage        EventType = "new_message"
	EventSubscribed        EventType = "subscribed"
	EventPong              EventType = "pong"
)

// Event is the envelope delivered to observers.
type Event struct {
	Type  EventType   `json:"type"`
	Topic string      `json:"topic,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Publisher is implemented by Hub and accepted by every service that emits events.
type Publisher interface {
	Publish(Event)
}

const (
	DefaultQueueSize = 64
	DefaultMaxDrops  = 3
)

// Hub is a thread-safe broadcaster.
type Hub struct {
	mu        sync.Mutex
	subs      map[string]*Subscription
	queueSize int
	maxDrops  int
}

// Subscription is one observer's view of the hub.
type Subscription struct {
	ID    string
	ch    chan Event
	drops int // consecutive drops, guarded by Hub.mu
	hub   *Hub
}

// NewHub creates a hub. Non-positive arguments fall back to the defaults.
func NewHub(queueSize, maxDrops int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if maxDrops <= 0 {
		maxDrops = DefaultMaxDrops
	}
	return &Hub{
		subs:      make(map[string]*Subscription),
		queueSize: queueSize,
		maxDrops:  maxDrops,
	}
}

// Subscribe registers a new observer. Call Close when done to avoid leaks.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{
		ID:  uuid.NewString(),
		ch:  make(chan Event, h.queueSize),
		hub: h,
	}
	h.mu.Lock()
	h.subs[s.ID] = s
	n := len(h.subs)
	h.mu.Unlock()

	metrics.FanoutSubscribers.Set(float64(n))
	log.Debug().Str("subscriber", s.ID).Int("subscribers", n).Msg("Observer subscribed")
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	_, ok := h.subs[s.ID]
	if ok {
		delete(h.subs, s.ID)
		close(s.ch)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		metrics.FanoutSubscribers.Set(float64(n))
		log.Debug().Str("subscriber", s.ID).Msg("Observer unsubscribed")
	}
}

// Publish delivers e to every current subscriber without blocking.
func (h *Hub) Publish(e Event) {
	var pruned []string

	h.mu.Lock()
	for id, s := range h.subs {
		select {
		case s.ch <- e:
			s.drops = 0
		default:
			s.drops++
			metrics.FanoutDropped.Inc()
			if s.drops >= h.maxDrops {
				delete(h.subs, id)
				close(s.ch)
				pruned = append(pruned, id)
			}
		}
	}
	n := len(h.subs)
	h.mu.Unlock()

	for _, id := range pruned {
		log.Warn().Str("subscriber", id).Msg("Pruned slow observer")
	}
	if len(pruned) > 0 {
		metrics.FanoutSubscribers.Set(float64(n))
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// C returns the receive side of the subscription. It is closed when the
// subscription is closed or pruned.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close unsubscribes s from its hub.
func (s *Subscription) Close() { s.hub.Unsubscribe(s) }
