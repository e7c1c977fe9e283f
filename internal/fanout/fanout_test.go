package fanout_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcontrol/hub/internal/fanout"
)

func receive(t *testing.T, s *fanout.Subscription) fanout.Event {
	t.Helper()
	select {
	case e, ok := <-s.C():
		require.True(t, ok, "subscription channel closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return fanout.Event{}
}

func TestPublish_EachSubscriberGetsOneEvent(t *testing.T) {
	hub := fanout.NewHub(0, 0)
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer a.Close()
	defer b.Close()

	hub.Publish(fanout.Event{Type: fanout.EventNewEscalation, Data: 1})

	assert.Equal(t, fanout.EventNewEscalation, receive(t, a).Type)
	assert.Equal(t, fanout.EventNewEscalation, receive(t, b).Type)
	assert.Len(t, a.C(), 0)
	assert.Len(t, b.C(), 0)
}

func TestPublish_NoReplayForLateSubscriber(t *testing.T) {
	hub := fanout.NewHub(0, 0)
	hub.Publish(fanout.Event{Type: fanout.EventNewEscalation})

	late := hub.Subscribe()
	defer late.Close()
	assert.Len(t, late.C(), 0)
}

func TestPublish_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := fanout.NewHub(2, 3)
	slow := hub.Subscribe()
	fast := hub.Subscribe()
	defer fast.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			hub.Publish(fanout.Event{Type: fanout.EventNewMessage, Data: i})
			<-fast.C()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// slow kept the first two events; the rest were dropped for it only.
	assert.Len(t, slow.C(), 2)
	assert.Equal(t, 2, hub.Len())
}

func TestPublish_PrunesAfterConsecutiveDrops(t *testing.T) {
	hub := fanout.NewHub(1, 3)
	slow := hub.Subscribe()

	for i := 0; i < 4; i++ { // 1 delivered, 3 dropped
		hub.Publish(fanout.Event{Type: fanout.EventNewMessage})
	}
	assert.Equal(t, 0, hub.Len())

	// The buffered event is still readable, then the channel reports closed.
	_, ok := <-slow.C()
	assert.True(t, ok)
	_, ok = <-slow.C()
	assert.False(t, ok)

	// Closing a pruned subscription is a no-op.
	slow.Close()
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	hub := fanout.NewHub(0, 0)
	s := hub.Subscribe()
	s.Close()
	s.Close()
	assert.Equal(t, 0, hub.Len())
	hub.Publish(fanout.Event{Type: fanout.EventPong})
}
