package notify_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcontrol/hub/internal/fanout"
	"github.com/agentcontrol/hub/internal/notify"
)

func TestDeliver_SignsAndRetries(t *testing.T) {
	var calls int32
	var gotSig, gotEvent string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		gotSig = r.Header.Get(notify.SignatureHeader)
		gotEvent = r.Header.Get(notify.EventHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := notify.New(fanout.NewHub(0, 0), notify.Options{
		URLs:            []string{srv.URL},
		Secret:          "s3cret",
		InitialInterval: time.Millisecond,
		MaxElapsed:      2 * time.Second,
	})

	body := []byte(`{"type":"new_escalation"}`)
	ok := n.Deliver(context.Background(), srv.URL, "new_escalation", body)
	require.True(t, ok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, notify.Sign("s3cret", body), gotSig)
	assert.Equal(t, "new_escalation", gotEvent)
	assert.Equal(t, body, gotBody)
}

func TestDeliver_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := notify.New(fanout.NewHub(0, 0), notify.Options{
		URLs:            []string{srv.URL},
		InitialInterval: time.Millisecond,
		MaxElapsed:      time.Second,
	})
	assert.False(t, n.Deliver(context.Background(), srv.URL, "pong", []byte(`{}`)))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestStart_ForwardsHubEvents(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received <- string(b)
	}))
	defer srv.Close()

	hub := fanout.NewHub(0, 0)
	n := notify.New(hub, notify.Options{URLs: []string{srv.URL}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	hub.Publish(fanout.Event{Type: fanout.EventNewMessage, Data: map[string]string{"message": "hi"}})

	select {
	case got := <-received:
		assert.JSONEq(t, `{"type":"new_message","data":{"message":"hi"}}`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}
}

func TestStart_DisabledWithoutURLs(t *testing.T) {
	hub := fanout.NewHub(0, 0)
	n := notify.New(hub, notify.Options{})
	assert.False(t, n.Enabled())
	n.Start(context.Background())
	assert.Equal(t, 0, hub.Len())
}
