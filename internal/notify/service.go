// Package notify forwards hub events to outbound webhooks.
//
// The notifier is an ordinary fanout observer. Each event is POSTed as JSON
// to every configured URL, signed with HMAC-SHA256 when a secret is set, and
// retried with exponential backoff. Delivery failures are logged and counted,
// never returned to the code that published the event.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/agentcontrol/hub/internal/fanout"
	"github.com/agentcontrol/hub/internal/metrics"
)

const (
	// SignatureHeader carries "sha256=<hex>" of the request body.
	SignatureHeader = "X-Hub-Signature"
	// EventHeader carries the event type.
	EventHeader = "X-Hub-Event"

	defaultMaxElapsed = 30 * time.Second
	defaultWorkers    = 8
)

// Options configures a Notifier.
type Options struct {
	URLs   []string
	Secret string
	// MaxElapsed bounds the retries for a single delivery.
	MaxElapsed time.Duration
	// InitialInterval is the first backoff delay. Zero uses the backoff default.
	InitialInterval time.Duration
	Workers         int64
	Client          *http.Client
}

// Notifier delivers hub events to webhooks.
type Notifier struct {
	hub  *fanout.Hub
	opts Options
	sem  *semaphore.Weighted
}

// New creates a notifier for hub. It does nothing until Start is called.
func New(hub *fanout.Hub, opts Options) *Notifier {
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = defaultMaxElapsed
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Notifier{hub: hub, opts: opts, sem: semaphore.NewWeighted(opts.Workers)}
}

// Enabled reports whether any webhook URL is configured.
func (n *Notifier) Enabled() bool { return len(n.opts.URLs) > 0 }

// Start subscribes to the hub and forwards events until ctx is cancelled.
// Deliveries run on a bounded worker set so a slow endpoint does not stall
// the subscription. If the hub prunes the subscription it is renewed.
func (n *Notifier) Start(ctx context.Context) {
	if !n.Enabled() {
		log.Info().Msg("Webhook notifier disabled")
		return
	}
	log.Info().Int("urls", len(n.opts.URLs)).Msg("Webhook notifier started")

	sub := n.hub.Subscribe()
	go func() {
		defer func() { sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C():
				if !ok {
					log.Warn().Str("subscriber", sub.ID).Msg("Webhook notifier subscription pruned, resubscribing")
					sub = n.hub.Subscribe()
					continue
				}
				n.dispatch(ctx, ev)
			}
		}
	}()
}

func (n *Notifier) dispatch(ctx context.Context, ev fanout.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event", string(ev.Type)).Msg("Failed to marshal webhook payload")
		return
	}
	for _, url := range n.opts.URLs {
		if err := n.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(url string) {
			defer n.sem.Release(1)
			n.Deliver(ctx, url, string(ev.Type), body)
		}(url)
	}
}

// Deliver POSTs body to url, retrying transient failures. It reports whether
// the delivery eventually succeeded.
func (n *Notifier) Deliver(ctx context.Context, url, eventType string, body []byte) bool {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = n.opts.MaxElapsed
	if n.opts.InitialInterval > 0 {
		b.InitialInterval = n.opts.InitialInterval
	}

	attempts := 0
	op := func() error {
		attempts++
		return n.post(ctx, url, eventType, body)
	}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
		log.Warn().Err(err).
			Str("url", url).
			Str("event", eventType).
			Int("attempts", attempts).
			Msg("Webhook delivery failed")
		return false
	}
	metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
	log.Debug().Str("url", url).Str("event", eventType).Int("attempts", attempts).Msg("Webhook delivered")
	return true
}

func (n *Notifier) post(ctx context.Context, url, eventType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "AgentControl-Hub-Webhook/1.0")
	req.Header.Set(EventHeader, eventType)
	if n.opts.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(n.opts.Secret, body))
	}

	resp, err := n.opts.Client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		// The receiver rejected the payload; retrying will not help.
		return backoff.Permanent(fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, url))
	default:
		return fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, url)
	}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
