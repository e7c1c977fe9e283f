// Package metrics declares the hub's Prometheus collectors. They register with
// the default registry and are served by promhttp at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hub"

var (
	// ActionsRecorded counts ingested agent actions by type.
	ActionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "actions_total",
		Help:      "Agent actions recorded, by action type.",
	}, []string{"action_type"})

	// ActionRiskScore tracks the distribution of computed risk scores.
	ActionRiskScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "risk_score",
		Help:      "Risk score assigned to recorded actions.",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	// ThreatsDetected counts created threats by type and severity.
	ThreatsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "threat",
		Name:      "detections_total",
		Help:      "Threat detections created, by type and severity.",
	}, []string{"threat_type", "severity"})

	// DetectorFailures counts detection rules that errored or panicked.
	DetectorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "threat",
		Name:      "rule_failures_total",
		Help:      "Detection rule failures, by rule.",
	}, []string{"rule"})

	// EscalationsCreated counts escalations by origin (api, threat, judge).
	EscalationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "escalation",
		Name:      "created_total",
		Help:      "Escalations created, by origin.",
	}, []string{"origin"})

	// EscalationsResolved counts transitions out of pending by final status.
	EscalationsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "escalation",
		Name:      "resolved_total",
		Help:      "Escalations resolved, by status.",
	}, []string{"status"})

	// EscalationsPending is the number of pending escalations at the last SLA sweep.
	EscalationsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sla",
		Name:      "pending",
		Help:      "Pending escalations at the last SLA sweep.",
	})

	// EscalationsOverdue is the number of pending escalations past their deadline.
	EscalationsOverdue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sla",
		Name:      "overdue",
		Help:      "Pending escalations past their SLA deadline at the last sweep.",
	})

	// EscalationsDueSoon is the number of pending escalations close to their deadline.
	EscalationsDueSoon = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sla",
		Name:      "due_soon",
		Help:      "Pending escalations within the due-soon window at the last sweep.",
	})

	// FanoutSubscribers is the number of live event observers.
	FanoutSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "fanout",
		Name:      "subscribers",
		Help:      "Live event subscribers.",
	})

	// FanoutDropped counts events dropped for slow subscribers.
	FanoutDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fanout",
		Name:      "dropped_total",
		Help:      "Events dropped because a subscriber queue was full.",
	})

	// WebhookDeliveries counts webhook deliveries by result.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook deliveries, by result.",
	}, []string{"result"})

	// HTTPRequestDuration tracks API latency by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
