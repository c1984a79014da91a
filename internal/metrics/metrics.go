// Package metrics holds the bot's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deadline_bot"

var (
	// PortalFetchDuration measures a full login and scrape.
	// Labels: outcome (ok, auth, unavailable, timeout)
	PortalFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "portal",
		Name:      "fetch_duration_seconds",
		Help:      "Portal login and scrape latency in seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"outcome"})

	// PortalInFlight is the number of portal sessions currently running.
	PortalInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portal",
		Name:      "in_flight",
		Help:      "Portal sessions in progress",
	})

	// DeadlinesReconciled counts rows added and removed by reconciliation.
	// Labels: change (added, removed)
	DeadlinesReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "deadlines_total",
		Help:      "Deadlines added or removed by reconciliation",
	}, []string{"change"})

	// SyncRuns counts per-user refreshes.
	// Labels: trigger (sweep, manual, registration), outcome (ok, error)
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Per-user synchronisation runs",
	}, []string{"trigger", "outcome"})

	// NotificationsSent counts reminder deliveries.
	// Labels: channel (day, interval, new), outcome (ok, error)
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Reminder messages by channel and outcome",
	}, []string{"channel", "outcome"})

	// UpdatesHandled counts Telegram updates by kind.
	UpdatesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bot",
		Name:      "updates_total",
		Help:      "Telegram updates processed",
	}, []string{"kind"})
)
