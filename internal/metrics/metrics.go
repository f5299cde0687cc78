package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingress metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookbridge_events_ingested_total",
			Help: "Total number of webhook events accepted at ingress",
		},
		[]string{"queue"},
	)

	// Pipeline metrics
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookbridge_events_dropped_total",
			Help: "Total number of queue items dropped before delivery",
		},
		[]string{"reason"},
	)

	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookbridge_events_skipped_total",
			Help: "Total number of envelopes skipped by fail-closed resolution",
		},
		[]string{"reason"},
	)

	// Delivery metrics
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookbridge_deliveries_total",
			Help: "Total number of destination delivery attempts",
		},
		[]string{"result"},
	)

	// Throttle metrics
	AccountsLocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hookbridge_accounts_locked_total",
			Help: "Total number of accounts locked by the usage throttle",
		},
	)

	// Queue metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hookbridge_queue_depth",
			Help: "Current depth of each relay queue",
		},
		[]string{"queue"},
	)
)
