package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch metrics
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_dispatches_total",
			Help: "Total number of events dispatched",
		},
		[]string{"event_type"},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhooks_dispatch_duration_seconds",
			Help:    "Time from dispatch start until the report is assembled",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Delivery metrics
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_deliveries_total",
			Help: "Total number of delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhooks_delivery_duration_seconds",
			Help:    "Duration of a single delivery attempt in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Registry metrics
	Subscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "webhooks_subscriptions",
			Help: "Registered subscriptions by state",
		},
		[]string{"state"},
	)

	// Async queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhooks_async_queue_depth",
			Help: "Dispatch requests waiting for a worker",
		},
	)

	QueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhooks_async_queue_dropped_total",
			Help: "Dispatch requests dropped because the queue was full",
		},
	)
)
