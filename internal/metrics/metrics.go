package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenstream_operations_total",
		Help: "Engine operations, labelled by operation and outcome (ok or the error class).",
	}, []string{"operation", "outcome"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tokenstream_operation_duration_ms",
		Help:    "Engine operation latency in milliseconds, including external calls.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 1000},
	}, []string{"operation"})

	Settled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenstream_settled_amount_total",
		Help: "Token amounts moved out of custody, labelled by token and flow.",
	}, []string{"token", "flow"})

	StreamsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokenstream_streams_created_total",
		Help: "Total number of streams created.",
	})

	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenstream_compensations_total",
		Help: "Reversals of external effects after a failed operation, labelled by result.",
	}, []string{"result"})

	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokenstream_events_published_total",
		Help: "Total number of stream events delivered to sinks.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokenstream_events_dropped_total",
		Help: "Total number of stream events rejected due to a full queue.",
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tokenstream_event_queue_utilization_ratio",
		Help: "Current event queue utilization (0–1).",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokenstream_http_rate_limited_total",
		Help: "Total number of write requests rejected by the rate limiter.",
	})

	ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenstream_config_reloads_total",
		Help: "Configuration reloads, labelled by result.",
	}, []string{"result"})
)
