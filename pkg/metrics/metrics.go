// Package metrics provides Prometheus instrumentation for the queue service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waitroom_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "waitroom_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Coordinator metrics.
var (
	CoordinatorsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "waitroom_coordinators_live",
		Help: "Number of queue coordinators currently resident in memory.",
	})

	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waitroom_queue_actions_total",
		Help: "Total number of queue actions processed, by action and result.",
	}, []string{"action", "result"})

	MailboxRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waitroom_mailbox_rejections_total",
		Help: "Actions rejected because a coordinator mailbox was full.",
	})

	SnapshotBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waitroom_snapshot_broadcasts_total",
		Help: "Snapshots broadcast to subscribers.",
	})
)

// Subscriber metrics.
var (
	SubscribersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "waitroom_subscribers_active",
		Help: "Number of active snapshot stream subscribers.",
	})

	SubscribersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waitroom_subscribers_dropped_total",
		Help: "Subscribers dropped for not keeping up with broadcasts.",
	})
)

// Notification metrics.
var (
	PushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waitroom_pushes_total",
		Help: "Web push deliveries by kind and outcome.",
	}, []string{"kind", "outcome"})
)

// Analytics metrics.
var (
	EventsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waitroom_events_recorded_total",
		Help: "Analytics events appended to the event log.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waitroom_events_dropped_total",
		Help: "Analytics events dropped because the recorder was saturated.",
	})
)
