// Package metrics defines the Prometheus collectors exported by the sync
// pipeline and served on /metrics by the dashboard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "jobvalidator"

var (
	// APIRequests counts Zuper API calls by endpoint and HTTP status ("error" for transport failures).
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Zuper API requests by endpoint and status.",
	}, []string{"endpoint", "status"})

	// APIDuration observes Zuper API call latency.
	APIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Zuper API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	// APIRetries counts retried requests by endpoint and failure category.
	APIRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "retries_total",
		Help:      "Retried Zuper API requests by failure category.",
	}, []string{"endpoint", "reason"})

	// EnrichFailures counts detail fetches that fell back to the list record.
	EnrichFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "enrich_failures_total",
		Help:      "Detail fetches that kept the list record, by category.",
	}, []string{"category"})

	// SyncJobs counts jobs seen by sync runs by outcome (processed, skipped, failed).
	SyncJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "jobs_total",
		Help:      "Jobs handled by sync runs by outcome.",
	}, []string{"outcome"})

	// FlagsCreated counts validation flags written by type.
	FlagsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "flags_created_total",
		Help:      "Validation flags written by type.",
	}, []string{"flag_type"})

	// BatchDuration observes how long persisting one batch takes.
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "batch_persist_seconds",
		Help:      "Time to persist one batch of jobs.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// SyncRuns counts finished sync runs by mode and outcome.
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Finished sync runs by mode and outcome.",
	}, []string{"mode", "outcome"})

	// LastSyncTimestamp is the unix time of the last finished sync run.
	LastSyncTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "last_completed_timestamp_seconds",
		Help:      "Unix time the last sync run finished.",
	})

	// Notifications counts dispatch attempts by channel and result.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Notification dispatch attempts by channel and result.",
	}, []string{"channel", "result"})

	// HTTPRequests counts dashboard API requests by route and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dashboard",
		Name:      "requests_total",
		Help:      "Dashboard API requests by route and status.",
	}, []string{"route", "status"})
)
