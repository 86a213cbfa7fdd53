// Package metrics provides Prometheus metrics for the Aster service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks total sync runs by terminal status
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by terminal status",
		},
		[]string{"status"},
	)

	// SyncRunDuration tracks sync run duration in seconds
	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// RecordsReconciledTotal tracks reconciled records by category and outcome
	RecordsReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "sync",
			Name:      "records_reconciled_total",
			Help:      "Total number of records reconciled by category and outcome",
		},
		[]string{"category", "outcome"},
	)

	// InsightRecomputeDuration tracks insight recompute duration
	InsightRecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "insights",
			Name:      "recompute_duration_seconds",
			Help:      "Duration of insight recompute passes in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// InsightsComputedTotal tracks appended insight rows
	InsightsComputedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "insights",
			Name:      "computed_total",
			Help:      "Total number of insight rows appended",
		},
		[]string{"category"},
	)

	// SchedulerSyncsScheduled tracks syncs launched by the scheduler
	SchedulerSyncsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "scheduler",
			Name:      "syncs_scheduled_total",
			Help:      "Total number of syncs launched by the scheduler",
		},
	)

	// CacheInvalidationsTotal tracks overview cache invalidations
	CacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total number of cache invalidations by status",
		},
		[]string{"status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)
)

// RecordSyncRun records a finished sync run
func RecordSyncRun(status string, durationSeconds float64) {
	SyncRunsTotal.WithLabelValues(status).Inc()
	SyncRunDuration.Observe(durationSeconds)
}

// RecordReconciled records reconciliation counts for one category
func RecordReconciled(category string, added, updated, errors int) {
	RecordsReconciledTotal.WithLabelValues(category, "added").Add(float64(added))
	RecordsReconciledTotal.WithLabelValues(category, "updated").Add(float64(updated))
	RecordsReconciledTotal.WithLabelValues(category, "error").Add(float64(errors))
}

// RecordInsightRecompute records an insight recompute pass
func RecordInsightRecompute(durationSeconds float64) {
	InsightRecomputeDuration.Observe(durationSeconds)
}

// RecordInsightComputed records appended insight rows for one category
func RecordInsightComputed(category string, appended int) {
	InsightsComputedTotal.WithLabelValues(category).Add(float64(appended))
}

// RecordCacheInvalidation records a cache invalidation attempt
func RecordCacheInvalidation(status string) {
	CacheInvalidationsTotal.WithLabelValues(status).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
