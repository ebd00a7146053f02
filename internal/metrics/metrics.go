// Package metrics exposes Prometheus instrumentation for the sync core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feesync_items_synced_total",
		Help: "Queue items acknowledged by the remote",
	}, []string{"entity_type"})

	ItemsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feesync_items_failed_total",
		Help: "Queue item attempts that failed transiently or permanently",
	}, []string{"entity_type", "kind"})

	ConflictsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feesync_conflicts_total",
		Help: "Version conflicts reported by the remote",
	}, []string{"entity_type"})

	OutboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feesync_outbox_backlog",
		Help: "Queue items not yet acknowledged by the remote",
	})

	SyncPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feesync_pass_duration_seconds",
		Help:    "Time spent draining the outbox in one pass",
		Buckets: prometheus.DefBuckets,
	})

	SyncPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feesync_passes_total",
		Help: "Sync passes by terminal result",
	}, []string{"result"})
)
