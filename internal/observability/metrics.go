package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the pruning service.
type Metrics struct {
	PruneCalls          *prometheus.CounterVec
	PruneDuration       prometheus.Histogram
	PruningRatio        prometheus.Histogram
	CatalogLoadDuration prometheus.Histogram
	SnapshotArchives    *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	pruneCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_pruning_calls_total",
		Help: "Total pruning calls by table and outcome",
	}, []string{"table", "outcome"})

	pruneDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tessera_pruning_duration_seconds",
		Help:    "Wall time of a single pruning call",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	pruningRatio := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tessera_pruning_ratio",
		Help:    "Fraction of shards eliminated per call, 0 when nothing was pruned",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	catalogLoadDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tessera_catalog_load_duration_seconds",
		Help:    "Wall time of loading one table's shard catalog",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	snapshotArchives := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_snapshot_archive_total",
		Help: "Snapshot archive attempts by outcome",
	}, []string{"outcome"})

	reg.MustRegister(pruneCalls, pruneDuration, pruningRatio, catalogLoadDuration, snapshotArchives)

	return &Metrics{
		PruneCalls:          pruneCalls,
		PruneDuration:       pruneDuration,
		PruningRatio:        pruningRatio,
		CatalogLoadDuration: catalogLoadDuration,
		SnapshotArchives:    snapshotArchives,
	}
}
