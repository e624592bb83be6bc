package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ObservationsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherd_observations_ingested_total",
			Help: "Total PWS observations ingested",
		},
	)

	ObservationsFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherd_observations_flagged_total",
			Help: "Observations carrying quality flags, by flag",
		},
		[]string{"flag"},
	)

	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherd_upstream_calls_total",
			Help: "Total forecast upstream calls",
		},
		[]string{"provider", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherd_upstream_latency_seconds",
			Help:    "Forecast upstream call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	CompositionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherd_compositions_total",
			Help: "Hybrid series compositions by result",
		},
		[]string{"result"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherd_cache_lookups_total",
			Help: "Combined-series cache lookups",
		},
		[]string{"outcome"},
	)

	SnapshotWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherd_snapshot_writes_total",
			Help: "Observation store snapshot writes to disk",
		},
		[]string{"status"},
	)
)
