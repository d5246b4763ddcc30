package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incentive_dashboard",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "incentive_dashboard",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "incentive_dashboard",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Oracle fetch metrics ───────────────────────────────────────────────

var (
	OracleRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incentive_dashboard",
		Subsystem: "oracle",
		Name:      "requests_total",
		Help:      "Total number of oracle fetch attempts per oracle.",
	}, []string{"oracle", "status"})

	OracleRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "incentive_dashboard",
		Subsystem: "oracle",
		Name:      "request_duration_seconds",
		Help:      "Duration of oracle fetches per oracle in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"oracle"})

	OracleLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "incentive_dashboard",
		Subsystem: "oracle",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful fetch per oracle.",
	}, []string{"oracle"})
)

// ── Refresh / snapshot metrics ─────────────────────────────────────────

var (
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incentive_dashboard",
		Subsystem: "refresh",
		Name:      "total",
		Help:      "Total dashboard refresh runs by trigger and status.",
	}, []string{"trigger", "status"})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "incentive_dashboard",
		Subsystem: "refresh",
		Name:      "duration_seconds",
		Help:      "Duration of a full dashboard refresh in seconds.",
		Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300},
	})

	SnapshotAge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "incentive_dashboard",
		Subsystem: "snapshot",
		Name:      "age_seconds",
		Help:      "Age of the cached dashboard snapshot in seconds.",
	})

	SnapshotTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "incentive_dashboard",
		Subsystem: "snapshot",
		Name:      "timestamp_millis",
		Help:      "Build timestamp of the cached dashboard snapshot.",
	})
)

// ── AI enrichment metrics ──────────────────────────────────────────────

var (
	EnrichmentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incentive_dashboard",
		Subsystem: "enrichment",
		Name:      "total",
		Help:      "AI enrichment outcomes (applied, failed, deduplicated, skipped).",
	}, []string{"status"})
)
