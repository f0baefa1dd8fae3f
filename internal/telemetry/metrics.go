package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency. Shared across the API process.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "genforge",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// GenerationsCreatedTotal counts generations created, by operation and provider.
var GenerationsCreatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "genforge",
		Subsystem: "generation",
		Name:      "created_total",
		Help:      "Generations created, by operation and provider.",
	},
	[]string{"operation", "provider_id"},
)

// GenerationsTerminalTotal counts generations reaching a terminal status.
var GenerationsTerminalTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "genforge",
		Subsystem: "generation",
		Name:      "terminal_total",
		Help:      "Generations reaching a terminal status, by status.",
	},
	[]string{"status"},
)

// CacheHitsTotal and CacheMissesTotal track dedup/cache lookups.
var (
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genforge",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache/dedup lookup hits, by kind.",
		},
		[]string{"kind"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genforge",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache/dedup lookup misses, by kind.",
		},
		[]string{"kind"},
	)
)

// BillingFinalizedTotal counts billing finalizations by resulting state.
var BillingFinalizedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "genforge",
		Subsystem: "billing",
		Name:      "finalized_total",
		Help:      "Billing finalizations, by resulting billing_state.",
	},
	[]string{"billing_state"},
)

// RetriesEnqueuedTotal counts auto-retries enqueued.
var RetriesEnqueuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "genforge",
		Subsystem: "retry",
		Name:      "enqueued_total",
		Help:      "Auto-retries enqueued by the retry controller.",
	},
)

// PollCycleDuration tracks the wall time of a single status-poll cycle.
var PollCycleDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "genforge",
		Subsystem: "worker",
		Name:      "poll_cycle_duration_seconds",
		Help:      "Duration of a status-poll cycle, by cron name.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"cron"},
)

// AccountReservationsTotal counts account reservation attempts by outcome.
var AccountReservationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "genforge",
		Subsystem: "account",
		Name:      "reservations_total",
		Help:      "Account reservation attempts, by outcome.",
	},
	[]string{"outcome"},
)

// All returns every domain collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		GenerationsCreatedTotal,
		GenerationsTerminalTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		BillingFinalizedTotal,
		RetriesEnqueuedTotal,
		PollCycleDuration,
		AccountReservationsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTP histogram, and every domain collector.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
