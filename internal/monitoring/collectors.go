package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	cacheRequests       *prometheus.CounterVec
	cachePuts           *prometheus.CounterVec
	cacheEvictions      *prometheus.CounterVec
	storeErrors         *prometheus.CounterVec
	timestampTouches    *prometheus.CounterVec
	regionTimestamp     *prometheus.GaugeVec
	regionInfo          *prometheus.GaugeVec
	databaseQueries     *prometheus.CounterVec
	apiLatency          *prometheus.HistogramVec
	maintenanceRuns     *prometheus.CounterVec
	maintenanceDuration *prometheus.HistogramVec
	maintenanceLastRun  *prometheus.GaugeVec
}

func newCollectors(namespace string) *collectors {
	buckets := prometheus.DefBuckets

	return &collectors{
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Second-level cache lookups by region kind, region and result",
			},
			[]string{"kind", "region", "result"},
		),
		cachePuts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_puts_total",
				Help:      "Entries written to the second-level cache",
			},
			[]string{"kind", "region"},
		),
		cacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Second-level cache evictions by scope (entry or region)",
			},
			[]string{"kind", "region", "scope"},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_store_errors_total",
				Help:      "Physical cache store failures degraded to misses",
			},
			[]string{"operation"},
		),
		timestampTouches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_timestamp_touches_total",
				Help:      "Timestamp region updates by outcome (advanced or rejected)",
			},
			[]string{"region", "result"},
		),
		regionTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_region_last_invalidation",
				Help:      "Logical time of the last invalidating write per region",
			},
			[]string{"region"},
		),
		regionInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_region_info",
				Help:      "Configured cache regions; always 1",
			},
			[]string{"kind", "region"},
		),
		databaseQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "database_queries_total",
				Help:      "Statements issued to the canonical data store",
			},
			[]string{"operation"},
		),
		apiLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_latency_seconds",
				Help:      "API endpoint latency",
				Buckets:   buckets,
			},
			[]string{"method", "path", "status"},
		),
		maintenanceRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_runs_total",
				Help:      "Maintenance job executions",
			},
			[]string{"job", "result"},
		),
		maintenanceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "maintenance_duration_seconds",
				Help:      "Maintenance job duration",
				Buckets:   buckets,
			},
			[]string{"job"},
		),
		maintenanceLastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "maintenance_last_success_timestamp",
				Help:      "Timestamp of the last successful maintenance run (seconds since epoch)",
			},
			[]string{"job"},
		),
	}
}

func (c *collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.cacheRequests,
		c.cachePuts,
		c.cacheEvictions,
		c.storeErrors,
		c.timestampTouches,
		c.regionTimestamp,
		c.regionInfo,
		c.databaseQueries,
		c.apiLatency,
		c.maintenanceRuns,
		c.maintenanceDuration,
		c.maintenanceLastRun,
	}
}

// observeDuration records a duration in seconds on the supplied histogram observer.
func observeDuration(observer prometheus.Observer, d time.Duration) {
	if observer == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	observer.Observe(d.Seconds())
}
