package monitoring

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	promcollectors "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options control monitoring module configuration.
type Options struct {
	// Namespace prefixes every metric. Defaults to "l2cache".
	Namespace string
	// DisableGoCollector skips the Go runtime collector.
	DisableGoCollector bool
	// DisableProcessCollector skips the process collector.
	DisableProcessCollector bool
}

// Module owns the cache metrics registry, the summary counters behind /api/monitoring/summary and
// the health probes.
type Module struct {
	registry *prometheus.Registry
	metrics  *collectors
	stats    *statStore
	health   *HealthManager
}

// NewModule constructs a monitoring module with its own Prometheus registry.
func NewModule(opts Options) (*Module, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "l2cache"
	}

	metrics := newCollectors(namespace)
	toRegister := metrics.all()
	if !opts.DisableGoCollector {
		toRegister = append(toRegister, promcollectors.NewGoCollector())
	}
	if !opts.DisableProcessCollector {
		toRegister = append(toRegister, promcollectors.NewProcessCollector(promcollectors.ProcessCollectorOpts{}))
	}

	registry := prometheus.NewRegistry()
	for _, collector := range toRegister {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return &Module{
		registry: registry,
		metrics:  metrics,
		stats:    newStatStore(),
		health:   NewHealthManager(),
	}, nil
}

// Registry exposes the underlying Prometheus registry.
func (m *Module) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the module's metrics. A scrape keeps going past a failing collector so one bad
// series does not hide the cache counters.
func (m *Module) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}

// Health exposes the health manager responsible for liveness and readiness probes.
func (m *Module) Health() *HealthManager {
	if m == nil {
		return nil
	}
	return m.health
}

var globalModule atomic.Pointer[Module]

// SetModule installs the process-wide module used by the Record* helpers. A nil module is
// ignored.
func SetModule(module *Module) {
	if module == nil {
		return
	}
	globalModule.Store(module)
}

func ensureModule() *Module {
	return globalModule.Load()
}
