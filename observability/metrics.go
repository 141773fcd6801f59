package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ModuleMetricsRegistry records RPC module activity segmented by module and
// method.
type ModuleMetricsRegistry struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *ModuleMetricsRegistry
)

// ModuleMetrics returns the lazily-initialised module metrics registry.
func ModuleMetrics() *ModuleMetricsRegistry {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &ModuleMetricsRegistry{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "flywheel",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "flywheel",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total failed JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "flywheel",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "JSON-RPC request latency segmented by module and method.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records a completed request.
func (r *ModuleMetricsRegistry) Observe(module, method string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		r.errors.WithLabelValues(module, method).Inc()
	}
	r.requests.WithLabelValues(module, method, outcome).Inc()
	r.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}
