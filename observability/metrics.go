package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	hostMetricsOnce sync.Once
	hostRegistry    *HostMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record RPC
// route activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hourbank",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total RPC requests segmented by module and route.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hourbank",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total RPC errors segmented by module, route, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "hourbank",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hourbank",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the HTTP
// status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// HostMetrics tracks executed calls and committed blocks.
type HostMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
	height  prometheus.Gauge
	commits prometheus.Counter
}

// Host returns the lazily-initialised host metrics registry.
func Host() *HostMetrics {
	hostMetricsOnce.Do(func() {
		hostRegistry = &HostMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hourbank",
				Subsystem: "host",
				Name:      "calls_total",
				Help:      "Executed module calls segmented by module, method and failure kind.",
			}, []string{"module", "method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "hourbank",
				Subsystem: "host",
				Name:      "call_duration_seconds",
				Help:      "Execution latency of module calls including the atomic commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module"}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "hourbank",
				Subsystem: "host",
				Name:      "height",
				Help:      "Current logical height supplied to the modules.",
			}),
			commits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "hourbank",
				Subsystem: "host",
				Name:      "commits_total",
				Help:      "State roots persisted to disk.",
			}),
		}
		prometheus.MustRegister(hostRegistry.calls, hostRegistry.latency, hostRegistry.height, hostRegistry.commits)
	})
	return hostRegistry
}

// ObserveCall records one executed call. outcome is "success" or the failure
// kind.
func (m *HostMetrics) ObserveCall(module, method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	if outcome == "" {
		outcome = "error"
	}
	m.calls.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module).Observe(duration.Seconds())
}

// SetHeight publishes the current height.
func (m *HostMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

// RecordCommit increments the commit counter.
func (m *HostMetrics) RecordCommit() {
	if m == nil {
		return
	}
	m.commits.Inc()
}
