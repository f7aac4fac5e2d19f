// Package telemetry provides observability primitives for the edge and
// origin services: Prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors shared by the edge and origin
// processes. Both services register the same collector set; a process
// that never exercises a given metric simply never increments it.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge

	CacheHits   *prometheus.CounterVec // labels: layer (edge, origin)
	CacheMisses *prometheus.CounterVec // labels: layer (edge, origin)

	DBHits           prometheus.Counter
	FallbackCalls    prometheus.Counter
	FallbackOK       prometheus.Counter
	FallbackFail     *prometheus.CounterVec // labels: reason (circuit_open, lm_error, empty_response)
	RateLimitRejects *prometheus.CounterVec // labels: kind (quota, ip, temp_ban)

	CircuitBreakerState   *prometheus.GaugeVec   // labels: endpoint (0=closed, 1=open, 2=half_open)
	CircuitBreakerRejects *prometheus.CounterVec // labels: endpoint
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhkalign",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "dhkalign",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dhkalign",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhkalign",
			Name:      "cache_hits_total",
			Help:      "Total response cache hits.",
		}, []string{"layer"}),

		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhkalign",
			Name:      "cache_misses_total",
			Help:      "Total response cache misses.",
		}, []string{"layer"}),

		DBHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dhkalign",
			Name:      "db_hit_total",
			Help:      "Total Phrase Store lookups that resolved without LM fallback.",
		}),

		FallbackCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dhkalign",
			Name:      "fallback_call_total",
			Help:      "Total LM fallback calls attempted.",
		}),

		FallbackOK: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dhkalign",
			Name:      "fallback_ok_total",
			Help:      "Total LM fallback calls that returned a usable translation.",
		}),

		FallbackFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhkalign",
			Name:      "fallback_fail_total",
			Help:      "Total LM fallback failures by reason.",
		}, []string{"reason"}),

		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhkalign",
			Name:      "ratelimit_rejects_total",
			Help:      "Total rate limit rejections.",
		}, []string{"kind"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dhkalign",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per guarded endpoint (0=closed, 1=open, 2=half_open).",
		}, []string{"endpoint"}),

		CircuitBreakerRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhkalign",
			Name:      "circuit_breaker_rejects_total",
			Help:      "Total requests rejected by circuit breaker.",
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.CacheHits,
		m.CacheMisses,
		m.DBHits,
		m.FallbackCalls,
		m.FallbackOK,
		m.FallbackFail,
		m.RateLimitRejects,
		m.CircuitBreakerState,
		m.CircuitBreakerRejects,
	)

	return m
}
