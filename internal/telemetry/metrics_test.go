package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
	if m.ActiveRequests == nil {
		t.Error("ActiveRequests is nil")
	}
	if m.CacheHits == nil {
		t.Error("CacheHits is nil")
	}
	if m.CacheMisses == nil {
		t.Error("CacheMisses is nil")
	}
	if m.DBHits == nil {
		t.Error("DBHits is nil")
	}
	if m.FallbackCalls == nil {
		t.Error("FallbackCalls is nil")
	}
	if m.FallbackOK == nil {
		t.Error("FallbackOK is nil")
	}
	if m.FallbackFail == nil {
		t.Error("FallbackFail is nil")
	}
	if m.RateLimitRejects == nil {
		t.Error("RateLimitRejects is nil")
	}
	if m.CircuitBreakerState == nil {
		t.Error("CircuitBreakerState is nil")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected at least one metric family")
	}
}

func TestNewMetricsIncrement(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("POST", "/translate", "200").Inc()
	m.CacheHits.WithLabelValues("origin").Inc()
	m.CacheMisses.WithLabelValues("edge").Inc()
	m.DBHits.Inc()
	m.FallbackCalls.Inc()
	m.FallbackOK.Inc()
	m.FallbackFail.WithLabelValues("timeout").Inc()
	m.ActiveRequests.Set(5)
	m.RequestDuration.WithLabelValues("POST", "/translate").Observe(0.123)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather after increment: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	want := []string{
		"dhkalign_requests_total",
		"dhkalign_cache_hits_total",
		"dhkalign_cache_misses_total",
		"dhkalign_db_hit_total",
		"dhkalign_fallback_call_total",
		"dhkalign_fallback_ok_total",
		"dhkalign_fallback_fail_total",
		"dhkalign_active_requests",
		"dhkalign_request_duration_seconds",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("missing metric %q in gathered families", name)
		}
	}
}

// SetupTracing is not unit-tested because it requires a gRPC connection
// to an OTLP collector, which is integration-test territory.
