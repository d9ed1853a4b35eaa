package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SessionsActive.Inc()
	m.SessionsCreated.Inc()
	m.CacheHits.Add(3)
	m.ScriptRuns.WithLabelValues("success").Inc()

	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("sessions_active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheHits); got != 3 {
		t.Errorf("cache_hits = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.ScriptRuns.WithLabelValues("success")); got != 1 {
		t.Errorf("script_runs{success} = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("No metric families registered")
	}
}

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	a.SessionsCreated.Inc()
	if got := testutil.ToFloat64(b.SessionsCreated); got != 0 {
		t.Errorf("Registries share state: %v", got)
	}
}
