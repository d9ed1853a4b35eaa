// Package monitoring provides Prometheus metrics for the session pool, the
// result cache, and the script sandbox.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Session pool
	SessionsActive   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsSwept    prometheus.Counter
	ExecuteRetries   prometheus.Counter
	ExecuteExhausted prometheus.Counter

	// Script sandbox
	ScriptRuns     *prometheus.CounterVec
	ScriptTimeouts prometheus.Counter

	// Result cache
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	SnapshotWrites prometheus.Counter
	SnapshotBytes  prometheus.Gauge
}

// NewMetrics creates a metrics collector registered on reg. A nil reg uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scenic_sessions_active",
			Help: "Number of live browser sessions in the pool",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenic_sessions_created_total",
			Help: "Total number of browser sessions created",
		}),
		SessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenic_sessions_swept_total",
			Help: "Total number of sessions reclaimed by the staleness sweep",
		}),
		ExecuteRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenic_execute_retries_total",
			Help: "Total number of session-fault retries in pool execute",
		}),
		ExecuteExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenic_execute_exhausted_total",
			Help: "Total number of executions that exhausted all retries",
		}),
		ScriptRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scenic_script_runs_total",
			Help: "Total script runs by terminal status",
		}, []string{"status"}),
		ScriptTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenic_script_timeouts_total",
			Help: "Total script runs cancelled by the deadline",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenic_cache_hits_total",
			Help: "Total result cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenic_cache_misses_total",
			Help: "Total result cache misses",
		}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenic_cache_evictions_total",
			Help: "Total entries removed by TTL expiry or LRU eviction",
		}),
		SnapshotWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenic_cache_snapshot_writes_total",
			Help: "Total cache snapshot files written",
		}),
		SnapshotBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scenic_cache_snapshot_bytes",
			Help: "Size in bytes of the last written cache snapshot",
		}),
	}
}
