package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics exposed by the library.
type Metrics struct {
	// Backing-store call metrics
	RedisCalls        *prometheus.CounterVec
	RedisCallDuration *prometheus.HistogramVec
	RedisSlowCalls    prometheus.Counter

	// Circuit breaker metrics
	BreakerState       prometheus.Gauge
	BreakerTransitions *prometheus.CounterVec

	// Rollup metrics
	RollupRuns     *prometheus.CounterVec
	RollupKeys     prometheus.Counter
	RollupDuration prometheus.Histogram
}

// New creates and registers the library metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates the library metrics on a caller-supplied registerer.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RedisCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dcounter_redis_calls_total",
				Help: "Total number of backing-store executions",
			},
			[]string{"mode", "status"},
		),

		RedisCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dcounter_redis_call_duration_seconds",
				Help:    "Duration of backing-store executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),

		RedisSlowCalls: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dcounter_redis_slow_calls_total",
				Help: "Total number of executions slower than the slow-call threshold",
			},
		),

		BreakerState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dcounter_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
		),

		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dcounter_breaker_transitions_total",
				Help: "Total number of circuit breaker state transitions",
			},
			[]string{"from", "to"},
		),

		RollupRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dcounter_rollup_runs_total",
				Help: "Total number of namespace rollup ticks",
			},
			[]string{"status"},
		),

		RollupKeys: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dcounter_rollup_keys_total",
				Help: "Total number of delta accumulators folded by rollups",
			},
		),

		RollupDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dcounter_rollup_duration_seconds",
				Help:    "Duration of namespace rollup ticks",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}
