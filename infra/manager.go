package infra

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Purpose-Dev/DCounter/core"
	"github.com/Purpose-Dev/DCounter/internal/workerpool"
	"github.com/Purpose-Dev/DCounter/metrics"
)

// errSlowCall is returned to the circuit breaker when a call succeeded but
// exceeded the slow-call threshold, so slow calls count against the failure
// rate without failing the caller.
var errSlowCall = errors.New("redis call exceeded slow-call threshold")

// Manager provides pooled, retrying, circuit-broken access to the
// sentinel-discovered Redis primary.
//
// It owns the client, the connection pool and the resilience policy. Each
// command an execution issues borrows a connection from the client's pool
// and returns it when the command completes; an execution does not hold a
// single connection for its whole duration. A borrow waits up to the
// configured max wait and then fails. Blocking executions run on the caller's goroutine;
// non-blocking executions run on an internal worker pool and resolve a
// Future exactly once on every path.
type Manager struct {
	cfg     *Config
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	pool    *workerpool.Pool
	logger  *zap.Logger
	mets    *metrics.Metrics
	taskSeq uint64
}

// NewManager creates a manager and verifies connectivity with a ping.
func NewManager(cfg *Config, logger *zap.Logger, mets *metrics.Metrics) (*Manager, error) {
	if cfg == nil {
		return nil, core.ConfigError("config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, core.NewCounterError("invalid manager configuration", core.CodeConfigError, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var tlsConfig *tls.Config
	if cfg.TLSEnabled {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	var client *redis.Client
	if len(cfg.Sentinels) > 0 {
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.Sentinels,
			Password:      cfg.Password,
			DB:            cfg.DB,
			DialTimeout:   cfg.CommandTimeout,
			ReadTimeout:   cfg.CommandTimeout,
			WriteTimeout:  cfg.CommandTimeout,
			PoolSize:      cfg.MaxTotalConnections,
			MaxIdleConns:  cfg.MaxIdleConnections,
			MinIdleConns:  cfg.MinIdleConnections,
			PoolTimeout:   cfg.MaxWait,
			MaxRetries:    -1, // retries are handled by the manager
			TLSConfig:     tlsConfig,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.CommandTimeout,
			ReadTimeout:  cfg.CommandTimeout,
			WriteTimeout: cfg.CommandTimeout,
			PoolSize:     cfg.MaxTotalConnections,
			MaxIdleConns: cfg.MaxIdleConnections,
			MinIdleConns: cfg.MinIdleConnections,
			PoolTimeout:  cfg.MaxWait,
			MaxRetries:   -1,
			TLSConfig:    tlsConfig,
		})
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, core.RedisError("failed to connect to Redis", err)
	}

	m := &Manager{
		cfg:    cfg,
		client: client,
		logger: logger,
		mets:   mets,
	}

	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis",
		MaxRequests: uint32(cfg.HalfOpenCalls),
		Timeout:     cfg.CircuitOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if mets != nil {
				mets.BreakerTransitions.WithLabelValues(from.String(), to.String()).Inc()
				mets.BreakerState.Set(breakerStateValue(to))
			}
		},
	})

	m.pool = workerpool.New(workerpool.Config{
		Name:       "redis-async",
		MaxWorkers: cfg.AsyncWorkers,
		QueueSize:  cfg.AsyncQueueSize,
		Logger:     logger,
	})

	logger.Info("Redis manager initialized",
		zap.Strings("sentinels", cfg.Sentinels),
		zap.String("master_name", cfg.MasterName),
		zap.String("addr", cfg.Addr),
		zap.Bool("tls", cfg.TLSEnabled))

	return m, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// ExecuteSync decorates fn with retry then the circuit breaker and runs it
// on the caller's goroutine against the pooled client. Any failure is
// surfaced as a *core.CounterError with code REDIS_ERROR.
func ExecuteSync[T any](m *Manager, ctx context.Context, fn func(context.Context, redis.Cmdable) (T, error)) (T, error) {
	return executeSync(m, ctx, "sync", fn)
}

func executeSync[T any](m *Manager, ctx context.Context, mode string, fn func(context.Context, redis.Cmdable) (T, error)) (T, error) {
	var value T
	start := time.Now()

	_, err := m.breaker.Execute(func() (interface{}, error) {
		callStart := time.Now()

		err := retry.Do(
			func() error {
				opCtx := ctx
				var cancel context.CancelFunc
				if m.cfg.CommandTimeout > 0 {
					opCtx, cancel = context.WithTimeout(ctx, m.cfg.CommandTimeout)
					defer cancel()
				}
				v, err := fn(opCtx, m.client)
				if err != nil {
					return err
				}
				value = v
				return nil
			},
			retry.Attempts(uint(m.cfg.RetryAttempts)),
			retry.Delay(m.cfg.RetryWait),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
			retry.Context(ctx),
		)
		if err != nil {
			return nil, err
		}
		if m.cfg.SlowCallThreshold > 0 && time.Since(callStart) > m.cfg.SlowCallThreshold {
			return nil, errSlowCall
		}
		return nil, nil
	})

	if m.mets != nil {
		m.mets.RedisCallDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		// A slow call succeeded from the caller's point of view; it only
		// counts against the breaker.
		if errors.Is(err, errSlowCall) {
			if m.mets != nil {
				m.mets.RedisSlowCalls.Inc()
				m.mets.RedisCalls.WithLabelValues(mode, "slow").Inc()
			}
			return value, nil
		}
		if m.mets != nil {
			m.mets.RedisCalls.WithLabelValues(mode, "error").Inc()
		}
		m.logger.Error("Redis operation failed", zap.Error(err))
		var zero T
		return zero, core.RedisError("redis operation failed", err)
	}

	if m.mets != nil {
		m.mets.RedisCalls.WithLabelValues(mode, "ok").Inc()
	}
	return value, nil
}

// ExecuteAsync submits the same retry + circuit-breaker composition to the
// manager's worker pool and returns a Future resolved exactly once, whether
// the function succeeds, fails or the pool rejects the task. A caller that
// stops observing the future leaks nothing: the execution still runs to
// completion and each connection its commands borrowed is back in the pool.
func ExecuteAsync[T any](m *Manager, ctx context.Context, fn func(context.Context, redis.Cmdable) (T, error)) *core.Future[T] {
	future := core.NewFuture[T]()

	task := workerpool.Task{
		ID:      fmt.Sprintf("redis-async-%d", atomic.AddUint64(&m.taskSeq, 1)),
		Context: ctx,
		Fn: func(taskCtx context.Context) error {
			value, err := executeSync(m, taskCtx, "async", fn)
			if err != nil {
				future.Fail(err)
				return err
			}
			future.Complete(value)
			return nil
		},
	}

	if err := m.pool.Submit(task); err != nil {
		future.Fail(core.RedisError("unable to submit redis task", err))
	}
	return future
}

// Ping checks backing-store connectivity, for health checks.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return core.RedisError("redis ping failed", err)
	}
	return nil
}

// PoolStats exposes worker-pool statistics for diagnostics.
func (m *Manager) PoolStats() workerpool.Stats {
	return m.pool.Stats()
}

// Close drains the worker pool and shuts down the client.
func (m *Manager) Close() error {
	poolErr := m.pool.Stop(5 * time.Second)
	clientErr := m.client.Close()
	m.logger.Info("Redis manager closed")
	if poolErr != nil {
		return poolErr
	}
	return clientErr
}
