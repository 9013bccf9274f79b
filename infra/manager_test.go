package infra

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Purpose-Dev/DCounter/core"
)

func testConfig(addr string) *Config {
	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.RetryAttempts = 1
	cfg.RetryWait = time.Millisecond
	return cfg
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)

	m, err := NewManager(testConfig(mr.Addr()), zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewManager_RejectsInvalidConfig(t *testing.T) {
	_, err := NewManager(nil, zap.NewNop(), nil)
	assert.True(t, core.IsCode(err, core.CodeConfigError))

	_, err = NewManager(&Config{}, zap.NewNop(), nil)
	assert.True(t, core.IsCode(err, core.CodeConfigError))
}

func TestNewManager_FailsWhenRedisUnreachable(t *testing.T) {
	cfg := testConfig("127.0.0.1:1")

	_, err := NewManager(cfg, zap.NewNop(), nil)
	assert.True(t, core.IsCode(err, core.CodeRedisError))
}

func TestExecuteSync_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := ExecuteSync(m, ctx, func(ctx context.Context, cmds redis.Cmdable) (struct{}, error) {
		return struct{}{}, cmds.Set(ctx, "greeting", "hello", 0).Err()
	})
	require.NoError(t, err)

	got, err := ExecuteSync(m, ctx, func(ctx context.Context, cmds redis.Cmdable) (string, error) {
		return cmds.Get(ctx, "greeting").Result()
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestExecuteSync_RetriesBeforeFailing(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(mr.Addr())
	cfg.RetryAttempts = 3

	m, err := NewManager(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	var attempts int32
	_, err = ExecuteSync(m, context.Background(), func(ctx context.Context, cmds redis.Cmdable) (struct{}, error) {
		atomic.AddInt32(&attempts, 1)
		return struct{}{}, errors.New("transient failure")
	})

	assert.True(t, core.IsCode(err, core.CodeRedisError))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestExecuteSync_RetrySucceedsMidway(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(mr.Addr())
	cfg.RetryAttempts = 3

	m, err := NewManager(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	var attempts int32
	v, err := ExecuteSync(m, context.Background(), func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			return 0, errors.New("transient failure")
		}
		return cmds.IncrBy(ctx, "retried", 5).Result()
	})

	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestExecuteSync_SlowCallStillSucceeds(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(mr.Addr())
	cfg.SlowCallThreshold = time.Nanosecond

	m, err := NewManager(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	v, err := ExecuteSync(m, context.Background(), func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		return cmds.IncrBy(ctx, "slow", 1).Result()
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()

	cfg := testConfig(addr)
	cfg.CircuitOpenDuration = 100 * time.Millisecond

	m, err := NewManager(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	mr.Close()

	// Drive the breaker past its threshold: >=10 calls, >=50% failures.
	for i := 0; i < 10; i++ {
		_, err := ExecuteSync(m, context.Background(), func(ctx context.Context, cmds redis.Cmdable) (struct{}, error) {
			return struct{}{}, cmds.Get(ctx, "x").Err()
		})
		require.Error(t, err)
	}

	// The breaker is open: the next call fails fast without reaching Redis.
	_, err = ExecuteSync(m, context.Background(), func(ctx context.Context, cmds redis.Cmdable) (struct{}, error) {
		t.Fatal("function must not run while the breaker is open")
		return struct{}{}, nil
	})
	assert.True(t, core.IsCode(err, core.CodeRedisError))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	// Bring the backend back and wait out the open state; the half-open
	// breaker admits the trial call, which succeeds.
	mr2 := miniredis.NewMiniRedis()
	require.NoError(t, mr2.StartAddr(addr))
	t.Cleanup(mr2.Close)

	time.Sleep(150 * time.Millisecond)

	v, err := ExecuteSync(m, context.Background(), func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		return cmds.IncrBy(ctx, "recovered", 1).Result()
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestExecuteAsync_ResolvesFuture(t *testing.T) {
	m := newTestManager(t)

	future := ExecuteAsync(m, context.Background(), func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		return cmds.IncrBy(ctx, "async", 3).Result()
	})

	v, err := future.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestExecuteAsync_FailsFutureOnError(t *testing.T) {
	m := newTestManager(t)

	future := ExecuteAsync(m, context.Background(), func(ctx context.Context, cmds redis.Cmdable) (struct{}, error) {
		return struct{}{}, errors.New("command failed")
	})

	_, err := future.Get(context.Background())
	assert.True(t, core.IsCode(err, core.CodeRedisError))
}

func TestManager_CloseStopsThePool(t *testing.T) {
	mr := miniredis.RunT(t)
	m, err := NewManager(testConfig(mr.Addr()), zap.NewNop(), nil)
	require.NoError(t, err)

	require.NoError(t, m.Close())

	future := ExecuteAsync(m, context.Background(), func(ctx context.Context, cmds redis.Cmdable) (struct{}, error) {
		return struct{}{}, nil
	})
	_, err = future.Get(context.Background())
	assert.Error(t, err)
}
