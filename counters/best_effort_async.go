package counters

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Purpose-Dev/DCounter/core"
	"github.com/Purpose-Dev/DCounter/infra"
	"github.com/Purpose-Dev/DCounter/keys"
	"github.com/Purpose-Dev/DCounter/token"
)

// BestEffortAsyncCounter is the non-blocking variant of the best-effort
// strategy. Operations return immediately; the backing-store work runs on a
// manager worker goroutine and the returned futures resolve when it ends.
type BestEffortAsyncCounter struct {
	manager   *infra.Manager
	markerTTL time.Duration
	logger    *zap.Logger
}

// NewBestEffortAsyncCounter creates a non-blocking best-effort counter.
func NewBestEffortAsyncCounter(manager *infra.Manager, markerTTL time.Duration, logger *zap.Logger) (*BestEffortAsyncCounter, error) {
	if manager == nil {
		return nil, core.ConfigError("manager must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BestEffortAsyncCounter{
		manager:   manager,
		markerTTL: markerTTLOrDefault(markerTTL),
		logger:    logger,
	}, nil
}

// Add applies delta to the counter.
func (c *BestEffortAsyncCounter) Add(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) *core.Future[core.Void] {
	return dropValue(c.AddAndGet(ctx, namespace, counterName, delta, tok))
}

// AddAndGet applies delta and resolves with the post-increment value, or
// with the current value on a marker hit.
func (c *BestEffortAsyncCounter) AddAndGet(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) *core.Future[core.CounterResult] {
	if err := keys.Validate(namespace, counterName); err != nil {
		return failedFuture[core.CounterResult](core.InvalidArgument(err.Error()))
	}

	raw := infra.ExecuteAsync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		counterKey := keys.Counter(namespace, counterName)

		if tok != nil {
			markerKey := keys.Idempotency(namespace, counterName, tok)
			cmd := markerIncrScript.Run(ctx, cmds, []string{markerKey, counterKey}, delta, ttlSeconds(c.markerTTL))
			_, v, err := pairResult(cmd)
			return v, err
		}

		return cmds.IncrBy(ctx, counterKey, delta).Result()
	})

	return core.Then(raw, func(v int64) (core.CounterResult, error) {
		return core.NewCounterResult(v, core.BestEffort, tok), nil
	})
}

// Get resolves with the current value; an absent key reads as zero.
func (c *BestEffortAsyncCounter) Get(ctx context.Context, namespace, counterName string) *core.Future[core.CounterResult] {
	if err := keys.Validate(namespace, counterName); err != nil {
		return failedFuture[core.CounterResult](core.InvalidArgument(err.Error()))
	}

	raw := infra.ExecuteAsync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		return readInt(ctx, cmds, keys.Counter(namespace, counterName))
	})

	return core.Then(raw, func(v int64) (core.CounterResult, error) {
		return core.NewCounterResult(v, core.BestEffort, nil), nil
	})
}

// Clear resets the counter to zero. With a token, a marker hit makes the
// clear a no-op.
func (c *BestEffortAsyncCounter) Clear(ctx context.Context, namespace, counterName string, tok *token.IdempotencyToken) *core.Future[core.Void] {
	if err := keys.Validate(namespace, counterName); err != nil {
		return failedFuture[core.Void](core.InvalidArgument(err.Error()))
	}

	raw := infra.ExecuteAsync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (core.Void, error) {
		counterKey := keys.Counter(namespace, counterName)

		if tok != nil {
			markerKey := keys.Idempotency(namespace, counterName, tok)
			return core.Void{}, markerClearScript.Run(ctx, cmds, []string{markerKey, counterKey}, ttlSeconds(c.markerTTL)).Err()
		}

		return core.Void{}, cmds.Set(ctx, counterKey, "0", 0).Err()
	})

	return raw
}
