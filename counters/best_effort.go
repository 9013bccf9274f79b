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

// BestEffortCounter is the blocking best-effort strategy: one integer key
// per counter, mutated with atomic INCRBY. Lowest latency, no global
// ordering guarantee.
//
// With an idempotency token, a pre-existing marker means the mutation has
// already been observed; AddAndGet then returns the current value without
// applying the delta, and Clear is a no-op.
type BestEffortCounter struct {
	manager   *infra.Manager
	markerTTL time.Duration
	logger    *zap.Logger
}

// NewBestEffortCounter creates a blocking best-effort counter.
func NewBestEffortCounter(manager *infra.Manager, markerTTL time.Duration, logger *zap.Logger) (*BestEffortCounter, error) {
	if manager == nil {
		return nil, core.ConfigError("manager must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BestEffortCounter{
		manager:   manager,
		markerTTL: markerTTLOrDefault(markerTTL),
		logger:    logger,
	}, nil
}

// Add applies delta to the counter.
func (c *BestEffortCounter) Add(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) error {
	_, err := c.AddAndGet(ctx, namespace, counterName, delta, tok)
	return err
}

// AddAndGet applies delta and returns the post-increment value. On a marker
// hit the delta is not applied and the current value is returned.
func (c *BestEffortCounter) AddAndGet(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) (core.CounterResult, error) {
	if err := keys.Validate(namespace, counterName); err != nil {
		return core.CounterResult{}, core.InvalidArgument(err.Error())
	}

	value, err := infra.ExecuteSync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		counterKey := keys.Counter(namespace, counterName)

		if tok != nil {
			markerKey := keys.Idempotency(namespace, counterName, tok)
			cmd := markerIncrScript.Run(ctx, cmds, []string{markerKey, counterKey}, delta, ttlSeconds(c.markerTTL))
			_, v, err := pairResult(cmd)
			return v, err
		}

		return cmds.IncrBy(ctx, counterKey, delta).Result()
	})
	if err != nil {
		c.logger.Error("Best-effort addAndGet failed",
			zap.String("namespace", namespace),
			zap.String("counter", counterName),
			zap.Error(err))
		return core.CounterResult{}, err
	}

	return core.NewCounterResult(value, core.BestEffort, tok), nil
}

// Get reads the counter; an absent key reads as zero.
func (c *BestEffortCounter) Get(ctx context.Context, namespace, counterName string) (core.CounterResult, error) {
	if err := keys.Validate(namespace, counterName); err != nil {
		return core.CounterResult{}, core.InvalidArgument(err.Error())
	}

	value, err := infra.ExecuteSync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		return readInt(ctx, cmds, keys.Counter(namespace, counterName))
	})
	if err != nil {
		return core.CounterResult{}, err
	}

	return core.NewCounterResult(value, core.BestEffort, nil), nil
}

// Clear resets the counter to zero. With a token, a marker hit makes the
// clear a no-op.
func (c *BestEffortCounter) Clear(ctx context.Context, namespace, counterName string, tok *token.IdempotencyToken) error {
	if err := keys.Validate(namespace, counterName); err != nil {
		return core.InvalidArgument(err.Error())
	}

	_, err := infra.ExecuteSync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (struct{}, error) {
		counterKey := keys.Counter(namespace, counterName)

		if tok != nil {
			markerKey := keys.Idempotency(namespace, counterName, tok)
			return struct{}{}, markerClearScript.Run(ctx, cmds, []string{markerKey, counterKey}, ttlSeconds(c.markerTTL)).Err()
		}

		return struct{}{}, cmds.Set(ctx, counterKey, "0", 0).Err()
	})
	if err != nil {
		c.logger.Error("Best-effort clear failed",
			zap.String("namespace", namespace),
			zap.String("counter", counterName),
			zap.Error(err))
	}
	return err
}
