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

// EventuallyConsistentAsyncCounter is the non-blocking eventually-consistent
// strategy in its hash layout: all nodes share one delta hash
// counter:{ns}:{c}:deltas, each incrementing its own field. Reads fetch the
// whole hash in one round trip and sum it with the consolidated total.
// Preferred over the flat layout for small node counts.
//
// AddAndGet is Add followed by Get, so the resolved value may include
// concurrent writers' contributions.
type EventuallyConsistentAsyncCounter struct {
	manager   *infra.Manager
	nodeID    string
	markerTTL time.Duration
	logger    *zap.Logger
}

// NewEventuallyConsistentAsyncCounter creates a non-blocking eventually
// consistent counter writing deltas under the given node id.
func NewEventuallyConsistentAsyncCounter(manager *infra.Manager, nodeID string, markerTTL time.Duration, logger *zap.Logger) (*EventuallyConsistentAsyncCounter, error) {
	if manager == nil {
		return nil, core.ConfigError("manager must not be nil")
	}
	if nodeID == "" {
		return nil, core.ConfigError("nodeId is required for the eventually consistent counter")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventuallyConsistentAsyncCounter{
		manager:   manager,
		nodeID:    nodeID,
		markerTTL: markerTTLOrDefault(markerTTL),
		logger:    logger,
	}, nil
}

// Add increments this node's field in the delta hash.
func (c *EventuallyConsistentAsyncCounter) Add(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) *core.Future[core.Void] {
	if err := keys.Validate(namespace, counterName); err != nil {
		return failedFuture[core.Void](core.InvalidArgument(err.Error()))
	}

	return infra.ExecuteAsync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (core.Void, error) {
		return core.Void{}, c.applyDelta(ctx, cmds, namespace, counterName, delta, tok)
	})
}

// AddAndGet applies delta, then resolves with the aggregated value visible
// at read time.
func (c *EventuallyConsistentAsyncCounter) AddAndGet(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) *core.Future[core.CounterResult] {
	if err := keys.Validate(namespace, counterName); err != nil {
		return failedFuture[core.CounterResult](core.InvalidArgument(err.Error()))
	}

	raw := infra.ExecuteAsync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		if err := c.applyDelta(ctx, cmds, namespace, counterName, delta, tok); err != nil {
			return 0, err
		}
		return c.aggregate(ctx, cmds, namespace, counterName)
	})

	return core.Then(raw, func(v int64) (core.CounterResult, error) {
		return core.NewCounterResult(v, core.EventuallyConsistent, tok), nil
	})
}

// Get resolves with the consolidated total plus the summed delta hash.
func (c *EventuallyConsistentAsyncCounter) Get(ctx context.Context, namespace, counterName string) *core.Future[core.CounterResult] {
	if err := keys.Validate(namespace, counterName); err != nil {
		return failedFuture[core.CounterResult](core.InvalidArgument(err.Error()))
	}

	raw := infra.ExecuteAsync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		return c.aggregate(ctx, cmds, namespace, counterName)
	})

	return core.Then(raw, func(v int64) (core.CounterResult, error) {
		return core.NewCounterResult(v, core.EventuallyConsistent, nil), nil
	})
}

// Clear zeroes the total and deletes the delta hash.
func (c *EventuallyConsistentAsyncCounter) Clear(ctx context.Context, namespace, counterName string, tok *token.IdempotencyToken) *core.Future[core.Void] {
	if err := keys.Validate(namespace, counterName); err != nil {
		return failedFuture[core.Void](core.InvalidArgument(err.Error()))
	}

	return infra.ExecuteAsync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (core.Void, error) {
		totalKey := keys.Total(namespace, counterName)
		deltasKey := keys.Deltas(namespace, counterName)

		if tok != nil {
			markerKey := keys.Idempotency(namespace, counterName, tok)
			return core.Void{}, markerClearScript.Run(ctx, cmds, []string{markerKey, totalKey, deltasKey}, ttlSeconds(c.markerTTL)).Err()
		}

		if err := cmds.Set(ctx, totalKey, "0", 0).Err(); err != nil {
			return core.Void{}, err
		}
		return core.Void{}, cmds.Del(ctx, deltasKey).Err()
	})
}

func (c *EventuallyConsistentAsyncCounter) applyDelta(ctx context.Context, cmds redis.Cmdable, namespace, counterName string, delta int64, tok *token.IdempotencyToken) error {
	deltasKey := keys.Deltas(namespace, counterName)

	if tok != nil {
		markerKey := keys.Idempotency(namespace, counterName, tok)
		return markerHIncrScript.Run(ctx, cmds, []string{markerKey, deltasKey}, c.nodeID, delta, ttlSeconds(c.markerTTL)).Err()
	}

	return cmds.HIncrBy(ctx, deltasKey, c.nodeID, delta).Err()
}

func (c *EventuallyConsistentAsyncCounter) aggregate(ctx context.Context, cmds redis.Cmdable, namespace, counterName string) (int64, error) {
	total, err := readInt(ctx, cmds, keys.Total(namespace, counterName))
	if err != nil {
		return 0, err
	}

	fields, err := cmds.HGetAll(ctx, keys.Deltas(namespace, counterName)).Result()
	if err != nil {
		return 0, err
	}

	return total + sumHash(fields), nil
}
