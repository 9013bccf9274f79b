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

// EventuallyConsistentCounter is the blocking eventually-consistent
// strategy in its flat layout: each node increments its own key
// counter:{ns}:{c}:deltas:{node}, so writes from different nodes never
// contend. Reads sum the consolidated total plus every per-node delta found
// by a cursor scan; the periodic rollup folds deltas into the total.
//
// AddAndGet is Add followed by Get: the returned value may include
// concurrent writers' contributions. Callers needing "value after my write"
// should use the accurate strategy.
type EventuallyConsistentCounter struct {
	manager   *infra.Manager
	nodeID    string
	markerTTL time.Duration
	logger    *zap.Logger
}

// NewEventuallyConsistentCounter creates a blocking eventually-consistent
// counter writing deltas under the given node id.
func NewEventuallyConsistentCounter(manager *infra.Manager, nodeID string, markerTTL time.Duration, logger *zap.Logger) (*EventuallyConsistentCounter, error) {
	if manager == nil {
		return nil, core.ConfigError("manager must not be nil")
	}
	if nodeID == "" {
		return nil, core.ConfigError("nodeId is required for the eventually consistent counter")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventuallyConsistentCounter{
		manager:   manager,
		nodeID:    nodeID,
		markerTTL: markerTTLOrDefault(markerTTL),
		logger:    logger,
	}, nil
}

// Add increments this node's delta key.
func (c *EventuallyConsistentCounter) Add(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) error {
	if err := keys.Validate(namespace, counterName); err != nil {
		return core.InvalidArgument(err.Error())
	}

	_, err := infra.ExecuteSync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (struct{}, error) {
		deltaKey := keys.DeltaForNode(namespace, counterName, c.nodeID)

		if tok != nil {
			markerKey := keys.Idempotency(namespace, counterName, tok)
			cmd := markerIncrScript.Run(ctx, cmds, []string{markerKey, deltaKey}, delta, ttlSeconds(c.markerTTL))
			return struct{}{}, cmd.Err()
		}

		return struct{}{}, cmds.IncrBy(ctx, deltaKey, delta).Err()
	})
	if err != nil {
		c.logger.Error("Eventually consistent add failed",
			zap.String("namespace", namespace),
			zap.String("counter", counterName),
			zap.Error(err))
	}
	return err
}

// AddAndGet is Add followed by Get; the value reflects every delta visible
// at read time, not just the caller's.
func (c *EventuallyConsistentCounter) AddAndGet(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) (core.CounterResult, error) {
	if err := c.Add(ctx, namespace, counterName, delta, tok); err != nil {
		return core.CounterResult{}, err
	}
	result, err := c.Get(ctx, namespace, counterName)
	if err != nil {
		return core.CounterResult{}, err
	}
	result.Token = tok
	return result, nil
}

// Get sums the consolidated total plus all per-node deltas found by a
// cursor scan.
func (c *EventuallyConsistentCounter) Get(ctx context.Context, namespace, counterName string) (core.CounterResult, error) {
	if err := keys.Validate(namespace, counterName); err != nil {
		return core.CounterResult{}, core.InvalidArgument(err.Error())
	}

	value, err := infra.ExecuteSync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		total, err := readInt(ctx, cmds, keys.Total(namespace, counterName))
		if err != nil {
			return 0, err
		}

		deltaSum, err := c.sumDeltas(ctx, cmds, keys.DeltaPattern(namespace, counterName))
		if err != nil {
			return 0, err
		}

		return total + deltaSum, nil
	})
	if err != nil {
		return core.CounterResult{}, err
	}

	return core.NewCounterResult(value, core.EventuallyConsistent, nil), nil
}

// Clear zeroes the total and deletes every delta entry for the counter.
func (c *EventuallyConsistentCounter) Clear(ctx context.Context, namespace, counterName string, tok *token.IdempotencyToken) error {
	if err := keys.Validate(namespace, counterName); err != nil {
		return core.InvalidArgument(err.Error())
	}

	_, err := infra.ExecuteSync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (struct{}, error) {
		totalKey := keys.Total(namespace, counterName)
		deltasKey := keys.Deltas(namespace, counterName)

		if tok != nil {
			markerKey := keys.Idempotency(namespace, counterName, tok)
			cmd := markerClearScript.Run(ctx, cmds, []string{markerKey, totalKey, deltasKey}, ttlSeconds(c.markerTTL))
			applied, err := cmd.Int64()
			if err != nil {
				return struct{}{}, err
			}
			if applied == 0 {
				return struct{}{}, nil
			}
			return struct{}{}, c.deleteDeltas(ctx, cmds, keys.DeltaPattern(namespace, counterName))
		}

		if err := cmds.Set(ctx, totalKey, "0", 0).Err(); err != nil {
			return struct{}{}, err
		}
		if err := cmds.Del(ctx, deltasKey).Err(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, c.deleteDeltas(ctx, cmds, keys.DeltaPattern(namespace, counterName))
	})
	if err != nil {
		c.logger.Error("Eventually consistent clear failed",
			zap.String("namespace", namespace),
			zap.String("counter", counterName),
			zap.Error(err))
	}
	return err
}

func (c *EventuallyConsistentCounter) sumDeltas(ctx context.Context, cmds redis.Cmdable, pattern string) (int64, error) {
	var sum int64
	var cursor uint64
	for {
		page, next, err := cmds.Scan(ctx, cursor, pattern, scanPageSize).Result()
		if err != nil {
			return 0, err
		}
		for _, key := range page {
			v, err := readInt(ctx, cmds, key)
			if err != nil {
				return 0, err
			}
			sum += v
		}
		if next == 0 {
			return sum, nil
		}
		cursor = next
	}
}

func (c *EventuallyConsistentCounter) deleteDeltas(ctx context.Context, cmds redis.Cmdable, pattern string) error {
	var cursor uint64
	for {
		page, next, err := cmds.Scan(ctx, cursor, pattern, scanPageSize).Result()
		if err != nil {
			return err
		}
		if len(page) > 0 {
			if err := cmds.Del(ctx, page...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
