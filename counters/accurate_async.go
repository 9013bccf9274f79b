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

// AccurateAsyncCounter is the non-blocking variant of the accurate
// strategy: snapshot plus delta hash, with a full reconciliation on every
// read or write. The backing-store work runs on a manager worker goroutine
// and the futures resolve when it ends.
type AccurateAsyncCounter struct {
	manager   *infra.Manager
	nodeID    string
	markerTTL time.Duration
	logger    *zap.Logger
}

// NewAccurateAsyncCounter creates a non-blocking accurate counter writing
// deltas under the given node id.
func NewAccurateAsyncCounter(manager *infra.Manager, nodeID string, markerTTL time.Duration, logger *zap.Logger) (*AccurateAsyncCounter, error) {
	if manager == nil {
		return nil, core.ConfigError("manager must not be nil")
	}
	if nodeID == "" {
		return nil, core.ConfigError("nodeId is required for the accurate counter")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccurateAsyncCounter{
		manager:   manager,
		nodeID:    nodeID,
		markerTTL: markerTTLOrDefault(markerTTL),
		logger:    logger,
	}, nil
}

// Add applies delta to this node's field in the delta hash and reconciles.
func (c *AccurateAsyncCounter) Add(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) *core.Future[core.Void] {
	return dropValue(c.AddAndGet(ctx, namespace, counterName, delta, tok))
}

// AddAndGet applies delta and resolves with the reconciled value. On a
// marker hit the delta is not applied again.
func (c *AccurateAsyncCounter) AddAndGet(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) *core.Future[core.CounterResult] {
	if err := keys.Validate(namespace, counterName); err != nil {
		return failedFuture[core.CounterResult](core.InvalidArgument(err.Error()))
	}

	raw := infra.ExecuteAsync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		deltasKey := keys.Deltas(namespace, counterName)

		if tok != nil {
			markerKey := keys.Idempotency(namespace, counterName, tok)
			cmd := markerHIncrScript.Run(ctx, cmds, []string{markerKey, deltasKey}, c.nodeID, delta, ttlSeconds(c.markerTTL))
			if _, _, err := pairResult(cmd); err != nil {
				return 0, err
			}
		} else {
			if err := cmds.HIncrBy(ctx, deltasKey, c.nodeID, delta).Err(); err != nil {
				return 0, err
			}
		}

		return c.reconcile(ctx, cmds, namespace, counterName)
	})

	return core.Then(raw, func(v int64) (core.CounterResult, error) {
		return core.NewCounterResult(v, core.Accurate, tok), nil
	})
}

// Get reconciles pending deltas and resolves with the snapshot value.
func (c *AccurateAsyncCounter) Get(ctx context.Context, namespace, counterName string) *core.Future[core.CounterResult] {
	if err := keys.Validate(namespace, counterName); err != nil {
		return failedFuture[core.CounterResult](core.InvalidArgument(err.Error()))
	}

	raw := infra.ExecuteAsync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		return c.reconcile(ctx, cmds, namespace, counterName)
	})

	return core.Then(raw, func(v int64) (core.CounterResult, error) {
		return core.NewCounterResult(v, core.Accurate, nil), nil
	})
}

// Clear zeroes the snapshot and deletes the delta hash.
func (c *AccurateAsyncCounter) Clear(ctx context.Context, namespace, counterName string, tok *token.IdempotencyToken) *core.Future[core.Void] {
	if err := keys.Validate(namespace, counterName); err != nil {
		return failedFuture[core.Void](core.InvalidArgument(err.Error()))
	}

	return infra.ExecuteAsync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (core.Void, error) {
		snapshotKey := keys.Snapshot(namespace, counterName)
		deltasKey := keys.Deltas(namespace, counterName)

		if tok != nil {
			markerKey := keys.Idempotency(namespace, counterName, tok)
			return core.Void{}, markerClearScript.Run(ctx, cmds, []string{markerKey, snapshotKey, deltasKey}, ttlSeconds(c.markerTTL)).Err()
		}

		if err := cmds.Set(ctx, snapshotKey, "0", 0).Err(); err != nil {
			return core.Void{}, err
		}
		return core.Void{}, cmds.Del(ctx, deltasKey).Err()
	})
}

func (c *AccurateAsyncCounter) reconcile(ctx context.Context, cmds redis.Cmdable, namespace, counterName string) (int64, error) {
	cmd := reconcileScript.Run(ctx, cmds,
		[]string{
			keys.Snapshot(namespace, counterName),
			keys.Deltas(namespace, counterName),
			keys.SnapshotTimestamp(namespace, counterName),
		},
		time.Now().UnixMilli(),
	)
	return cmd.Int64()
}
