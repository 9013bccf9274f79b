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

// AccurateCounter is the blocking accurate strategy. It maintains a
// snapshot key holding the last consolidated value, a delta hash (one field
// per node) holding pending increments, and a lastSnapshotTs key tracking
// reconciliation freshness.
//
// Every read or write reconciles: the delta hash is summed, folded into the
// snapshot and deleted in a single atomic server-side step, so a read
// always returns the post-reconciliation snapshot and leaves the delta hash
// empty.
type AccurateCounter struct {
	manager   *infra.Manager
	nodeID    string
	markerTTL time.Duration
	logger    *zap.Logger
}

// NewAccurateCounter creates a blocking accurate counter writing deltas
// under the given node id.
func NewAccurateCounter(manager *infra.Manager, nodeID string, markerTTL time.Duration, logger *zap.Logger) (*AccurateCounter, error) {
	if manager == nil {
		return nil, core.ConfigError("manager must not be nil")
	}
	if nodeID == "" {
		return nil, core.ConfigError("nodeId is required for the accurate counter")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccurateCounter{
		manager:   manager,
		nodeID:    nodeID,
		markerTTL: markerTTLOrDefault(markerTTL),
		logger:    logger,
	}, nil
}

// Add applies delta to this node's field in the delta hash and reconciles.
func (c *AccurateCounter) Add(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) error {
	_, err := c.AddAndGet(ctx, namespace, counterName, delta, tok)
	return err
}

// AddAndGet applies delta and returns the reconciled value. On a marker hit
// the delta is not applied again; the current reconciled value is returned.
func (c *AccurateCounter) AddAndGet(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) (core.CounterResult, error) {
	if err := keys.Validate(namespace, counterName); err != nil {
		return core.CounterResult{}, core.InvalidArgument(err.Error())
	}

	value, err := infra.ExecuteSync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		deltasKey := keys.Deltas(namespace, counterName)

		if tok != nil {
			markerKey := keys.Idempotency(namespace, counterName, tok)
			cmd := markerHIncrScript.Run(ctx, cmds, []string{markerKey, deltasKey}, c.nodeID, delta, ttlSeconds(c.markerTTL))
			if _, _, err := pairResult(cmd); err != nil {
				return 0, err
			}
			// Marker hit or fresh write: both end with a reconcile.
		} else {
			if err := cmds.HIncrBy(ctx, deltasKey, c.nodeID, delta).Err(); err != nil {
				return 0, err
			}
		}

		return c.reconcile(ctx, cmds, namespace, counterName)
	})
	if err != nil {
		c.logger.Error("Accurate addAndGet failed",
			zap.String("namespace", namespace),
			zap.String("counter", counterName),
			zap.Error(err))
		return core.CounterResult{}, err
	}

	return core.NewCounterResult(value, core.Accurate, tok), nil
}

// Get reconciles pending deltas and returns the snapshot value.
func (c *AccurateCounter) Get(ctx context.Context, namespace, counterName string) (core.CounterResult, error) {
	if err := keys.Validate(namespace, counterName); err != nil {
		return core.CounterResult{}, core.InvalidArgument(err.Error())
	}

	value, err := infra.ExecuteSync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (int64, error) {
		return c.reconcile(ctx, cmds, namespace, counterName)
	})
	if err != nil {
		return core.CounterResult{}, err
	}

	return core.NewCounterResult(value, core.Accurate, nil), nil
}

// Clear zeroes the snapshot and deletes the delta hash.
func (c *AccurateCounter) Clear(ctx context.Context, namespace, counterName string, tok *token.IdempotencyToken) error {
	if err := keys.Validate(namespace, counterName); err != nil {
		return core.InvalidArgument(err.Error())
	}

	_, err := infra.ExecuteSync(c.manager, ctx, func(ctx context.Context, cmds redis.Cmdable) (struct{}, error) {
		snapshotKey := keys.Snapshot(namespace, counterName)
		deltasKey := keys.Deltas(namespace, counterName)

		if tok != nil {
			markerKey := keys.Idempotency(namespace, counterName, tok)
			return struct{}{}, markerClearScript.Run(ctx, cmds, []string{markerKey, snapshotKey, deltasKey}, ttlSeconds(c.markerTTL)).Err()
		}

		if err := cmds.Set(ctx, snapshotKey, "0", 0).Err(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, cmds.Del(ctx, deltasKey).Err()
	})
	if err != nil {
		c.logger.Error("Accurate clear failed",
			zap.String("namespace", namespace),
			zap.String("counter", counterName),
			zap.Error(err))
	}
	return err
}

// reconcile folds the delta hash into the snapshot atomically and returns
// the reconciled value.
func (c *AccurateCounter) reconcile(ctx context.Context, cmds redis.Cmdable, namespace, counterName string) (int64, error) {
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
