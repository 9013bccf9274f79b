package counters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Purpose-Dev/DCounter/core"
	"github.com/Purpose-Dev/DCounter/keys"
	"github.com/Purpose-Dev/DCounter/token"
)

func TestEventuallyConsistent_TwoNodesConverge(t *testing.T) {
	m, mr := newTestBackend(t)
	ctx := context.Background()

	nodeA, err := NewEventuallyConsistentCounter(m, "node-a", 0, zap.NewNop())
	require.NoError(t, err)
	nodeB, err := NewEventuallyConsistentCounter(m, "node-b", 0, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, nodeA.Add(ctx, "orders", "count", 3, nil))
	require.NoError(t, nodeB.Add(ctx, "orders", "count", 4, nil))

	// Each node wrote its own flat delta key; writes never contend.
	assert.True(t, mr.Exists(keys.DeltaForNode("orders", "count", "node-a")))
	assert.True(t, mr.Exists(keys.DeltaForNode("orders", "count", "node-b")))

	// Either node observes the sum of all deltas.
	resA, err := nodeA.Get(ctx, "orders", "count")
	require.NoError(t, err)
	assert.Equal(t, int64(7), resA.Value)
	assert.Equal(t, core.EventuallyConsistent, resA.Consistency)

	resB, err := nodeB.Get(ctx, "orders", "count")
	require.NoError(t, err)
	assert.Equal(t, int64(7), resB.Value)
}

func TestEventuallyConsistent_GetIncludesTotal(t *testing.T) {
	m, mr := newTestBackend(t)
	ctx := context.Background()

	c, err := NewEventuallyConsistentCounter(m, "node-a", 0, zap.NewNop())
	require.NoError(t, err)

	mr.Set(keys.Total("orders", "count"), "10")
	require.NoError(t, c.Add(ctx, "orders", "count", 5, nil))

	res, err := c.Get(ctx, "orders", "count")
	require.NoError(t, err)
	assert.Equal(t, int64(15), res.Value)
}

func TestEventuallyConsistent_AddAndGetReflectsAllWriters(t *testing.T) {
	m, _ := newTestBackend(t)
	ctx := context.Background()

	nodeA, err := NewEventuallyConsistentCounter(m, "node-a", 0, zap.NewNop())
	require.NoError(t, err)
	nodeB, err := NewEventuallyConsistentCounter(m, "node-b", 0, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, nodeB.Add(ctx, "orders", "count", 100, nil))

	// AddAndGet is add-then-get: the other node's delta is included.
	res, err := nodeA.AddAndGet(ctx, "orders", "count", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(101), res.Value)
}

func TestEventuallyConsistent_IdempotentAdd(t *testing.T) {
	m, _ := newTestBackend(t)
	ctx := context.Background()

	c, err := NewEventuallyConsistentCounter(m, "node-a", 0, zap.NewNop())
	require.NoError(t, err)

	tok := token.Generate()
	require.NoError(t, c.Add(ctx, "orders", "count", 3, tok))
	require.NoError(t, c.Add(ctx, "orders", "count", 3, tok))

	res, err := c.Get(ctx, "orders", "count")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Value)
}

func TestEventuallyConsistent_ClearSemantics(t *testing.T) {
	m, mr := newTestBackend(t)
	ctx := context.Background()

	nodeA, err := NewEventuallyConsistentCounter(m, "node-a", 0, zap.NewNop())
	require.NoError(t, err)
	nodeB, err := NewEventuallyConsistentCounter(m, "node-b", 0, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, nodeA.Add(ctx, "orders", "count", 3, nil))
	require.NoError(t, nodeB.Add(ctx, "orders", "count", 4, nil))
	mr.Set(keys.Total("orders", "count"), "10")

	tok := token.Generate()
	require.NoError(t, nodeA.Clear(ctx, "orders", "count", tok))

	res, err := nodeA.Get(ctx, "orders", "count")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Value)

	assert.False(t, mr.Exists(keys.DeltaForNode("orders", "count", "node-a")))
	assert.False(t, mr.Exists(keys.DeltaForNode("orders", "count", "node-b")))

	// A retried clear with the same token is a no-op.
	require.NoError(t, nodeA.Add(ctx, "orders", "count", 2, nil))
	require.NoError(t, nodeA.Clear(ctx, "orders", "count", tok))

	res, err = nodeA.Get(ctx, "orders", "count")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Value)
}

func TestEventuallyConsistent_RequiresNodeID(t *testing.T) {
	m, _ := newTestBackend(t)

	_, err := NewEventuallyConsistentCounter(m, "", 0, zap.NewNop())
	assert.True(t, core.IsCode(err, core.CodeConfigError))
}
