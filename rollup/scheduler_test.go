package rollup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Purpose-Dev/DCounter/core"
	"github.com/Purpose-Dev/DCounter/counters"
	"github.com/Purpose-Dev/DCounter/infra"
	"github.com/Purpose-Dev/DCounter/keys"
)

func newTestBackend(t *testing.T) (*infra.Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := infra.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.RetryAttempts = 1
	cfg.RetryWait = time.Millisecond

	m, err := infra.NewManager(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, mr
}

func totalValue(t *testing.T, mr *miniredis.Miniredis, namespace, counterName string) string {
	t.Helper()
	v, err := mr.Get(keys.Total(namespace, counterName))
	require.NoError(t, err)
	return v
}

func TestRollup_FoldsHashAndFlatLayouts(t *testing.T) {
	m, mr := newTestBackend(t)

	// Hash layout: one accumulator with one field per node.
	mr.HSet(keys.Deltas("orders", "count"), "node-a", "3")
	mr.HSet(keys.Deltas("orders", "count"), "node-b", "4")
	// Flat layout: one accumulator per node.
	mr.Set(keys.DeltaForNode("orders", "clicks", "node-a"), "5")

	s, err := NewNamespaceRollupScheduler(m, time.Minute, zap.NewNop(), nil)
	require.NoError(t, err)
	s.runTick("orders")

	assert.Equal(t, "7", totalValue(t, mr, "orders", "count"))
	assert.Equal(t, "5", totalValue(t, mr, "orders", "clicks"))
	assert.False(t, mr.Exists(keys.Deltas("orders", "count")))
	assert.False(t, mr.Exists(keys.DeltaForNode("orders", "clicks", "node-a")))
}

func TestRollup_ZeroSumDeletesWithoutTouchingTotal(t *testing.T) {
	m, mr := newTestBackend(t)

	mr.HSet(keys.Deltas("orders", "count"), "node-a", "2")
	mr.HSet(keys.Deltas("orders", "count"), "node-b", "-2")

	s, err := NewNamespaceRollupScheduler(m, time.Minute, zap.NewNop(), nil)
	require.NoError(t, err)
	s.runTick("orders")

	assert.False(t, mr.Exists(keys.Deltas("orders", "count")))
	assert.False(t, mr.Exists(keys.Total("orders", "count")))
}

func TestRollup_IsIdempotent(t *testing.T) {
	m, mr := newTestBackend(t)

	mr.HSet(keys.Deltas("orders", "count"), "node-a", "6")

	s, err := NewNamespaceRollupScheduler(m, time.Minute, zap.NewNop(), nil)
	require.NoError(t, err)

	s.runTick("orders")
	s.runTick("orders")

	assert.Equal(t, "6", totalValue(t, mr, "orders", "count"))
}

func TestRollup_OnlyTouchesItsNamespace(t *testing.T) {
	m, mr := newTestBackend(t)

	mr.HSet(keys.Deltas("orders", "count"), "node-a", "3")
	mr.HSet(keys.Deltas("billing", "count"), "node-a", "9")

	s, err := NewNamespaceRollupScheduler(m, time.Minute, zap.NewNop(), nil)
	require.NoError(t, err)
	s.runTick("orders")

	assert.False(t, mr.Exists(keys.Deltas("orders", "count")))
	assert.True(t, mr.Exists(keys.Deltas("billing", "count")))
	assert.False(t, mr.Exists(keys.Total("billing", "count")))
}

func TestRollup_EventuallyConsistentEndToEnd(t *testing.T) {
	m, mr := newTestBackend(t)
	ctx := context.Background()

	nodeA, err := counters.NewEventuallyConsistentCounter(m, "node-a", 0, zap.NewNop())
	require.NoError(t, err)
	nodeB, err := counters.NewEventuallyConsistentCounter(m, "node-b", 0, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, nodeA.Add(ctx, "orders", "count", 3, nil))
	require.NoError(t, nodeB.Add(ctx, "orders", "count", 4, nil))

	s, err := NewNamespaceRollupScheduler(m, time.Minute, zap.NewNop(), nil)
	require.NoError(t, err)
	s.runTick("orders")

	// The deltas were consolidated and reads still observe the same value.
	assert.Equal(t, "7", totalValue(t, mr, "orders", "count"))
	assert.False(t, mr.Exists(keys.DeltaForNode("orders", "count", "node-a")))
	assert.False(t, mr.Exists(keys.DeltaForNode("orders", "count", "node-b")))

	res, err := nodeA.Get(ctx, "orders", "count")
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Value)
}

func TestRollup_StartAndClose(t *testing.T) {
	m, mr := newTestBackend(t)

	mr.HSet(keys.Deltas("orders", "count"), "node-a", "8")

	s, err := NewNamespaceRollupScheduler(m, 10*time.Millisecond, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Start("orders"))

	assert.Eventually(t, func() bool {
		return !mr.Exists(keys.Deltas("orders", "count"))
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	assert.Equal(t, "8", totalValue(t, mr, "orders", "count"))
}

func TestRollup_RejectsInvalidNamespace(t *testing.T) {
	m, _ := newTestBackend(t)

	s, err := NewNamespaceRollupScheduler(m, time.Minute, zap.NewNop(), nil)
	require.NoError(t, err)

	assert.Error(t, s.Start(""))
	assert.Error(t, s.Start("bad:ns"))
}

func TestAsyncRollup_FoldsBothLayouts(t *testing.T) {
	m, mr := newTestBackend(t)

	mr.HSet(keys.Deltas("orders", "count"), "node-a", "3")
	mr.HSet(keys.Deltas("orders", "count"), "node-b", "4")
	mr.Set(keys.DeltaForNode("orders", "clicks", "node-a"), "5")

	s, err := NewAsyncNamespaceRollupScheduler(m, time.Minute, zap.NewNop(), nil)
	require.NoError(t, err)
	s.runTick("orders")

	assert.Eventually(t, func() bool {
		return !mr.Exists(keys.Deltas("orders", "count")) &&
			!mr.Exists(keys.DeltaForNode("orders", "clicks", "node-a"))
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "7", totalValue(t, mr, "orders", "count"))
	assert.Equal(t, "5", totalValue(t, mr, "orders", "clicks"))
}

func TestAsyncRollup_StartAndClose(t *testing.T) {
	m, mr := newTestBackend(t)

	mr.HSet(keys.Deltas("orders", "count"), "node-a", "8")

	s, err := NewAsyncNamespaceRollupScheduler(m, 10*time.Millisecond, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Start("orders"))

	assert.Eventually(t, func() bool {
		return !mr.Exists(keys.Deltas("orders", "count"))
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
}

func TestForCounter_PicksVariantFromContract(t *testing.T) {
	m, _ := newTestBackend(t)

	blocking, err := counters.New(counters.Params{Manager: m, Consistency: core.BestEffort})
	require.NoError(t, err)
	nonBlocking, err := counters.NewAsync(counters.Params{Manager: m, Consistency: core.BestEffort})
	require.NoError(t, err)

	s, err := ForCounter(m, time.Minute, zap.NewNop(), nil, blocking)
	require.NoError(t, err)
	assert.IsType(t, &NamespaceRollupScheduler{}, s)

	s, err = ForCounter(m, time.Minute, zap.NewNop(), nil, nonBlocking)
	require.NoError(t, err)
	assert.IsType(t, &AsyncNamespaceRollupScheduler{}, s)

	_, err = ForCounter(m, time.Minute, zap.NewNop(), nil, nil)
	assert.True(t, core.IsCode(err, core.CodeConfigError))

	_, err = ForCounter(m, time.Minute, zap.NewNop(), nil, "not a counter")
	assert.True(t, core.IsCode(err, core.CodeConfigError))
}
