package core

import (
	"context"

	"github.com/Purpose-Dev/DCounter/token"
)

// Counter is the blocking contract for a distributed counter.
//
// A Counter represents a shared, incrementable value maintained across
// processes. Implementations differ in the guarantee they provide:
//
//   - BestEffort: direct, low-latency increments with no global ordering.
//   - EventuallyConsistent: values converge asynchronously via per-node
//     deltas and periodic rollup.
//   - Accurate: values reflect a reconciled snapshot at the result's
//     timestamp.
//
// All mutating operations accept an optional *token.IdempotencyToken. When
// one is supplied, repeated calls with the same token are applied at most
// once across retries.
//
// Implementations are safe for concurrent use by multiple goroutines. Any
// infrastructure-level failure is reported as a *CounterError with code
// REDIS_ERROR.
type Counter interface {
	// Add applies delta (positive or negative) to the counter.
	Add(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) error

	// AddAndGet applies delta and returns the implementation's view of the
	// value after application.
	AddAndGet(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) (CounterResult, error)

	// Get returns the current value. It never mutates state, except for the
	// accurate strategy which reconciles pending deltas on every read.
	Get(ctx context.Context, namespace, counterName string) (CounterResult, error)

	// Clear resets the counter to zero and removes any delta accumulators.
	Clear(ctx context.Context, namespace, counterName string, tok *token.IdempotencyToken) error
}
