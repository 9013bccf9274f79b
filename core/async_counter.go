package core

import (
	"context"

	"github.com/Purpose-Dev/DCounter/token"
)

// AsyncCounter is the non-blocking contract for a distributed counter.
//
// Every operation returns immediately with a Future that resolves once the
// backing-store work has finished; no particular completion goroutine is
// guaranteed. Infrastructure failures resolve the future
// with a *CounterError carrying code REDIS_ERROR.
//
// Implementations are safe for concurrent use by multiple goroutines.
type AsyncCounter interface {
	// Add applies delta (positive or negative) to the counter.
	Add(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) *Future[Void]

	// AddAndGet applies delta and resolves with the implementation's view of
	// the value after application.
	AddAndGet(ctx context.Context, namespace, counterName string, delta int64, tok *token.IdempotencyToken) *Future[CounterResult]

	// Get resolves with the current value.
	Get(ctx context.Context, namespace, counterName string) *Future[CounterResult]

	// Clear resets the counter to zero and removes any delta accumulators.
	Clear(ctx context.Context, namespace, counterName string, tok *token.IdempotencyToken) *Future[Void]
}

// Decrement subtracts one from the counter.
func Decrement(ctx context.Context, c AsyncCounter, namespace, counterName string, tok *token.IdempotencyToken) *Future[Void] {
	return c.Add(ctx, namespace, counterName, -1, tok)
}

// DecrementAndGet subtracts one and resolves with the resulting value.
func DecrementAndGet(ctx context.Context, c AsyncCounter, namespace, counterName string, tok *token.IdempotencyToken) *Future[CounterResult] {
	return c.AddAndGet(ctx, namespace, counterName, -1, tok)
}
