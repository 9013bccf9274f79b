package core

import (
	"fmt"
	"time"

	"github.com/Purpose-Dev/DCounter/token"
)

// CounterResult is the immutable value returned by counter operations.
//
// Value is the observed counter value, Timestamp the instant the result was
// assembled by the engine, Consistency the guarantee attached to the value,
// and Token the optional idempotency token the operation carried (nil when
// none was supplied).
type CounterResult struct {
	Value       int64
	Timestamp   time.Time
	Consistency Consistency
	Token       *token.IdempotencyToken
}

// NewCounterResult assembles a result stamped with the current instant.
func NewCounterResult(value int64, consistency Consistency, tok *token.IdempotencyToken) CounterResult {
	return CounterResult{
		Value:       value,
		Timestamp:   time.Now(),
		Consistency: consistency,
		Token:       tok,
	}
}

// String renders the result for logs and diagnostics.
func (r CounterResult) String() string {
	tok := "none"
	if r.Token != nil {
		tok = r.Token.AsString()
	}
	return fmt.Sprintf("CounterResult(value=%d, timestamp=%s, consistency=%s, token=%s)",
		r.Value, r.Timestamp.Format(time.RFC3339Nano), r.Consistency, tok)
}
