// Package counters implements the three counter strategies in blocking and
// non-blocking variants, plus the factory that selects one.
package counters

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Purpose-Dev/DCounter/core"
)

// defaultMarkerTTL bounds idempotency marker lifetime when the caller does
// not configure one. Sized to outlive any reasonable retry window.
const defaultMarkerTTL = 24 * time.Hour

// scanPageSize bounds cursor-based pattern scans so they stay non-blocking
// on the backing store.
const scanPageSize = 200

// parseInt parses a stored decimal value; absent or unparsable values read
// as zero, matching lazy counter creation.
func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// readInt reads an integer key, treating a missing key as zero.
func readInt(ctx context.Context, cmds redis.Cmdable, key string) (int64, error) {
	val, err := cmds.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseInt(val), nil
}

// sumHash sums the values of a delta hash.
func sumHash(fields map[string]string) int64 {
	var sum int64
	for _, v := range fields {
		sum += parseInt(v)
	}
	return sum
}

// pairResult decodes a {applied, value} script reply.
func pairResult(cmd *redis.Cmd) (applied bool, value int64, err error) {
	vals, err := cmd.Slice()
	if err != nil {
		return false, 0, err
	}
	if len(vals) != 2 {
		return false, 0, fmt.Errorf("unexpected script reply: %v", vals)
	}
	return toInt64(vals[0]) == 1, toInt64(vals[1]), nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		return parseInt(n)
	default:
		return 0
	}
}

// ttlSeconds converts a marker TTL to whole seconds, at least one.
func ttlSeconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// markerTTLOrDefault applies the default marker TTL.
func markerTTLOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultMarkerTTL
	}
	return d
}

// failedFuture resolves a fresh future with err, for validation failures on
// the non-blocking surface.
func failedFuture[T any](err error) *core.Future[T] {
	f := core.NewFuture[T]()
	f.Fail(err)
	return f
}

// dropValue adapts a value future into a Void future.
func dropValue[T any](f *core.Future[T]) *core.Future[core.Void] {
	return core.Then(f, func(T) (core.Void, error) {
		return core.Void{}, nil
	})
}
