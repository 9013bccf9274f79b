// Package keys is the single source of truth for the counter key-space.
//
// Every entity the library stores occupies one of the names built here, so
// writers, readers and the rollup sweep all see the same keys. The layout is
// part of the external contract: operators and monitoring tools depend on
// it, and changes are breaking.
package keys

import (
	"fmt"
	"strings"

	"github.com/Purpose-Dev/DCounter/token"
)

// Separator is the reserved key segment separator. Namespaces and counter
// names must not contain it.
const Separator = ":"

// Counter returns the single-key counter name: counter:{ns}:{c}.
func Counter(namespace, counterName string) string {
	return fmt.Sprintf("counter:%s:%s", namespace, counterName)
}

// Total returns the consolidated total name: counter:{ns}:{c}:total.
func Total(namespace, counterName string) string {
	return fmt.Sprintf("counter:%s:%s:total", namespace, counterName)
}

// DeltaForNode returns the flat per-node delta name:
// counter:{ns}:{c}:deltas:{node}.
func DeltaForNode(namespace, counterName, nodeID string) string {
	return fmt.Sprintf("counter:%s:%s:deltas:%s", namespace, counterName, nodeID)
}

// Deltas returns the delta hash name (field = nodeId):
// counter:{ns}:{c}:deltas.
func Deltas(namespace, counterName string) string {
	return fmt.Sprintf("counter:%s:%s:deltas", namespace, counterName)
}

// DeltaPattern returns the scan pattern matching one counter's flat
// per-node delta keys.
func DeltaPattern(namespace, counterName string) string {
	return fmt.Sprintf("counter:%s:%s:deltas:*", namespace, counterName)
}

// NamespaceDeltaPattern returns the scan pattern matching every delta
// accumulator in a namespace, covering both the hash layout
// (counter:{ns}:{c}:deltas) and the flat layout
// (counter:{ns}:{c}:deltas:{node}).
func NamespaceDeltaPattern(namespace string) string {
	return fmt.Sprintf("counter:%s:*:deltas*", namespace)
}

// Snapshot returns the accurate-strategy snapshot name:
// counter:{ns}:{c}:snapshot.
func Snapshot(namespace, counterName string) string {
	return fmt.Sprintf("counter:%s:%s:snapshot", namespace, counterName)
}

// SnapshotTimestamp returns the name of the key holding the epoch-millis of
// the last reconciliation: counter:{ns}:{c}:snapshot:lastSnapshotTs.
func SnapshotTimestamp(namespace, counterName string) string {
	return fmt.Sprintf("counter:%s:%s:snapshot:lastSnapshotTs", namespace, counterName)
}

// Idempotency returns the marker name for a token:
// idempotency:{ns}:{c}:{tokenId}.
func Idempotency(namespace, counterName string, tok *token.IdempotencyToken) string {
	return fmt.Sprintf("idempotency:%s:%s:%s", namespace, counterName, tok.AsString())
}

// CounterNameFromDeltaKey recovers the counter name from a delta
// accumulator key by splitting on the separator and taking the third
// segment. Unrecognizable keys yield "unknown".
func CounterNameFromDeltaKey(deltaKey string) string {
	parts := strings.Split(deltaKey, Separator)
	if len(parts) < 4 {
		return "unknown"
	}
	return parts[2]
}

// Validate rejects namespaces and counter names that are empty or contain
// the reserved separator. It runs at every entry point so malformed names
// never reach the backing store.
func Validate(namespace, counterName string) error {
	if strings.TrimSpace(namespace) == "" {
		return fmt.Errorf("namespace must not be blank")
	}
	if strings.Contains(namespace, Separator) {
		return fmt.Errorf("namespace must not contain %q", Separator)
	}
	if strings.TrimSpace(counterName) == "" {
		return fmt.Errorf("counter name must not be blank")
	}
	if strings.Contains(counterName, Separator) {
		return fmt.Errorf("counter name must not contain %q", Separator)
	}
	return nil
}
