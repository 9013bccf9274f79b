package counters

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Purpose-Dev/DCounter/core"
	"github.com/Purpose-Dev/DCounter/infra"
)

// Params configures counter construction.
type Params struct {
	// Manager provides backing-store access. Required.
	Manager *infra.Manager
	// Consistency selects the strategy.
	Consistency core.Consistency
	// NodeID identifies this writer's deltas. Required for the eventually
	// consistent and accurate strategies, ignored by best-effort.
	NodeID string
	// MarkerTTL bounds idempotency marker lifetime; zero means the default
	// of 24 hours.
	MarkerTTL time.Duration
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// New creates a blocking counter with the requested consistency.
//
// Usage:
//
//	c, err := counters.New(counters.Params{
//		Manager:     manager,
//		Consistency: core.EventuallyConsistent,
//		NodeID:      "node-a",
//	})
func New(params Params) (core.Counter, error) {
	switch params.Consistency {
	case core.BestEffort:
		return NewBestEffortCounter(params.Manager, params.MarkerTTL, params.Logger)
	case core.EventuallyConsistent:
		return NewEventuallyConsistentCounter(params.Manager, params.NodeID, params.MarkerTTL, params.Logger)
	case core.Accurate:
		return NewAccurateCounter(params.Manager, params.NodeID, params.MarkerTTL, params.Logger)
	default:
		return nil, core.ConfigError(fmt.Sprintf("unsupported consistency: %s", params.Consistency))
	}
}

// NewAsync creates a non-blocking counter with the requested consistency.
func NewAsync(params Params) (core.AsyncCounter, error) {
	switch params.Consistency {
	case core.BestEffort:
		return NewBestEffortAsyncCounter(params.Manager, params.MarkerTTL, params.Logger)
	case core.EventuallyConsistent:
		return NewEventuallyConsistentAsyncCounter(params.Manager, params.NodeID, params.MarkerTTL, params.Logger)
	case core.Accurate:
		return NewAccurateAsyncCounter(params.Manager, params.NodeID, params.MarkerTTL, params.Logger)
	default:
		return nil, core.ConfigError(fmt.Sprintf("unsupported consistency: %s", params.Consistency))
	}
}
