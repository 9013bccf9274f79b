package rollup

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Purpose-Dev/DCounter/core"
	"github.com/Purpose-Dev/DCounter/infra"
	"github.com/Purpose-Dev/DCounter/metrics"
)

// Scheduler is the common contract of the rollup schedulers.
type Scheduler interface {
	// Start begins periodic rollups for all counters in a namespace.
	Start(namespace string) error
	// Close cancels the next tick without interrupting an in-flight one.
	Close() error
}

// ForCounter picks the scheduler variant matching the contract the counter
// instance satisfies: non-blocking counters get the pipelined scheduler,
// blocking counters the synchronous one.
func ForCounter(manager *infra.Manager, interval time.Duration, logger *zap.Logger, mets *metrics.Metrics, counter interface{}) (Scheduler, error) {
	if counter == nil {
		return nil, core.ConfigError("counter must not be nil")
	}

	switch counter.(type) {
	case core.AsyncCounter:
		return NewAsyncNamespaceRollupScheduler(manager, interval, logger, mets)
	case core.Counter:
		return NewNamespaceRollupScheduler(manager, interval, logger, mets)
	default:
		return nil, core.ConfigError(fmt.Sprintf("unsupported counter type: %T", counter))
	}
}
