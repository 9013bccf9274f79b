// Package rollup implements the periodic namespace sweep that folds
// per-node delta accumulators into consolidated totals.
package rollup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Purpose-Dev/DCounter/infra"
	"github.com/Purpose-Dev/DCounter/keys"
	"github.com/Purpose-Dev/DCounter/metrics"
)

// scanPageSize bounds each cursor page of the namespace sweep.
const scanPageSize = 100

// NamespaceRollupScheduler periodically scans one namespace for delta
// accumulators, folds each one into the corresponding total and deletes it.
// This bounds delta growth and keeps eventually-consistent reads cheap.
//
// The sweep is idempotent: increment-then-delete commutes across runs. A
// delta written between the read-sum and the delete is removed with the
// accumulator without being added to the total. Per-tick failures are
// logged and the tick is skipped; there is no persistent state.
type NamespaceRollupScheduler struct {
	manager  *infra.Manager
	interval time.Duration
	logger   *zap.Logger
	mets     *metrics.Metrics
	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewNamespaceRollupScheduler creates a blocking rollup scheduler. The
// sweep runs on the scheduler's own goroutine at the given interval.
func NewNamespaceRollupScheduler(manager *infra.Manager, interval time.Duration, logger *zap.Logger, mets *metrics.Metrics) (*NamespaceRollupScheduler, error) {
	if manager == nil {
		return nil, fmt.Errorf("manager must not be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NamespaceRollupScheduler{
		manager:  manager,
		interval: interval,
		logger:   logger,
		mets:     mets,
		stop:     make(chan struct{}),
	}, nil
}

// Start begins periodic rollups for all counters in a namespace.
func (s *NamespaceRollupScheduler) Start(namespace string) error {
	if strings.TrimSpace(namespace) == "" || strings.Contains(namespace, keys.Separator) {
		return fmt.Errorf("invalid namespace: %q", namespace)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.runTick(namespace)
			}
		}
	}()

	s.logger.Info("Started rollup scheduler",
		zap.String("namespace", namespace),
		zap.Duration("interval", s.interval))
	return nil
}

// Close cancels the next tick without interrupting an in-flight one.
func (s *NamespaceRollupScheduler) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.logger.Info("Rollup scheduler stopped")
	return nil
}

func (s *NamespaceRollupScheduler) runTick(namespace string) {
	start := time.Now()

	_, err := infra.ExecuteSync(s.manager, context.Background(), func(ctx context.Context, cmds redis.Cmdable) (struct{}, error) {
		pattern := keys.NamespaceDeltaPattern(namespace)
		var cursor uint64
		for {
			page, next, err := cmds.Scan(ctx, cursor, pattern, scanPageSize).Result()
			if err != nil {
				return struct{}{}, err
			}
			for _, deltaKey := range page {
				if err := s.rollupSingle(ctx, cmds, namespace, deltaKey); err != nil {
					return struct{}{}, err
				}
			}
			if next == 0 {
				return struct{}{}, nil
			}
			cursor = next
		}
	})

	if s.mets != nil {
		s.mets.RollupDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.mets != nil {
			s.mets.RollupRuns.WithLabelValues("error").Inc()
		}
		s.logger.Warn("Namespace rollup failed",
			zap.String("namespace", namespace),
			zap.Error(err))
		return
	}
	if s.mets != nil {
		s.mets.RollupRuns.WithLabelValues("ok").Inc()
	}
}

// rollupSingle folds one delta accumulator, dispatching on its Redis type:
// the hash layout sums the fields, the flat layout reads the integer value.
func (s *NamespaceRollupScheduler) rollupSingle(ctx context.Context, cmds redis.Cmdable, namespace, deltaKey string) error {
	kind, err := cmds.Type(ctx, deltaKey).Result()
	if err != nil {
		return err
	}

	var sum int64
	switch kind {
	case "hash":
		fields, err := cmds.HGetAll(ctx, deltaKey).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		for _, v := range fields {
			sum += parseInt(v)
		}
	case "string":
		val, err := cmds.Get(ctx, deltaKey).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		sum = parseInt(val)
	case "none":
		// Deleted between the scan page and now.
		return nil
	default:
		s.logger.Debug("Skipping delta key of unexpected type",
			zap.String("key", deltaKey),
			zap.String("type", kind))
		return nil
	}

	if sum != 0 {
		counterName := keys.CounterNameFromDeltaKey(deltaKey)
		if err := cmds.IncrBy(ctx, keys.Total(namespace, counterName), sum).Err(); err != nil {
			return err
		}
	}

	if err := cmds.Del(ctx, deltaKey).Err(); err != nil {
		return err
	}

	if s.mets != nil {
		s.mets.RollupKeys.Inc()
	}
	s.logger.Debug("Rolled up delta accumulator",
		zap.String("key", deltaKey),
		zap.Int64("sum", sum))
	return nil
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
