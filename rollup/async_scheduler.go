package rollup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Purpose-Dev/DCounter/infra"
	"github.com/Purpose-Dev/DCounter/keys"
	"github.com/Purpose-Dev/DCounter/metrics"
)

// AsyncNamespaceRollupScheduler is the non-blocking rollup variant. Each
// tick runs on a manager worker goroutine and pipelines the per-key work of
// a scan page: one batch resolves the key types, one fetches the pending
// deltas, one applies the increments and deletions. The cursor only
// advances once the page's batches have resolved.
type AsyncNamespaceRollupScheduler struct {
	manager  *infra.Manager
	interval time.Duration
	logger   *zap.Logger
	mets     *metrics.Metrics
	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewAsyncNamespaceRollupScheduler creates a non-blocking rollup scheduler.
func NewAsyncNamespaceRollupScheduler(manager *infra.Manager, interval time.Duration, logger *zap.Logger, mets *metrics.Metrics) (*AsyncNamespaceRollupScheduler, error) {
	if manager == nil {
		return nil, fmt.Errorf("manager must not be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncNamespaceRollupScheduler{
		manager:  manager,
		interval: interval,
		logger:   logger,
		mets:     mets,
		stop:     make(chan struct{}),
	}, nil
}

// Start begins periodic asynchronous rollups for all counters in a
// namespace.
func (s *AsyncNamespaceRollupScheduler) Start(namespace string) error {
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

	s.logger.Info("Started async rollup scheduler",
		zap.String("namespace", namespace),
		zap.Duration("interval", s.interval))
	return nil
}

// Close cancels the next tick without interrupting an in-flight one.
func (s *AsyncNamespaceRollupScheduler) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.logger.Info("Async rollup scheduler stopped")
	return nil
}

func (s *AsyncNamespaceRollupScheduler) runTick(namespace string) {
	start := time.Now()

	future := infra.ExecuteAsync(s.manager, context.Background(), func(ctx context.Context, cmds redis.Cmdable) (struct{}, error) {
		return struct{}{}, s.sweep(ctx, cmds, namespace)
	})

	go func() {
		_, err := future.Get(context.Background())
		if s.mets != nil {
			s.mets.RollupDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if s.mets != nil {
				s.mets.RollupRuns.WithLabelValues("error").Inc()
			}
			s.logger.Warn("Async namespace rollup failed",
				zap.String("namespace", namespace),
				zap.Error(err))
			return
		}
		if s.mets != nil {
			s.mets.RollupRuns.WithLabelValues("ok").Inc()
		}
	}()
}

func (s *AsyncNamespaceRollupScheduler) sweep(ctx context.Context, cmds redis.Cmdable, namespace string) error {
	pattern := keys.NamespaceDeltaPattern(namespace)
	var cursor uint64
	for {
		page, next, err := cmds.Scan(ctx, cursor, pattern, scanPageSize).Result()
		if err != nil {
			return err
		}
		if len(page) > 0 {
			if err := s.rollupPage(ctx, cmds, namespace, page); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// rollupPage folds one scan page of delta accumulators using pipelined
// batches.
func (s *AsyncNamespaceRollupScheduler) rollupPage(ctx context.Context, cmds redis.Cmdable, namespace string, page []string) error {
	typeCmds := make([]*redis.StatusCmd, len(page))
	if _, err := cmds.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range page {
			typeCmds[i] = pipe.Type(ctx, key)
		}
		return nil
	}); err != nil {
		return err
	}

	hashCmds := make(map[int]*redis.MapStringStringCmd)
	stringCmds := make(map[int]*redis.StringCmd)
	if _, err := cmds.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i := range page {
			switch typeCmds[i].Val() {
			case "hash":
				hashCmds[i] = pipe.HGetAll(ctx, page[i])
			case "string":
				stringCmds[i] = pipe.Get(ctx, page[i])
			}
		}
		return nil
	}); err != nil {
		return err
	}

	sums := make(map[int]int64)
	for i := range page {
		if cmd, ok := hashCmds[i]; ok {
			var sum int64
			for _, v := range cmd.Val() {
				sum += parseInt(v)
			}
			sums[i] = sum
		} else if cmd, ok := stringCmds[i]; ok {
			sums[i] = parseInt(cmd.Val())
		}
	}

	folded := 0
	if _, err := cmds.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, sum := range sums {
			if sum != 0 {
				counterName := keys.CounterNameFromDeltaKey(page[i])
				pipe.IncrBy(ctx, keys.Total(namespace, counterName), sum)
			}
			pipe.Del(ctx, page[i])
			folded++
		}
		return nil
	}); err != nil {
		return err
	}

	if s.mets != nil && folded > 0 {
		s.mets.RollupKeys.Add(float64(folded))
	}
	return nil
}
