// Package scheduler wakes sleeping sessions whose delay has elapsed and
// purges terminal sessions past their retention window.
//
// Ticks are at-least-once: a session may be ticked twice (two replicas, a
// retry after a crash) and the engine treats the second tick as a no-op.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/metrics"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
)

// Defaults for the Scheduler.
const (
	DefaultInterval  = 5 * time.Second
	DefaultBatchSize = 500
	DefaultWorkers   = 16
	DefaultLockTTL   = 30 * time.Second
	lockKey          = "parley:scheduler"
)

// Ticker delivers a scheduler tick to one session. *runner.Runner implements it.
type Ticker interface {
	Tick(ctx context.Context, key string, now time.Time) (*runner.Result, error)
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Due     int `json:"due"`
	Woken   int `json:"woken"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Scheduler is the tick source of the flow runtime.
type Scheduler struct {
	store     ports.SessionStore
	ticker    Ticker
	pool      *ants.Pool
	interval  time.Duration
	batchSize int
	retention time.Duration
	locker    ports.DistributedLocker
	lockTTL   time.Duration
	clock     func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
	workers   int
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithInterval sets how often Run sweeps.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize bounds the sessions woken per sweep.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithWorkers bounds how many ticks run concurrently.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRetention enables purging terminal sessions idle for longer than d.
func WithRetention(d time.Duration) Option {
	return func(s *Scheduler) {
		s.retention = d
	}
}

// WithLocker elects a single sweeper per tick across replicas.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// New creates a Scheduler. Call Close to release its worker pool.
func New(store ports.SessionStore, ticker Ticker, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		store:     store,
		ticker:    ticker,
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
		workers:   DefaultWorkers,
		lockTTL:   DefaultLockTTL,
		clock:     time.Now,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return nil, fmt.Errorf("create scheduler pool: %w", err)
	}
	s.pool = pool
	return s, nil
}

// Close releases the worker pool.
func (s *Scheduler) Close() {
	s.pool.Release()
}

// Sweep ticks every sleeping session due at now.
// Failures on one session do not stop the others.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	start := time.Now()
	keys, err := s.store.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list due sessions: %w", err)
	}

	var woken, skipped, failed atomic.Int64
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			res, err := s.ticker.Tick(ctx, key, now)
			switch {
			case errors.Is(err, domain.ErrSessionNotFound):
				skipped.Add(1)
			case err != nil:
				failed.Add(1)
				s.logger.Error("failed to tick session", "session_key", key, "err", err)
			case res.Diff == nil:
				// Another replica got there first.
				skipped.Add(1)
			default:
				woken.Add(1)
			}
		}
		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			failed.Add(1)
			s.logger.Error("failed to submit tick", "session_key", key, "err", err)
		}
	}
	wg.Wait()

	res := SweepResult{
		Due:     len(keys),
		Woken:   int(woken.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	s.metrics.Sweep(res.Woken, res.Failed, time.Since(start))
	if res.Due > 0 {
		s.logger.Info("sweep completed", "due", res.Due, "woken", res.Woken, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res, nil
}

// Purge deletes terminal sessions idle since before now minus the retention.
// It is a no-op without a retention.
func (s *Scheduler) Purge(ctx context.Context, now time.Time) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	n, err := s.store.PurgeTerminal(ctx, now.Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("purge terminal sessions: %w", err)
	}
	s.metrics.Purge(n)
	if n > 0 {
		s.logger.Info("purged terminal sessions", "count", n)
	}
	return n, nil
}

// RunOnce performs one sweep and purge, under the election lock when configured.
// ran is false when another replica holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (res SweepResult, ran bool, err error) {
	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, lockKey, s.lockTTL)
		if err != nil {
			return SweepResult{}, false, fmt.Errorf("acquire scheduler lock: %w", err)
		}
		if !ok {
			s.logger.Debug("another replica is sweeping")
			return SweepResult{}, false, nil
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release scheduler lock (will expire via TTL)", "err", err)
			}
		}()
	}

	now := s.clock()
	res, err = s.Sweep(ctx, now)
	if err != nil {
		return res, true, err
	}
	if _, err := s.Purge(ctx, now); err != nil {
		return res, true, err
	}
	return res, true, nil
}

// Run sweeps every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc("@every "+s.interval.String(), func() {
		if _, _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler tick failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.logger.Info("scheduler started", "interval", s.interval, "retention", s.retention)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}
