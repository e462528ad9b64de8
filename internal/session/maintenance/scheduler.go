// Package maintenance runs the recurring session expiry sweep and multi-session consolidation.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nfc4care/backend/internal/telemetry/metrics"
)

// Task names used in logs and the maintenance failure metric.
const (
	TaskSweep       = "sweep"
	TaskConsolidate = "consolidate"
)

// Authority is the subset of the session authority driven by the scheduler.
type Authority interface {
	Now() time.Time
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	PurgeOld(ctx context.Context, cutoff time.Time) (int64, error)
	PrincipalsWithLiveSessions(ctx context.Context) ([]string, error)
	CountLive(ctx context.Context, email string) (int64, error)
	Consolidate(ctx context.Context, email string) (int64, error)
}

// Config holds the task periods and the purge retention window.
type Config struct {
	SweepInterval       time.Duration
	ConsolidateInterval time.Duration
	Retention           time.Duration
}

// Ticker is the part of time.Ticker the scheduler uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.ticker.C }
func (t timeTicker) Stop()               { t.ticker.Stop() }

// TickerFactory creates the ticker for one task.
type TickerFactory func(time.Duration) Ticker

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{ticker: time.NewTicker(d)}
}

// SweepReport is the outcome of one sweep run.
type SweepReport struct {
	Expired int64 `json:"expired"`
	Purged  int64 `json:"purged"`
}

// ConsolidationReport is the outcome of one consolidation run.
type ConsolidationReport struct {
	Principals   int   `json:"principals"`
	Consolidated int   `json:"consolidated"`
	Revoked      int64 `json:"revoked"`
	Failures     int   `json:"failures"`
}

// Scheduler owns the two recurring tasks. Each task runs on its own goroutine, so a
// run always finishes before the next tick of the same task is handled.
type Scheduler struct {
	auth      Authority
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.SessionMetrics
	newTicker TickerFactory
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger for run summaries and failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics counts failed runs on m.
func WithMetrics(m *metrics.SessionMetrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithTickerFactory replaces time.NewTicker, mainly for tests.
func WithTickerFactory(f TickerFactory) Option {
	return func(s *Scheduler) {
		if f != nil {
			s.newTicker = f
		}
	}
}

// New returns a Scheduler. Non-positive intervals disable the corresponding task.
func New(auth Authority, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		auth:      auth,
		cfg:       cfg,
		logger:    slog.Default(),
		newTicker: newTimeTicker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunSweep flags expired records and then purges those past the retention window.
func (s *Scheduler) RunSweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	now := s.auth.Now()
	expired, err := s.auth.SweepExpired(ctx, now)
	if err != nil {
		return rep, fmt.Errorf("sweep: %w", err)
	}
	rep.Expired = expired
	purged, err := s.auth.PurgeOld(ctx, now.Add(-s.cfg.Retention))
	if err != nil {
		return rep, fmt.Errorf("purge: %w", err)
	}
	rep.Purged = purged
	s.logger.InfoContext(ctx, "session sweep finished", "expired", rep.Expired, "purged", rep.Purged)
	return rep, nil
}

// RunConsolidation consolidates every principal holding more than one live record.
// A failure for one principal is logged and counted; the remaining principals are still processed.
// The returned error joins the per-principal failures.
func (s *Scheduler) RunConsolidation(ctx context.Context) (ConsolidationReport, error) {
	var rep ConsolidationReport
	emails, err := s.auth.PrincipalsWithLiveSessions(ctx)
	if err != nil {
		return rep, fmt.Errorf("list principals: %w", err)
	}
	rep.Principals = len(emails)
	var errs []error
	for _, email := range emails {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		revoked, err := s.consolidateOne(ctx, email)
		if err != nil {
			rep.Failures++
			errs = append(errs, fmt.Errorf("consolidate %s: %w", email, err))
			s.logger.ErrorContext(ctx, "session consolidation failed", "email", email, "error", err)
			continue
		}
		if revoked > 0 {
			rep.Consolidated++
			rep.Revoked += revoked
		}
	}
	if rep.Consolidated > 0 || rep.Failures > 0 {
		s.logger.InfoContext(ctx, "session consolidation finished",
			"principals", rep.Principals, "consolidated", rep.Consolidated,
			"revoked", rep.Revoked, "failures", rep.Failures)
	}
	return rep, errors.Join(errs...)
}

func (s *Scheduler) consolidateOne(ctx context.Context, email string) (n int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	live, err := s.auth.CountLive(ctx, email)
	if err != nil {
		return 0, err
	}
	if live <= 1 {
		return 0, nil
	}
	return s.auth.Consolidate(ctx, email)
}

// Start launches both tasks and returns a stop function that cancels them and waits
// for any in-flight run to finish. stop is safe to call more than once.
func (s *Scheduler) Start(ctx context.Context) (stop func()) {
	workerCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	s.launch(workerCtx, &wg, TaskSweep, s.cfg.SweepInterval, func(ctx context.Context) error {
		_, err := s.RunSweep(ctx)
		return err
	})
	s.launch(workerCtx, &wg, TaskConsolidate, s.cfg.ConsolidateInterval, func(ctx context.Context) error {
		_, err := s.RunConsolidation(ctx)
		return err
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

func (s *Scheduler) launch(ctx context.Context, wg *sync.WaitGroup, task string, interval time.Duration, run func(context.Context) error) {
	if interval <= 0 {
		s.logger.Info("maintenance task disabled", "task", task)
		return
	}
	ticker := s.newTicker(interval)
	wg.Add(1)
	go func() {
		defer func() {
			ticker.Stop()
			wg.Done()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				s.runGuarded(ctx, task, run)
			}
		}
	}()
}

// runGuarded keeps a failing or panicking run from stopping the task loop.
func (s *Scheduler) runGuarded(ctx context.Context, task string, run func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.MaintenanceFailure(task)
			s.logger.ErrorContext(ctx, "maintenance task panicked", "task", task, "panic", r)
		}
	}()
	if err := run(ctx); err != nil {
		s.metrics.MaintenanceFailure(task)
		s.logger.ErrorContext(ctx, "maintenance task failed", "task", task, "error", err)
	}
}
