// Package scheduler runs check cycles aligned to wall-clock interval
// boundaries and dispatches restock alerts.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch/internal/metrics"
	"github.com/JakeFAU/stockwatch/internal/stock"
)

const (
	defaultInterval    = 60 * time.Second
	defaultConcurrency = 8
	maxConcurrency     = 16
	defaultGrace       = 20 * time.Second
)

// Checker checks a single target.
type Checker interface {
	Check(ctx context.Context, target stock.Target) stock.Outcome
}

// Config controls the loop.
type Config struct {
	Interval       time.Duration
	Concurrency    int
	RunImmediately bool
	ShutdownGrace  time.Duration
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	ID           string
	StartedAt    time.Time
	Duration     time.Duration
	Checked      int
	Transitioned int
	Failed       int
	Notified     int
	Skipped      int
}

// Scheduler owns the Sleeping/RunningCycle loop.
type Scheduler struct {
	targets  []stock.Target
	checker  Checker
	notifier stock.Notifier
	clock    stock.Clock
	ids      stock.IDGenerator
	cfg      Config
	logger   *zap.Logger

	heartbeat atomic.Int64
	sleep     func(context.Context, time.Duration) error
}

// New constructs a Scheduler.
func New(
	targets []stock.Target,
	checker Checker,
	notifier stock.Notifier,
	clock stock.Clock,
	ids stock.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Concurrency > maxConcurrency {
		cfg.Concurrency = maxConcurrency
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultGrace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		targets:  append([]stock.Target(nil), targets...),
		checker:  checker,
		notifier: notifier,
		clock:    clock,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// NextDelay returns the time until the next multiple of interval since the
// Unix epoch. On an exact boundary it returns a full interval.
func NextDelay(now time.Time, interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	elapsed := time.Duration(now.UnixNano()) % interval
	return interval - elapsed
}

// Run blocks until ctx is canceled. The first cycle starts on the next
// interval boundary unless RunImmediately is set.
func (s *Scheduler) Run(ctx context.Context) error {
	s.beat()
	s.logger.Info("scheduler started",
		zap.Int("targets", len(s.targets)),
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("concurrency", s.cfg.Concurrency),
	)
	if !s.cfg.RunImmediately {
		if err := s.wait(ctx); err != nil {
			return nil
		}
	}
	for {
		s.beat()
		if ctx.Err() != nil {
			return nil
		}
		s.safeCycle(ctx)
		s.beat()
		if err := s.wait(ctx); err != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}
	}
}

// RunOnce runs a single cycle over all targets and returns its summary.
func (s *Scheduler) RunOnce(ctx context.Context) CycleReport {
	started := s.clock.Now()
	report := CycleReport{ID: s.cycleID(), StartedAt: started}
	logger := s.logger.With(zap.String("cycle_id", report.ID))
	logger.Debug("cycle started", zap.Int("targets", len(s.targets)))

	// In-flight checks outlive a shutdown signal by at most ShutdownGrace.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	stop := context.AfterFunc(ctx, func() {
		timer := time.NewTimer(s.cfg.ShutdownGrace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancelWork()
		case <-workCtx.Done():
		}
	})
	defer stop()

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan stock.Target)
	)
	record := func(fn func(*CycleReport)) {
		mu.Lock()
		fn(&report)
		mu.Unlock()
	}

	for range min(s.cfg.Concurrency, max(len(s.targets), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				s.process(workCtx, logger, target, record)
			}
		}()
	}

	for i, target := range s.targets {
		if ctx.Err() != nil {
			record(func(r *CycleReport) { r.Skipped += len(s.targets) - i })
			break
		}
		jobs <- target
	}
	close(jobs)
	wg.Wait()

	report.Duration = s.clock.Now().Sub(started)
	status := "ok"
	switch {
	case report.Skipped > 0:
		status = "canceled"
	case report.Failed > 0:
		status = "partial"
	}
	metrics.ObserveCycle(status, report.Duration)
	logger.Info("cycle finished",
		zap.String("status", status),
		zap.Int("checked", report.Checked),
		zap.Int("transitioned", report.Transitioned),
		zap.Int("failed", report.Failed),
		zap.Int("notified", report.Notified),
		zap.Duration("duration", report.Duration),
	)
	return report
}

func (s *Scheduler) process(ctx context.Context, logger *zap.Logger, target stock.Target, record func(func(*CycleReport))) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("target check panicked",
				zap.String("target", target.Identity()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			record(func(rep *CycleReport) { rep.Failed++ })
		}
	}()

	outcome := s.checker.Check(ctx, target)
	s.beat()
	switch outcome.Kind {
	case stock.OutcomeFailed:
		logger.Warn("target check failed",
			zap.String("target", target.Identity()),
			zap.Int("attempts", outcome.Attempts),
			zap.String("error_kind", stock.ErrorKind(outcome.Err)),
			zap.Error(outcome.Err),
		)
		record(func(r *CycleReport) { r.Checked++; r.Failed++ })
		return
	case stock.OutcomeTransitioned:
		logger.Info("availability changed",
			zap.String("target", target.Identity()),
			zap.String("from", string(outcome.Previous.Availability)),
			zap.String("to", string(outcome.Current.Availability)),
		)
		record(func(r *CycleReport) { r.Checked++; r.Transitioned++ })
	default:
		record(func(r *CycleReport) { r.Checked++ })
	}

	if !outcome.Restocked() || s.notifier == nil {
		return
	}
	alert := stock.NewAlert(target, outcome.Current.ObservedAt.Local())
	if err := s.notifier.Notify(ctx, alert); err != nil {
		metrics.ObserveNotification("failed")
		logger.Error("notification failed",
			zap.String("target", target.Identity()),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveNotification("sent")
	record(func(r *CycleReport) { r.Notified++ })
}

func (s *Scheduler) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveCycle("panic", 0)
			s.logger.Error("cycle panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()
	s.RunOnce(ctx)
}

func (s *Scheduler) wait(ctx context.Context) error {
	delay := NextDelay(s.clock.Now(), s.cfg.Interval)
	s.logger.Debug("sleeping until next cycle", zap.Duration("delay", delay))
	return s.sleep(ctx, delay)
}

func (s *Scheduler) cycleID() string {
	if s.ids == nil {
		return ""
	}
	id, err := s.ids.NewID()
	if err != nil {
		s.logger.Warn("cycle id generation failed", zap.Error(err))
		return ""
	}
	return id
}

func (s *Scheduler) beat() {
	s.heartbeat.Store(s.clock.Now().UnixNano())
}

// LastHeartbeat returns when the loop last made progress.
func (s *Scheduler) LastHeartbeat() time.Time {
	n := s.heartbeat.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Ready reports whether the loop heartbeat is within two intervals of now.
func (s *Scheduler) Ready(now time.Time) bool {
	last := s.LastHeartbeat()
	if last.IsZero() {
		return false
	}
	return now.Sub(last) <= 2*s.cfg.Interval
}

// Interval returns the configured cycle interval.
func (s *Scheduler) Interval() time.Duration {
	return s.cfg.Interval
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
