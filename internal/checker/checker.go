// Package checker runs the fetch, extract, retry and persist sequence for a
// single target.
package checker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch/internal/metrics"
	"github.com/JakeFAU/stockwatch/internal/stock"
)

// ExtractorFactory returns the strategy chain for a target.
type ExtractorFactory func(stock.Target) stock.Extractor

// Config controls retry behavior.
type Config struct {
	MaxAttempts int
	BackoffUnit time.Duration
}

// Checker produces an Outcome per target and owns the StateRecord write.
type Checker struct {
	fetcher    stock.Fetcher
	store      stock.StateStore
	clock      stock.Clock
	extractors ExtractorFactory
	retry      LinearRetryPolicy
	logger     *zap.Logger
	sleep      func(context.Context, time.Duration) error
}

// New constructs a Checker.
func New(
	fetcher stock.Fetcher,
	store stock.StateStore,
	clock stock.Clock,
	extractors ExtractorFactory,
	cfg Config,
	logger *zap.Logger,
) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		fetcher:    fetcher,
		store:      store,
		clock:      clock,
		extractors: extractors,
		retry:      NewLinearRetryPolicy(cfg.MaxAttempts, cfg.BackoffUnit),
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Check fetches and classifies target. The prior record is read once before
// the first attempt; nothing is written unless a definite verdict is reached.
func (c *Checker) Check(ctx context.Context, target stock.Target) stock.Outcome {
	identity := target.Identity()
	out := stock.Outcome{Target: target}

	prev, known, err := c.store.Get(ctx, identity)
	if err != nil {
		out.Kind = stock.OutcomeFailed
		out.Err = fmt.Errorf("read prior state: %w", err)
		metrics.ObserveCheck(target.URL, string(out.Kind))
		return out
	}
	if !known {
		prev = stock.StateRecord{Identity: identity, Availability: stock.OutOfStock}
	}
	out.Previous = prev
	out.Known = known

	verdict, attempts, err := c.resolve(ctx, target)
	out.Verdict = verdict
	out.Attempts = attempts
	if !verdict.Definite() {
		out.Kind = stock.OutcomeFailed
		out.Err = err
		metrics.ObserveCheck(target.URL, string(out.Kind))
		return out
	}

	current := stock.StateRecord{
		Identity:     identity,
		Availability: verdict.Availability(),
		ObservedAt:   c.clock.Now(),
	}
	out.Current = current
	out.Kind = stock.OutcomeUnchanged
	if current.Availability != prev.Availability {
		out.Kind = stock.OutcomeTransitioned
	}

	if err := c.store.Put(ctx, current); err != nil {
		out.Kind = stock.OutcomeFailed
		out.Err = fmt.Errorf("write state: %w", err)
		metrics.ObserveCheck(target.URL, string(out.Kind))
		return out
	}
	metrics.SetInStock(identity, current.Availability == stock.InStock)
	metrics.ObserveCheck(target.URL, string(out.Kind))
	return out
}

// resolve attempts fetch+extract until a definite verdict or the budget runs out.
func (c *Checker) resolve(ctx context.Context, target stock.Target) (stock.Verdict, int, error) {
	extractor := c.extractors(target)
	var lastErr error
	attempt := 0
	for {
		attempt++
		verdict, err := c.attempt(ctx, target, extractor)
		if err == nil {
			return verdict, attempt, nil
		}
		lastErr = err
		c.logger.Debug("check attempt failed",
			zap.String("target", target.Identity()),
			zap.Int("attempt", attempt),
			zap.String("error_kind", stock.ErrorKind(err)),
			zap.Error(err),
		)
		if !c.retry.ShouldRetry(err, attempt) {
			return stock.Indeterminate, attempt, lastErr
		}
		if err := c.sleep(ctx, c.retry.Backoff(attempt)); err != nil {
			return stock.Indeterminate, attempt, errors.Join(lastErr, err)
		}
	}
}

func (c *Checker) attempt(ctx context.Context, target stock.Target, extractor stock.Extractor) (stock.Verdict, error) {
	result, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		metrics.ObserveAttempt(target.URL, stock.ErrorKind(err), 0)
		return stock.Indeterminate, fmt.Errorf("fetch: %w", err)
	}
	verdict := extractor.Extract(result)
	if !verdict.Definite() {
		metrics.ObserveAttempt(target.URL, "indeterminate", len(result.Body))
		return stock.Indeterminate, fmt.Errorf("extract %s: %w", result.Kind, stock.ErrIndeterminate)
	}
	metrics.ObserveAttempt(target.URL, verdict.String(), len(result.Body))
	return verdict, nil
}
