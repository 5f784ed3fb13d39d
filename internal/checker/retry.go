package checker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

// LinearRetryPolicy waits attempt*Unit before the next attempt.
type LinearRetryPolicy struct {
	MaxAttempts int
	Unit        time.Duration
}

// NewLinearRetryPolicy builds a policy, defaulting to 3 attempts spaced 1s, 2s.
func NewLinearRetryPolicy(maxAttempts int, unit time.Duration) LinearRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if unit < 0 {
		unit = 0
	}
	return LinearRetryPolicy{MaxAttempts: maxAttempts, Unit: unit}
}

// ShouldRetry decides whether the failure of attempt (1-based) warrants another.
func (p LinearRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *stock.FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return true
}

// Backoff returns the wait before attempt+1.
func (p LinearRetryPolicy) Backoff(attempt int) time.Duration {
	return time.Duration(attempt) * p.Unit
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
