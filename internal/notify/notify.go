// Package notify delivers restock alerts.
//
// Every notifier implements stock.Notifier. Failures wrap
// stock.ErrNotifyFailed; callers log them and never roll back state.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

// Log writes alerts to the structured logger. It is always wired so alerts
// are visible even without a delivery channel.
type Log struct {
	logger *zap.Logger
}

// NewLog builds a Log notifier.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Notify logs the alert.
func (l *Log) Notify(_ context.Context, alert stock.Alert) error {
	l.logger.Info(alert.Message,
		zap.String("target", alert.Identity),
		zap.String("name", alert.Name),
		zap.String("url", alert.URL),
		zap.Time("observed_at", alert.ObservedAt),
	)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []stock.Notifier

// Notify delivers to all notifiers even when some fail.
func (m Multi) Notify(ctx context.Context, alert stock.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", stock.ErrNotifyFailed, errors.Join(errs...))
}

func deliveryError(channel string, err error) error {
	return fmt.Errorf("%s: %w: %w", channel, stock.ErrNotifyFailed, err)
}
