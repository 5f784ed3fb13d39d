package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

// ErrDisabled is returned when a target asks for a browser but headless
// fetching is turned off.
var ErrDisabled = errors.New("headless fetcher not configured")

// Noop implements stock.Fetcher but always fails. It is wired in when
// headless.enabled is false.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns a non-retryable FetchUnsupported error.
func (Noop) Fetch(_ context.Context, target stock.Target) (stock.FetchResult, error) {
	return stock.FetchResult{}, &stock.FetchError{
		Kind: stock.FetchUnsupported,
		URL:  target.URL,
		Err:  ErrDisabled,
	}
}

// Close is a no-op.
func (Noop) Close() error {
	return nil
}
