package stock

import (
	"context"
	"time"
)

// Fetcher retrieves the current representation of a target.
type Fetcher interface {
	Fetch(ctx context.Context, target Target) (FetchResult, error)
}

// Extractor maps fetched content to a Verdict. Implementations must be pure.
type Extractor interface {
	Extract(result FetchResult) Verdict
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(FetchResult) Verdict

// Extract calls f(result).
func (f ExtractorFunc) Extract(result FetchResult) Verdict {
	return f(result)
}

// StateStore persists one StateRecord per target identity.
type StateStore interface {
	Get(ctx context.Context, identity string) (StateRecord, bool, error)
	Put(ctx context.Context, record StateRecord) error
	Close() error
}

// Notifier delivers restock alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces cycle IDs.
type IDGenerator interface {
	NewID() (string, error)
}
