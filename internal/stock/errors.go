package stock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrIndeterminate is reported when no extractor reached a definite verdict.
	ErrIndeterminate = errors.New("availability indeterminate")
	// ErrStoreUnavailable wraps any state store failure.
	ErrStoreUnavailable = errors.New("state store unavailable")
	// ErrNotifyFailed wraps alert delivery failures.
	ErrNotifyFailed = errors.New("notification delivery failed")
)

// FetchErrorKind categorizes fetch failures.
type FetchErrorKind string

// Fetch error kinds. FetchUnsupported means no configured fetcher can serve
// the target.
const (
	FetchTimeout            FetchErrorKind = "timeout"
	FetchNetwork            FetchErrorKind = "network"
	FetchUpstreamHTTP       FetchErrorKind = "upstream_http"
	FetchContentUnavailable FetchErrorKind = "content_unavailable"
	FetchUnsupported        FetchErrorKind = "unsupported"
)

// FetchError is returned by Fetcher implementations.
type FetchError struct {
	Kind   FetchErrorKind
	Status int
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	msg := string(e.Kind)
	if e.Kind == FetchUpstreamHTTP {
		msg = fmt.Sprintf("%s %d", msg, e.Status)
	}
	if e.URL != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.URL)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed. Client errors other
// than 408 and 429 are permanent, as is an unsupported fetch mode.
func (e *FetchError) Retryable() bool {
	if e.Kind == FetchUnsupported {
		return false
	}
	if e.Kind != FetchUpstreamHTTP {
		return true
	}
	if e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout {
		return true
	}
	return e.Status >= http.StatusInternalServerError || e.Status < http.StatusBadRequest
}

// ClassifyTransportError wraps a transport failure in a FetchError.
func ClassifyTransportError(url string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := FetchNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = FetchTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = FetchTimeout
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}

// ErrorKind returns a short label for logs and metrics.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var fe *FetchError
	switch {
	case errors.As(err, &fe):
		return string(fe.Kind)
	case errors.Is(err, ErrIndeterminate):
		return "indeterminate"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}
