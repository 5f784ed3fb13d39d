// Package stock defines the core types shared across the watcher subsystems.
package stock

import (
	"fmt"
	"strings"
	"time"
)

// Availability is the persisted two-valued stock state of a target.
type Availability string

// Availability values stored in StateRecords.
const (
	OutOfStock Availability = "out"
	InStock    Availability = "in"
)

// ParseAvailability converts a persisted value back to an Availability.
func ParseAvailability(raw string) (Availability, error) {
	switch Availability(strings.ToLower(strings.TrimSpace(raw))) {
	case InStock:
		return InStock, nil
	case OutOfStock:
		return OutOfStock, nil
	default:
		return "", fmt.Errorf("unknown availability %q", raw)
	}
}

// Verdict is the outcome of running extractors over one FetchResult.
type Verdict int

// Verdict values. Indeterminate is never persisted.
const (
	Indeterminate Verdict = iota
	VerdictInStock
	VerdictOutOfStock
)

func (v Verdict) String() string {
	switch v {
	case VerdictInStock:
		return "in_stock"
	case VerdictOutOfStock:
		return "out_of_stock"
	default:
		return "indeterminate"
	}
}

// Definite reports whether the verdict can be persisted.
func (v Verdict) Definite() bool {
	return v == VerdictInStock || v == VerdictOutOfStock
}

// Availability maps a definite verdict to its stored value. Indeterminate
// maps to OutOfStock, callers must check Definite first.
func (v Verdict) Availability() Availability {
	if v == VerdictInStock {
		return InStock
	}
	return OutOfStock
}

// ContentKind tags what a fetcher returned so the matching extractor runs.
type ContentKind string

// Content kinds understood by the extractors.
const (
	StructuredJSON ContentKind = "structured_json"
	EmbeddedJSON   ContentKind = "embedded_json"
	RenderedDOM    ContentKind = "rendered_dom"
)

// FetchMode selects which fetcher serves a target.
type FetchMode string

// Fetch modes.
const (
	FetchHTTP    FetchMode = "http"
	FetchBrowser FetchMode = "browser"
	FetchAuto    FetchMode = "auto"
)

// Hints carries per-target extraction knowledge supplied via configuration.
type Hints struct {
	// SKUPath is the dotted path to the SKU list inside the JSON payload.
	SKUPath       string `mapstructure:"sku_path"`
	QuantityField string `mapstructure:"quantity_field"`

	// EmbeddedSelector locates the data island, e.g. script#__NEXT_DATA__.
	EmbeddedSelector string `mapstructure:"embedded_selector"`
	// EmbeddedMarker is a literal anchor followed by a JSON object.
	EmbeddedMarker  string `mapstructure:"embedded_marker"`
	EmbeddedSKUPath string `mapstructure:"embedded_sku_path"`

	PositivePhrases []string `mapstructure:"positive_phrases"`
	NegativePhrases []string `mapstructure:"negative_phrases"`
	DOMSelector     string   `mapstructure:"dom_selector"`
	ScanBody        bool     `mapstructure:"scan_body"`
	IgnoreDisabled  bool     `mapstructure:"ignore_disabled"`

	// ReadySelector is awaited by rendering fetchers before capturing the DOM.
	ReadySelector string `mapstructure:"ready_selector"`
}

// Target is one monitored product page or API endpoint.
type Target struct {
	ID      string            `mapstructure:"id"`
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Kind    ContentKind       `mapstructure:"kind"`
	Fetch   FetchMode         `mapstructure:"fetch"`
	Headers map[string]string `mapstructure:"headers"`
	Hints   Hints             `mapstructure:"hints"`
}

// Identity returns the key used by the state store.
func (t Target) Identity() string {
	if t.ID != "" {
		return t.ID
	}
	return t.URL
}

// DisplayName returns a human-friendly label for logs and alerts.
func (t Target) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Identity()
}

// StateRecord is the durable last-known availability for a target.
type StateRecord struct {
	Identity     string       `json:"identity"`
	Availability Availability `json:"availability"`
	ObservedAt   time.Time    `json:"observed_at"`
}

// FetchResult is the transient representation produced by one fetch attempt.
type FetchResult struct {
	URL        string
	StatusCode int
	Kind       ContentKind
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// OutcomeKind classifies a finished check.
type OutcomeKind string

// Outcome kinds.
const (
	OutcomeUnchanged    OutcomeKind = "unchanged"
	OutcomeTransitioned OutcomeKind = "transitioned"
	OutcomeFailed       OutcomeKind = "failed"
)

// Outcome is the result of checking one target.
type Outcome struct {
	Target   Target
	Kind     OutcomeKind
	Verdict  Verdict
	Previous StateRecord
	// Known is false when no prior record existed.
	Known    bool
	Current  StateRecord
	Attempts int
	Err      error
}

// Restocked reports whether the outcome is the alerting out-to-in edge.
func (o Outcome) Restocked() bool {
	return o.Kind == OutcomeTransitioned && o.Verdict == VerdictInStock
}

// Alert is the payload handed to notifiers for a restock transition.
type Alert struct {
	Identity   string
	Name       string
	URL        string
	Message    string
	ObservedAt time.Time
}

// NewAlert formats the standard restock message for a target.
func NewAlert(t Target, observedAt time.Time) Alert {
	return Alert{
		Identity:   t.Identity(),
		Name:       t.DisplayName(),
		URL:        t.URL,
		Message:    fmt.Sprintf("[%s] IN STOCK → %s", observedAt.Format("15:04"), t.URL),
		ObservedAt: observedAt,
	}
}
