package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

const defaultDOMSelector = `button, a, [role="button"], input[type="submit"]`

// DefaultPositivePhrases mark an add-to-cart affordance.
var DefaultPositivePhrases = []string{"add to bag", "add to cart"}

// DefaultNegativePhrases mark a waitlist or sold-out affordance.
var DefaultNegativePhrases = []string{"notify me", "sold out", "out of stock", "join waitlist"}

// Rendered scans rendered DOM text for positive and negative marker phrases.
//
// Decision table: positive only is InStock, negative only is OutOfStock, both
// is InStock, neither is Indeterminate.
type Rendered struct {
	Positive       []string
	Negative       []string
	Selector       string
	ScanBody       bool
	IgnoreDisabled bool
}

// NewRendered builds a Rendered strategy with normalized phrases.
func NewRendered(positive, negative []string, selector string, scanBody, ignoreDisabled bool) *Rendered {
	if selector == "" {
		selector = defaultDOMSelector
	}
	return &Rendered{
		Positive:       normalizeAll(positive),
		Negative:       normalizeAll(negative),
		Selector:       selector,
		ScanBody:       scanBody,
		IgnoreDisabled: ignoreDisabled,
	}
}

// Extract implements stock.Extractor.
func (r *Rendered) Extract(result stock.FetchResult) stock.Verdict {
	if result.Kind != stock.RenderedDOM && result.Kind != stock.EmbeddedJSON {
		return stock.Indeterminate
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Body))
	if err != nil {
		return stock.Indeterminate
	}

	var positive, negative bool
	doc.Find(r.Selector).Each(func(_ int, sel *goquery.Selection) {
		text := nodeText(sel)
		if text == "" {
			return
		}
		if containsAny(text, r.Negative) {
			negative = true
		}
		if r.IgnoreDisabled && isDisabled(sel) {
			return
		}
		if containsAny(text, r.Positive) {
			positive = true
		}
	})
	if r.ScanBody {
		body := doc.Find("body")
		negative = negative || containsAny(normalize(body.Text()), r.Negative)
		if r.IgnoreDisabled {
			body = body.Clone()
			body.Find("[disabled],[aria-disabled]").FilterFunction(func(_ int, sel *goquery.Selection) bool {
				return isDisabled(sel)
			}).Remove()
		}
		positive = positive || containsAny(normalize(body.Text()), r.Positive)
	}
	return decide(positive, negative)
}

func decide(positive, negative bool) stock.Verdict {
	switch {
	case positive:
		return stock.VerdictInStock
	case negative:
		return stock.VerdictOutOfStock
	default:
		return stock.Indeterminate
	}
}

func nodeText(sel *goquery.Selection) string {
	text := sel.Text()
	if goquery.NodeName(sel) == "input" {
		text, _ = sel.Attr("value")
	}
	if label, ok := sel.Attr("aria-label"); ok && strings.TrimSpace(text) == "" {
		text = label
	}
	return normalize(text)
}

func isDisabled(sel *goquery.Selection) bool {
	if _, ok := sel.Attr("disabled"); ok {
		return true
	}
	v, _ := sel.Attr("aria-disabled")
	return strings.EqualFold(v, "true")
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// normalize lower-cases and collapses whitespace.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if n := normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}
