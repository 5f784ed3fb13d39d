// Package detector decides when an HTTP fetch must be retried in a browser.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

const defaultThreshold = 2048

// mountSelectors match the root nodes client-side frameworks hydrate into.
const mountSelectors = `#root, #app, #__next, [data-reactroot], [ng-app], [data-server-rendered]`

// Heuristic flags un-hydrated single page application shells.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector. A zero threshold uses 2 KiB.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// ShouldPromote reports whether result looks like a page whose availability
// controls are only produced by JavaScript.
func (h *Heuristic) ShouldPromote(result stock.FetchResult) bool {
	if result.Rendered || result.StatusCode != http.StatusOK {
		return false
	}
	if result.Kind == stock.StructuredJSON {
		return false
	}
	body := result.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	return emptyMountNode(body)
}

// emptyMountNode reports whether a framework mount point exists without any
// server-rendered children.
func emptyMountNode(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	empty := false
	doc.Find(mountSelectors).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() == 0 && strings.TrimSpace(s.Text()) == "" {
			empty = true
			return false
		}
		return true
	})
	return empty
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		end := strings.Index(lower[start:], closeTag)
		if end == -1 {
			// unterminated
			covered += total - start
			break
		}
		next := start + end + len(closeTag)
		covered += next - start
		pos = next
	}
	return covered*100/total >= 25
}
