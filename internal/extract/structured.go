// Package extract implements the availability extraction strategies.
//
// Every strategy is a pure function of a stock.FetchResult. Strategies return
// stock.Indeterminate whenever the payload does not carry enough information,
// which lets a Chain fall through to the next strategy and lets the checker
// retry. Missing data is never reported as OutOfStock.
package extract

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

const (
	defaultSKUPath       = "skus"
	defaultQuantityField = "quantity"
)

// Structured decides availability from a JSON API payload listing SKUs.
type Structured struct {
	// Path is the dotted path to the SKU list. "." selects the document root.
	Path          string
	QuantityField string
}

// NewStructured builds a Structured strategy, applying defaults for blank fields.
func NewStructured(path, quantityField string) *Structured {
	if path == "" {
		path = defaultSKUPath
	}
	if quantityField == "" {
		quantityField = defaultQuantityField
	}
	return &Structured{Path: path, QuantityField: quantityField}
}

// Extract implements stock.Extractor.
func (s *Structured) Extract(result stock.FetchResult) stock.Verdict {
	if result.Kind != stock.StructuredJSON {
		return stock.Indeterminate
	}
	root, ok := decodeJSON(result.Body)
	if !ok {
		return stock.Indeterminate
	}
	return skuVerdict(root, s.Path, s.QuantityField)
}

func decodeJSON(data []byte) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, false
	}
	return root, true
}

// skuVerdict applies the on-hand quantity rule: any SKU with quantity > 0 is
// InStock. OutOfStock requires every SKU to report a readable quantity.
func skuVerdict(root any, path, field string) stock.Verdict {
	node, ok := lookup(root, path)
	if !ok {
		return stock.Indeterminate
	}
	skus, ok := node.([]any)
	if !ok || len(skus) == 0 {
		return stock.Indeterminate
	}
	complete := true
	for _, raw := range skus {
		sku, ok := raw.(map[string]any)
		if !ok {
			complete = false
			continue
		}
		qty, ok := toFloat(sku[field])
		if !ok {
			complete = false
			continue
		}
		if qty > 0 {
			return stock.VerdictInStock
		}
	}
	if !complete {
		return stock.Indeterminate
	}
	return stock.VerdictOutOfStock
}

func lookup(root any, path string) (any, bool) {
	path = strings.Trim(path, ". ")
	if path == "" {
		return root, true
	}
	node := root
	for _, segment := range strings.Split(path, ".") {
		switch typed := node.(type) {
		case map[string]any:
			next, ok := typed[segment]
			if !ok {
				return nil, false
			}
			node = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(typed) {
				return nil, false
			}
			node = typed[idx]
		default:
			return nil, false
		}
	}
	return node, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return finite(f, err)
	case float64:
		return finite(n, nil)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return finite(f, err)
	default:
		return 0, false
	}
}

// finite rejects NaN and infinities so they read as malformed quantities.
func finite(f float64, err error) (float64, bool) {
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
