package extract

import (
	"github.com/JakeFAU/stockwatch/internal/stock"
)

// Chain tries strategies in order; the first definite verdict wins.
type Chain []stock.Extractor

// Extract implements stock.Extractor.
func (c Chain) Extract(result stock.FetchResult) stock.Verdict {
	for _, strategy := range c {
		if v := strategy.Extract(result); v.Definite() {
			return v
		}
	}
	return stock.Indeterminate
}

// Defaults holds phrase lists applied to targets that do not set their own.
type Defaults struct {
	PositivePhrases []string
	NegativePhrases []string
}

// ForTarget assembles the strategy chain for a target in the fixed priority
// structured, embedded, rendered.
func ForTarget(target stock.Target, defaults Defaults) Chain {
	h := target.Hints
	positive := h.PositivePhrases
	if len(positive) == 0 {
		positive = defaults.PositivePhrases
	}
	if len(positive) == 0 {
		positive = DefaultPositivePhrases
	}
	negative := h.NegativePhrases
	if len(negative) == 0 {
		negative = defaults.NegativePhrases
	}
	if len(negative) == 0 {
		negative = DefaultNegativePhrases
	}
	embeddedPath := h.EmbeddedSKUPath
	if embeddedPath == "" {
		embeddedPath = h.SKUPath
	}
	return Chain{
		NewStructured(h.SKUPath, h.QuantityField),
		NewEmbedded(h.EmbeddedSelector, h.EmbeddedMarker, embeddedPath, h.QuantityField),
		NewRendered(positive, negative, h.DOMSelector, h.ScanBody, h.IgnoreDisabled),
	}
}
