package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

const defaultEmbeddedSelector = "script#__NEXT_DATA__"

// Embedded finds a server-rendered JSON data island in an HTML document and
// applies the SKU quantity rule to it.
type Embedded struct {
	Selector      string
	Marker        string
	Path          string
	QuantityField string
}

// NewEmbedded builds an Embedded strategy. When marker is set it takes
// precedence over the selector.
func NewEmbedded(selector, marker, path, quantityField string) *Embedded {
	if selector == "" && marker == "" {
		selector = defaultEmbeddedSelector
	}
	if path == "" {
		path = defaultSKUPath
	}
	if quantityField == "" {
		quantityField = defaultQuantityField
	}
	return &Embedded{Selector: selector, Marker: marker, Path: path, QuantityField: quantityField}
}

// Extract implements stock.Extractor.
func (e *Embedded) Extract(result stock.FetchResult) stock.Verdict {
	if result.Kind != stock.EmbeddedJSON && result.Kind != stock.RenderedDOM {
		return stock.Indeterminate
	}
	island, ok := e.island(result.Body)
	if !ok {
		return stock.Indeterminate
	}
	root, ok := decodeJSON(island)
	if !ok {
		return stock.Indeterminate
	}
	return skuVerdict(root, e.Path, e.QuantityField)
}

func (e *Embedded) island(body []byte) ([]byte, bool) {
	if e.Marker != "" {
		return objectAfter(body, []byte(e.Marker))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, false
	}
	text := strings.TrimSpace(doc.Find(e.Selector).First().Text())
	if text == "" {
		return nil, false
	}
	return []byte(text), true
}

// objectAfter returns the first balanced JSON object following marker.
func objectAfter(body, marker []byte) ([]byte, bool) {
	idx := bytes.Index(body, marker)
	if idx < 0 {
		return nil, false
	}
	rest := body[idx+len(marker):]
	start := bytes.IndexByte(rest, '{')
	if start < 0 {
		return nil, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(rest); i++ {
		c := rest[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return rest[start : i+1], true
			}
		}
	}
	return nil, false
}
