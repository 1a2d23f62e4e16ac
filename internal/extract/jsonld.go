// Package extract turns fetched page content into a price. The default
// strategy reads schema.org offers from JSON-LD script blocks; it never
// returns an error, any malformed input simply yields no price.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// JSONLD extracts offers.price from <script type="application/ld+json">
// blocks. The first syntactically valid price in document order wins; no
// attempt is made to pick the lowest or "main" offer.
type JSONLD struct{}

// Extract implements the checker's extractor contract. It is pure: the same
// input always yields the same result.
func (JSONLD) Extract(page []byte) (price float64, ok bool) {
	// Extraction is total: a panic anywhere yields no price.
	defer func() {
		if r := recover(); r != nil {
			price, ok = 0, false
		}
	}()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return 0, false
	}
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		txt := strings.TrimSpace(s.Text())
		if txt == "" {
			return true
		}
		data, err := decodeBlock(txt)
		if err != nil {
			return true
		}
		price, ok = fromNode(data)
		return !ok
	})
	return price, ok
}

// decodeBlock parses one script body as exactly one JSON value. Trailing
// data after the value makes the whole block invalid.
func decodeBlock(txt string) (any, error) {
	var data any
	dec := json.NewDecoder(strings.NewReader(txt))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return data, nil
}

var errTrailingData = errors.New("extract: trailing data after JSON-LD value")

// fromNode accepts either a single object or a top-level array of objects.
func fromNode(data any) (float64, bool) {
	items, isList := data.([]any)
	if !isList {
		items = []any{data}
	}
	for _, it := range items {
		obj, isObj := it.(map[string]any)
		if !isObj {
			continue
		}
		if p, ok := fromOffers(obj["offers"]); ok {
			return p, true
		}
	}
	return 0, false
}

// fromOffers reads price from an offers object or from the first list entry
// carrying a parsable price.
func fromOffers(offers any) (float64, bool) {
	switch o := offers.(type) {
	case map[string]any:
		return priceValue(o["price"])
	case []any:
		for _, it := range o {
			if m, isObj := it.(map[string]any); isObj {
				if p, ok := priceValue(m["price"]); ok {
					return p, true
				}
			}
		}
	}
	return 0, false
}

func priceValue(v any) (float64, bool) {
	switch p := v.(type) {
	case json.Number:
		// Already a JSON number, so exponents are legitimate here.
		f, err := p.Float64()
		if err != nil || f < 0 {
			return 0, false
		}
		return f, true
	case string:
		return ParsePrice(p)
	}
	return 0, false
}
