package extract

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ParsePrice parses a locale-formatted price string. Embedded whitespace
// (including non-breaking and narrow spaces used as thousands separators) is
// removed and ',' is read as the decimal separator, so "1 234,56" and
// "1234.56" both yield 1234.56.
//
// After that cleanup only plain decimal notation is accepted: an optional
// leading '+', digits and at most one '.'. Signs, exponents, hex floats and
// words such as "NaN" or "Inf" are rejected.
func ParsePrice(s string) (float64, bool) {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	if !plainDecimal(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// plainDecimal reports whether s is [+]digits[.digits] with at least one
// digit overall.
func plainDecimal(s string) bool {
	s = strings.TrimPrefix(s, "+")
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}
