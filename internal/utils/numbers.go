// Package utils provides small, domain-independent helpers shared by the
// HTTP and service layers.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s (surrounding spaces ignored) as a decimal int and
// returns def when s is empty or not a valid int.
//
//	utils.AtoiDefault("42", 0)  // 42
//	utils.AtoiDefault(" 7 ", 0) // 7
//	utils.AtoiDefault("x", 5)   // 5
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
