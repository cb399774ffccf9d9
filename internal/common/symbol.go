// Package common provides shared utilities across the application.
package common

import (
	"strings"
)

// NotAvailable is the textual absence marker used throughout fact-card files.
const NotAvailable = "N/A"

// NormalizeSymbol normalizes an equity ticker or token symbol.
// Supports formats:
//   - "MSTR"   -> "MSTR"
//   - "$mstr"  -> "MSTR" (leading dollar stripped, uppercased)
//   - " $ BTC" -> "BTC"
//   - "N/A"    -> ""     (sentinel treated as absent)
//
// The result never starts with '$' or whitespace, so normalizing twice
// yields the same value.
func NormalizeSymbol(value string) string {
	s := strings.TrimSpace(value)
	for strings.HasPrefix(s, "$") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	}
	if s == "" || IsNotAvailable(s) {
		return ""
	}
	return strings.ToUpper(s)
}

// IsNotAvailable reports whether value is the "N/A" sentinel (case-insensitive).
func IsNotAvailable(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), NotAvailable)
}

// IsBlank reports whether value carries no usable data: empty, whitespace or "N/A".
func IsBlank(value string) bool {
	return strings.TrimSpace(value) == "" || IsNotAvailable(value)
}

// NormalizeSymbols normalizes a list of symbols, dropping empties and duplicates.
func NormalizeSymbols(values []string) []string {
	result := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		n := NormalizeSymbol(v)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		result = append(result, n)
	}
	return result
}
