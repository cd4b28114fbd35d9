// Package datasets provides helpers shared by the per-dataset ETL plugins:
// department-code normalization and delimited-table reading.
//
// Different providers spell the same department differently ("1", "01",
// "2a"). Without normalization the same area appears as distinct natural keys
// across datasets, breaking the foreign-key joins downstream analytics rely
// on, so every plugin funnels codes through NormalizeDepartmentCode before
// building load records.
package datasets

import (
	"strings"
)

const metropolitanCodeLen = 2

// NormalizeDepartmentCode canonicalizes a French department code.
//
// Normalization rules:
//  1. Trim surrounding whitespace.
//  2. Zero-pad single-digit metropolitan codes ("1" → "01").
//  3. Uppercase the Corsican letter codes ("2a" → "2A", "2b" → "2B").
//  4. Overseas codes ("971"–"976") pass through unchanged.
//
// Returns the empty string for input that cannot be a department code.
func NormalizeDepartmentCode(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return ""
	}

	upper := strings.ToUpper(trimmed)

	if len(upper) < metropolitanCodeLen && isDigits(upper) {
		return "0" + upper
	}

	return upper
}

// IsOverseas reports whether a normalized department code belongs to an
// overseas department (971–976) or collectivity (98x).
func IsOverseas(code string) bool {
	return len(code) > metropolitanCodeLen
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return len(s) > 0
}
