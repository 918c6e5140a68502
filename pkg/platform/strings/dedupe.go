// Package strings provides string helpers for configuration parsing.
package strings

import (
	"strings"
)

// SplitList splits a comma separated value into trimmed, lowercased, unique
// entries. Empty entries are dropped and first-seen order is kept.
//
// Example:
//
//	SplitList(" Move, ability,,move ")
//	// Returns: []string{"move", "ability"}
func SplitList(raw string) []string {
	return dedupe(strings.Split(raw, ","), strings.ToLower)
}

// DedupeAndTrim removes duplicates and blanks from values after trimming.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, nil)
}

func dedupe(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if normalize != nil {
			v = normalize(v)
		}
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
