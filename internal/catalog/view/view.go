// Package view derives the filtered projection of a catalog collection.
package view

import (
	"strings"

	"golang.org/x/text/cases"

	"dex/internal/catalog/models"
)

// Matcher builds the predicate for one non-blank query.
type Matcher func(query string) func(models.DetailRecord) bool

// ByName matches records whose name contains query, ignoring case.
func ByName(query string) func(models.DetailRecord) bool {
	fold := cases.Fold()
	needle := fold.String(query)
	return func(r models.DetailRecord) bool {
		return strings.Contains(fold.String(r.Name), needle)
	}
}

// ByNameOrID also matches records whose ID contains query verbatim.
func ByNameOrID(query string) func(models.DetailRecord) bool {
	byName := ByName(query)
	return func(r models.DetailRecord) bool {
		return byName(r) || (r.ID != "" && strings.Contains(r.ID, query))
	}
}

// Compute returns the records whose name contains query, ignoring case, in
// input order. A blank query matches everything; otherwise query is matched
// as given, surrounding spaces included. The input is never modified and the
// result never aliases it.
func Compute(records []models.DetailRecord, query string) []models.DetailRecord {
	return ComputeWith(records, query, ByName)
}

// ComputeWith is Compute with a custom matcher. A nil matcher means ByName.
func ComputeWith(records []models.DetailRecord, query string, match Matcher) []models.DetailRecord {
	out := make([]models.DetailRecord, 0, len(records))
	if strings.TrimSpace(query) == "" {
		return append(out, records...)
	}
	if match == nil {
		match = ByName
	}

	keep := match(query)
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
