package models

import (
	"strings"

	"github.com/google/uuid"
)

// ResourceReference points at an item before its detail is known.
type ResourceReference struct {
	Name    string `json:"name"`
	Locator string `json:"url"`
}

// DetailRecord is a fully resolved catalog entry.
type DetailRecord struct {
	// ID is the trailing path segment of the record's locator, e.g. "25".
	ID       string      `json:"id,omitempty"`
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Power    OptionalInt `json:"power"`
	Accuracy OptionalInt `json:"accuracy"`
}

// RunStatus reports whether every dispatched fetch of the active run returned.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunSettled RunStatus = "settled"
)

// Ledger is the per-run fetch bookkeeping.
type Ledger struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"` // records replaced by a later record with the same name
}

// LocatorID returns the last non-empty path segment of locator:
// ".../pokemon/25/" yields "25".
func LocatorID(locator string) string {
	trimmed := strings.TrimRight(locator, "/")
	return trimmed[strings.LastIndex(trimmed, "/")+1:]
}

// Status derives the run status from the counters.
func (l Ledger) Status() RunStatus {
	if l.Completed >= l.Total {
		return RunSettled
	}
	return RunPending
}

// Succeeded counts completions that produced a record.
func (l Ledger) Succeeded() int {
	return l.Completed - l.Failed
}

// Snapshot is the immutable state of an aggregator at one version. Records is
// shared between readers and must not be modified.
type Snapshot struct {
	RunID   uuid.UUID      `json:"run_id"`
	Version uint64         `json:"version"`
	Ledger  Ledger         `json:"ledger"`
	Records []DetailRecord `json:"records"`
}

// Status is a shorthand for s.Ledger.Status().
func (s Snapshot) Status() RunStatus {
	return s.Ledger.Status()
}
