package query

import (
	"sync"

	"dex/internal/catalog/models"
	"dex/internal/catalog/view"
)

// SnapshotSource yields the latest collection snapshot.
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

// Result is one computed view together with the inputs it was computed from.
// Seq increases with every recomputation of the State that produced it.
type Result struct {
	Seq      uint64
	Query    string
	Snapshot models.Snapshot
	Items    []models.DetailRecord
}

// State holds the consumer's filter text and the view computed from it.
// Every change recomputes the whole view; nothing is patched incrementally.
type State struct {
	source SnapshotSource
	match  view.Matcher

	mu       sync.RWMutex
	query    string
	snapshot models.Snapshot
	items    []models.DetailRecord
	seq      uint64
	onChange []func(Result)
}

// Option configures a State.
type Option func(*State)

// WithMatcher replaces name matching for non-blank queries.
func WithMatcher(m view.Matcher) Option {
	return func(s *State) {
		s.match = m
	}
}

// New returns a State with an empty query, computed against source's current
// snapshot.
func New(source SnapshotSource, opts ...Option) *State {
	s := &State{source: source, match: view.ByName}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshot = source.Snapshot()
	s.recomputeLocked()
	return s
}

// OnChange registers a callback invoked after every recomputation, outside
// the state lock. Register callbacks before the state is shared.
func (s *State) OnChange(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// SetQuery replaces the filter text and recomputes the view against the
// latest snapshot.
func (s *State) SetQuery(text string) Result {
	latest := s.source.Snapshot()

	s.mu.Lock()
	s.query = text
	if latest.Version >= s.snapshot.Version {
		s.snapshot = latest
	}
	res := s.recomputeLocked()
	callbacks := s.onChange
	s.mu.Unlock()

	notify(callbacks, res)
	return res
}

// Refresh recomputes the view for a new snapshot. Snapshots older than the
// one already applied are ignored and reported as false.
func (s *State) Refresh(snap models.Snapshot) (Result, bool) {
	s.mu.Lock()
	if snap.Version < s.snapshot.Version {
		res := s.resultLocked()
		s.mu.Unlock()
		return res, false
	}
	s.snapshot = snap
	res := s.recomputeLocked()
	callbacks := s.onChange
	s.mu.Unlock()

	notify(callbacks, res)
	return res, true
}

// Query returns the current filter text.
func (s *State) Query() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query
}

// View returns the current filtered view. The slice is shared and must not be
// modified.
func (s *State) View() []models.DetailRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items
}

// Current returns the view together with its query and snapshot.
func (s *State) Current() Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resultLocked()
}

func (s *State) recomputeLocked() Result {
	s.items = view.ComputeWith(s.snapshot.Records, s.query, s.match)
	s.seq++
	return s.resultLocked()
}

func (s *State) resultLocked() Result {
	return Result{Seq: s.seq, Query: s.query, Snapshot: s.snapshot, Items: s.items}
}

func notify(callbacks []func(Result), res Result) {
	for _, fn := range callbacks {
		fn(res)
	}
}
