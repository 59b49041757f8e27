// Package region implements the registry of persistent mappings and
// loggable regions a traced program declares. Both are plain interval
// sets with no payload; the interesting behaviour is all in how
// register/deregister keep the non-overlapping, non-touching
// invariant.
package region

import "github.com/kolkov/pmemtrace/internal/pmem/interval"

// noopMerge satisfies interval.Set's merge callback for a payload-less
// set: there is nothing to fold, every entry carries the same empty
// value.
func noopMerge(acc, _ struct{}) struct{} { return acc }

// Set is one named collection of non-overlapping regions (used for both
// persistent_mappings and loggable_regions).
type Set struct {
	intervals interval.Set[struct{}]
}

// Register adds region to the set, merging with any existing entry it
// overlaps or touches. Zero-size or otherwise invalid regions are
// coerced to a silent no-op rather than rejected.
func (s *Set) Register(region interval.Interval) {
	if !region.Valid() {
		return
	}
	s.intervals.InsertMerging(region, struct{}{}, noopMerge)
}

// Deregister subtracts region from the set, splitting any entry it
// partially overlaps.
func (s *Set) Deregister(region interval.Interval) {
	if !region.Valid() {
		return
	}
	s.intervals.RemoveRange(region)
}

// Classify reports how region relates to what's currently registered.
func (s *Set) Classify(region interval.Interval) interval.Class {
	return s.intervals.Classify(region)
}

// ContainsAny reports whether any byte of region is registered.
func (s *Set) ContainsAny(region interval.Interval) bool {
	return s.intervals.ContainsAny(region)
}

// Len reports how many regions are registered, for the logging gate's
// "at least one loggable region" check without paying for an Entries()
// snapshot copy.
func (s *Set) Len() int {
	return s.intervals.Len()
}

// Entries returns every registered region, ordered by address, for
// reporter dumps (PRINT_PMEM_MAPPINGS and the print_pmem_regions /
// print_log_regions debugger commands).
func (s *Set) Entries() []interval.Interval {
	entries := s.intervals.Entries()
	out := make([]interval.Interval, len(entries))
	for i, e := range entries {
		out[i] = e.Interval
	}
	return out
}

// Registry holds the two region collections the checker tracks.
type Registry struct {
	// Mappings is persistent_mappings: the address ranges the traced
	// program has declared as backed by persistent memory.
	Mappings Set
	// Loggable is loggable_regions: the subset of address space whose
	// stores are logged even when the global logging toggle is off.
	Loggable Set
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}
