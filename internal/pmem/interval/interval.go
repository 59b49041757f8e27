// Package interval implements the ordered, non-overlapping interval
// collection shared by the region registry and the store tracker.
//
// A Set[T] keeps entries sorted by address with the invariant that no two
// entries overlap. Two operations change that invariant deliberately:
// InsertMerging folds every overlapping entry into one, and RemoveRange
// splits an entry around a subtracted window. Everything else — overlap
// classification, resumable overlap walks — is read-only.
//
// The container is a sorted slice rather than a tree. Entry counts per
// address space stay small enough in practice (bounded by how many
// distinct regions or in-flight stores a single program produces between
// fences) that O(k) shifts on insert/remove are cheaper than the constant
// factor of a balanced tree, and the code stays trivial to get right.
package interval

import "sort"

// Interval is the half-open byte range [Addr, Addr+Size).
type Interval struct {
	Addr uint64
	Size uint64
}

// End returns the exclusive upper bound of the interval.
func (iv Interval) End() uint64 {
	return iv.Addr + iv.Size
}

// Overlaps reports whether iv and other share at least one byte.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Addr < other.End() && other.Addr < iv.End()
}

// Touches reports whether iv and other are adjacent with no gap, in
// either direction.
func (iv Interval) Touches(other Interval) bool {
	return iv.End() == other.Addr || other.End() == iv.Addr
}

// Valid reports whether the interval has positive size, per the data
// model's invariant that zero-size intervals never appear.
func (iv Interval) Valid() bool {
	return iv.Size > 0
}

// union returns the smallest interval containing both a and b.
func union(a, b Interval) Interval {
	lo := a.Addr
	if b.Addr < lo {
		lo = b.Addr
	}
	hi := a.End()
	if b.End() > hi {
		hi = b.End()
	}
	return Interval{Addr: lo, Size: hi - lo}
}

// Class is the result of classifying a query interval against a Set.
type Class int

const (
	// NotPresent means the query interval does not overlap any entry.
	NotPresent Class = iota
	// FullyInside means some entry fully contains the query interval.
	FullyInside
	// OverlapHead means the query interval overlaps the head of an entry,
	// extending before it.
	OverlapHead
	// OverlapTail means the query interval overlaps the tail of an entry,
	// extending past it.
	OverlapTail
)

// String renders the class for diagnostics.
func (c Class) String() string {
	switch c {
	case NotPresent:
		return "NotPresent"
	case FullyInside:
		return "FullyInside"
	case OverlapHead:
		return "OverlapHead"
	case OverlapTail:
		return "OverlapTail"
	default:
		return "Unknown"
	}
}

// Entry is one stored interval with its payload.
type Entry[T any] struct {
	Interval Interval
	Payload  T
}

// Set is an ordered collection of non-overlapping intervals tagged with a
// payload T. The zero value is an empty, ready-to-use set.
type Set[T any] struct {
	entries []Entry[T]
}

// Len returns the number of entries currently stored.
func (s *Set[T]) Len() int {
	return len(s.entries)
}

// Entries returns a snapshot slice of all entries, ordered by address.
// Callers must not retain the slice across further mutation of s.
func (s *Set[T]) Entries() []Entry[T] {
	out := make([]Entry[T], len(s.entries))
	copy(out, s.entries)
	return out
}

// indexOf returns the index of the first entry whose interval does not
// end before addr, i.e. the insertion point for an interval starting at
// addr.
func (s *Set[T]) indexOf(addr uint64) int {
	return sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Interval.End() > addr
	})
}

// InsertMerging removes every entry overlapping iv, unions their
// intervals with iv, and inserts a single replacement entry. merge folds
// each removed entry's payload into the running accumulator, which starts
// at payload; for payload-less sets (T = struct{}) pass a no-op merge.
// Returns the final merged payload.
func (s *Set[T]) InsertMerging(iv Interval, payload T, merge func(acc, removed T) T) T {
	if !iv.Valid() {
		return payload
	}

	// Start from the first entry that could touch or overlap iv from the
	// left (its end reaches at least iv's start), not just the first
	// overlapping one, so a left-adjacent neighbour coalesces too
	// (invariant R2: no two adjacent entries are left uncoalesced).
	i := sort.Search(len(s.entries), func(k int) bool {
		return s.entries[k].Interval.End() >= iv.Addr
	})

	span := iv
	acc := payload
	j := i
	for j < len(s.entries) && s.entries[j].Interval.Addr <= span.End() {
		e := s.entries[j]
		if !e.Interval.Overlaps(span) && !e.Interval.Touches(span) {
			break
		}
		span = union(span, e.Interval)
		acc = merge(acc, e.Payload)
		j++
	}

	replacement := Entry[T]{Interval: span, Payload: acc}
	s.entries = append(s.entries[:i], append([]Entry[T]{replacement}, s.entries[j:]...)...)
	return acc
}

// InsertNonMerging inserts iv without coalescing. The caller must
// guarantee iv does not overlap any existing entry; violating that
// invariant panics, since it signals a bug in the caller's own
// bookkeeping rather than a recoverable condition.
func (s *Set[T]) InsertNonMerging(iv Interval, payload T) {
	if !iv.Valid() {
		return
	}
	i := s.indexOf(iv.Addr)
	if i < len(s.entries) && s.entries[i].Interval.Overlaps(iv) {
		panic("interval: InsertNonMerging called with an overlapping interval")
	}
	s.entries = append(s.entries, Entry[T]{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = Entry[T]{Interval: iv, Payload: payload}
}

// RemoveRange subtracts iv from every overlapping entry, splitting,
// shrinking, or deleting entries as needed, and returns the removed or
// truncated-away portions' original entries (pre-subtraction) for callers
// that need the detail (e.g. deregistration diagnostics). The returned
// slice is ordered by address.
func (s *Set[T]) RemoveRange(iv Interval) []Entry[T] {
	if !iv.Valid() {
		return nil
	}

	var touched []Entry[T]
	i := s.indexOf(iv.Addr)
	var rebuilt []Entry[T]
	rebuilt = append(rebuilt, s.entries[:i]...)

	j := i
	for j < len(s.entries) && s.entries[j].Interval.Addr < iv.End() {
		e := s.entries[j]
		if !e.Interval.Overlaps(iv) {
			break
		}
		touched = append(touched, e)

		switch {
		case e.Interval.Addr >= iv.Addr && e.Interval.End() <= iv.End():
			// e ⊆ iv: delete entirely.
		case iv.Addr > e.Interval.Addr && iv.End() < e.Interval.End():
			// iv ⊆ e strictly inside: split into head and tail fragments.
			rebuilt = append(rebuilt,
				Entry[T]{Interval: Interval{Addr: e.Interval.Addr, Size: iv.Addr - e.Interval.Addr}, Payload: e.Payload},
				Entry[T]{Interval: Interval{Addr: iv.End(), Size: e.Interval.End() - iv.End()}, Payload: e.Payload},
			)
		case e.Interval.Addr < iv.Addr:
			// only head of e survives.
			rebuilt = append(rebuilt, Entry[T]{Interval: Interval{Addr: e.Interval.Addr, Size: iv.Addr - e.Interval.Addr}, Payload: e.Payload})
		default:
			// only tail of e survives.
			rebuilt = append(rebuilt, Entry[T]{Interval: Interval{Addr: iv.End(), Size: e.Interval.End() - iv.End()}, Payload: e.Payload})
		}
		j++
	}
	rebuilt = append(rebuilt, s.entries[j:]...)
	s.entries = rebuilt
	return touched
}

// Classify reports how iv relates to the entries currently stored:
// fully contained in one entry, overlapping an entry's head or tail,
// or not present at all.
func (s *Set[T]) Classify(iv Interval) Class {
	i := s.indexOf(iv.Addr)
	var first, last *Entry[T]
	for j := i; j < len(s.entries) && s.entries[j].Interval.Addr < iv.End(); j++ {
		e := &s.entries[j]
		if !e.Interval.Overlaps(iv) {
			continue
		}
		if e.Interval.Addr <= iv.Addr && iv.End() <= e.Interval.End() {
			return FullyInside
		}
		if first == nil {
			first = e
		}
		last = e
	}
	if first == nil {
		return NotPresent
	}
	if iv.Addr < first.Interval.Addr {
		return OverlapHead
	}
	if iv.End() > last.Interval.End() {
		return OverlapTail
	}
	return OverlapHead
}

// ContainsAny reports whether iv overlaps anything stored.
func (s *Set[T]) ContainsAny(iv Interval) bool {
	return s.Classify(iv) != NotPresent
}

// NextOverlap returns the first entry at or after address from whose
// interval overlaps iv, or false if none remains. Pass iv.Addr as from to
// start a fresh walk; after mutating the entry returned by a previous
// call, resume with that entry's original End() so the walk restarts
// exactly after the mutated region, per the resume-after-key contract
// required of iter_overlapping.
func (s *Set[T]) NextOverlap(from uint64, iv Interval) (Entry[T], bool) {
	i := s.indexOf(from)
	for ; i < len(s.entries) && s.entries[i].Interval.Addr < iv.End(); i++ {
		if s.entries[i].Interval.Overlaps(iv) {
			return s.entries[i], true
		}
	}
	return Entry[T]{}, false
}

// Replace overwrites the entry matching old's interval with replacement,
// if present. Used by algorithms (e.g. flush) that shrink an entry
// in-place after having read it via NextOverlap. Returns false if no
// entry with old's exact interval is present.
func (s *Set[T]) Replace(old Interval, replacement Entry[T]) bool {
	i := s.indexOf(old.Addr)
	if i < len(s.entries) && s.entries[i].Interval == old {
		s.entries[i] = replacement
		return true
	}
	return false
}

// Remove deletes the entry with exactly the given interval, if present.
func (s *Set[T]) Remove(iv Interval) bool {
	i := s.indexOf(iv.Addr)
	if i < len(s.entries) && s.entries[i].Interval == iv {
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		return true
	}
	return false
}
