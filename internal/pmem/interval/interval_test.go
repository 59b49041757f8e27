package interval

import "testing"

func mergeUnit(acc, _ struct{}) struct{} { return struct{}{} }

func TestInsertMergingCoalescesOverlapAndTouch(t *testing.T) {
	var s Set[struct{}]

	s.InsertMerging(Interval{Addr: 0x1000, Size: 0x10}, struct{}{}, mergeUnit)
	s.InsertMerging(Interval{Addr: 0x1010, Size: 0x10}, struct{}{}, mergeUnit) // touches

	if s.Len() != 1 {
		t.Fatalf("expected coalesced single entry, got %d", s.Len())
	}
	got := s.Entries()[0].Interval
	want := Interval{Addr: 0x1000, Size: 0x20}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestInsertMergingOrderIndependent(t *testing.T) {
	a := Interval{Addr: 0x1000, Size: 0x20}
	b := Interval{Addr: 0x1010, Size: 0x20}

	var s1, s2 Set[struct{}]
	s1.InsertMerging(a, struct{}{}, mergeUnit)
	s1.InsertMerging(b, struct{}{}, mergeUnit)

	s2.InsertMerging(b, struct{}{}, mergeUnit)
	s2.InsertMerging(a, struct{}{}, mergeUnit)

	e1, e2 := s1.Entries(), s2.Entries()
	if len(e1) != len(e2) {
		t.Fatalf("entry count differs: %d vs %d", len(e1), len(e2))
	}
	for i := range e1 {
		if e1[i].Interval != e2[i].Interval {
			t.Fatalf("entry %d differs: %+v vs %+v", i, e1[i], e2[i])
		}
	}
}

func TestRemoveRangeClassifiesNotPresent(t *testing.T) {
	var s Set[struct{}]
	iv := Interval{Addr: 0x2000, Size: 0x40}
	s.InsertMerging(iv, struct{}{}, mergeUnit)

	s.RemoveRange(iv)

	if got := s.Classify(iv); got != NotPresent {
		t.Fatalf("Classify after RemoveRange = %v, want NotPresent", got)
	}
}

func TestRemoveRangeSplitsStrictlyInside(t *testing.T) {
	var s Set[struct{}]
	s.InsertMerging(Interval{Addr: 0x1000, Size: 0x100}, struct{}{}, mergeUnit)

	s.RemoveRange(Interval{Addr: 0x1040, Size: 0x10})

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected split into 2 fragments, got %d", len(entries))
	}
	if entries[0].Interval != (Interval{Addr: 0x1000, Size: 0x40}) {
		t.Fatalf("head fragment = %+v", entries[0].Interval)
	}
	if entries[1].Interval != (Interval{Addr: 0x1050, Size: 0xB0}) {
		t.Fatalf("tail fragment = %+v", entries[1].Interval)
	}
}

func TestRemoveRangeShrinksHeadAndTail(t *testing.T) {
	var s Set[struct{}]
	s.InsertMerging(Interval{Addr: 0x1000, Size: 0x100}, struct{}{}, mergeUnit)

	// Overlap the tail -> entry shrinks to its head.
	s.RemoveRange(Interval{Addr: 0x1080, Size: 0x80})
	if got := s.Entries()[0].Interval; got != (Interval{Addr: 0x1000, Size: 0x80}) {
		t.Fatalf("shrink-to-head = %+v", got)
	}

	var s2 Set[struct{}]
	s2.InsertMerging(Interval{Addr: 0x1000, Size: 0x100}, struct{}{}, mergeUnit)
	// Overlap the head -> entry shrinks to its tail.
	s2.RemoveRange(Interval{Addr: 0x0F00, Size: 0x180})
	if got := s2.Entries()[0].Interval; got != (Interval{Addr: 0x1080, Size: 0x80}) {
		t.Fatalf("shrink-to-tail = %+v", got)
	}
}

func TestClassify(t *testing.T) {
	var s Set[struct{}]
	s.InsertMerging(Interval{Addr: 0x1000, Size: 0x40}, struct{}{}, mergeUnit)

	cases := []struct {
		name string
		iv   Interval
		want Class
	}{
		{"fully inside", Interval{Addr: 0x1010, Size: 0x10}, FullyInside},
		{"exact match", Interval{Addr: 0x1000, Size: 0x40}, FullyInside},
		{"not present", Interval{Addr: 0x2000, Size: 0x10}, NotPresent},
		{"overlap head", Interval{Addr: 0x0FF0, Size: 0x20}, OverlapHead},
		{"overlap tail", Interval{Addr: 0x1030, Size: 0x20}, OverlapTail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.Classify(tc.iv); got != tc.want {
				t.Errorf("Classify(%+v) = %v, want %v", tc.iv, got, tc.want)
			}
		})
	}
}

func TestInsertNonMergingPanicsOnOverlap(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on overlapping InsertNonMerging")
		}
	}()
	var s Set[int]
	s.InsertNonMerging(Interval{Addr: 0x1000, Size: 0x10}, 1)
	s.InsertNonMerging(Interval{Addr: 0x1008, Size: 0x10}, 2)
}

func TestNextOverlapResumesAfterMutation(t *testing.T) {
	var s Set[int]
	s.InsertNonMerging(Interval{Addr: 0x1000, Size: 0x10}, 1)
	s.InsertNonMerging(Interval{Addr: 0x1020, Size: 0x10}, 2)
	s.InsertNonMerging(Interval{Addr: 0x1040, Size: 0x10}, 3)

	query := Interval{Addr: 0x1000, Size: 0x100}
	var seen []int
	cursor := query.Addr
	for {
		e, ok := s.NextOverlap(cursor, query)
		if !ok {
			break
		}
		seen = append(seen, e.Payload)
		cursor = e.Interval.End()
		s.Remove(e.Interval) // mutate mid-walk
	}
	if len(seen) != 3 || seen[0] != 1 || seen[1] != 2 || seen[2] != 3 {
		t.Fatalf("unexpected walk order: %v", seen)
	}
	if s.Len() != 0 {
		t.Fatalf("expected all entries removed, got %d left", s.Len())
	}
}
