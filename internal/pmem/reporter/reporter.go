// Package reporter implements the teardown summary: stores that never
// became persistent, overwrite records, and multi-flush records. It
// owns none of that data itself — Detail is a read-only view assembled
// from the tracker and its ledgers.
package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"

	"github.com/kolkov/pmemtrace/internal/pmem/callsite"
	"github.com/kolkov/pmemtrace/internal/pmem/tracker"
)

// Detail is one reportable store: a call-site stack, its address range,
// and the durability state it was left in.
type Detail struct {
	Addr    uint64
	Size    uint64
	State   string
	Context callsite.ID
	Stack   string // resolved via a callsite.Depot; empty if unresolved
}

func detailOf(r tracker.Record, depot *callsite.Depot) Detail {
	d := Detail{
		Addr:    r.Interval.Addr,
		Size:    r.Interval.Size,
		State:   r.State.String(),
		Context: r.Context,
	}
	if depot != nil {
		if st, ok := depot.Lookup(r.Context); ok {
			d.Stack = st.Format()
		}
	}
	return d
}

// Summary is a full teardown report.
type Summary struct {
	Unpersisted []Detail
	MultiFlush  []Detail
	Overwrites  []Detail
}

// TotalUnpersistedBytes sums the size of every unpersisted store.
func (s Summary) TotalUnpersistedBytes() uint64 {
	return lo.SumBy(s.Unpersisted, func(d Detail) uint64 { return d.Size })
}

// Build assembles a Summary from live tracker entries plus the
// overwrite/multi-flush ledgers the engine has accumulated. checkFlush
// and trackMultipleStores gate whether the corresponding ledger is
// included at all.
func Build(
	unpersisted []tracker.Record,
	multiFlush []tracker.Record,
	overwrites []tracker.Record,
	checkFlush, trackMultipleStores bool,
	depot *callsite.Depot,
) Summary {
	s := Summary{
		Unpersisted: lo.Map(unpersisted, func(r tracker.Record, _ int) Detail { return detailOf(r, depot) }),
	}
	if checkFlush {
		s.MultiFlush = lo.Map(multiFlush, func(r tracker.Record, _ int) Detail { return detailOf(r, depot) })
	}
	if trackMultipleStores {
		s.Overwrites = lo.Map(overwrites, func(r tracker.Record, _ int) Detail { return detailOf(r, depot) })
	}
	return s
}

// Format writes a human-readable rendering of the summary to w.
func (s Summary) Format(w io.Writer) {
	fmt.Fprintf(w, "== pmemtrace summary ==\n")
	fmt.Fprintf(w, "unpersisted stores: %d (%d bytes)\n", len(s.Unpersisted), s.TotalUnpersistedBytes())
	for _, d := range s.Unpersisted {
		formatDetail(w, d)
	}

	if s.MultiFlush != nil {
		fmt.Fprintf(w, "multi-flush records: %d\n", len(s.MultiFlush))
		for _, d := range s.MultiFlush {
			formatDetail(w, d)
		}
	}

	if s.Overwrites != nil {
		fmt.Fprintf(w, "overwrite records: %d\n", len(s.Overwrites))
		for _, d := range s.Overwrites {
			formatDetail(w, d)
		}
	}
	fmt.Fprintf(w, "========================\n")
}

func formatDetail(w io.Writer, d Detail) {
	fmt.Fprintf(w, "  0x%x size=0x%x state=%s\n", d.Addr, d.Size, d.State)
	if d.Stack != "" {
		fmt.Fprint(w, d.Stack)
	}
}

// String is a convenience wrapper over Format.
func (s Summary) String() string {
	var buf strings.Builder
	s.Format(&buf)
	return buf.String()
}
