package reporter

import (
	"strings"
	"testing"

	"github.com/kolkov/pmemtrace/internal/pmem/interval"
	"github.com/kolkov/pmemtrace/internal/pmem/tracker"
)

func rec(addr, size uint64, state tracker.State) tracker.Record {
	return tracker.Record{
		Interval: interval.Interval{Addr: addr, Size: size},
		State:    state,
	}
}

func TestBuildOmitsGatedLedgers(t *testing.T) {
	unpersisted := []tracker.Record{rec(0x1000, 8, tracker.Dirty)}
	multiFlush := []tracker.Record{rec(0x2000, 8, tracker.Flushed)}
	overwrites := []tracker.Record{rec(0x3000, 8, tracker.Dirty)}

	s := Build(unpersisted, multiFlush, overwrites, false, false, nil)

	if len(s.Unpersisted) != 1 {
		t.Fatalf("expected unpersisted always included, got %d", len(s.Unpersisted))
	}
	if s.MultiFlush != nil {
		t.Fatal("expected multi-flush ledger omitted when check_flush is off")
	}
	if s.Overwrites != nil {
		t.Fatal("expected overwrite ledger omitted when track_multiple_stores is off")
	}
}

func TestBuildIncludesGatedLedgersWhenEnabled(t *testing.T) {
	unpersisted := []tracker.Record{rec(0x1000, 8, tracker.Dirty)}
	multiFlush := []tracker.Record{rec(0x2000, 8, tracker.Flushed)}
	overwrites := []tracker.Record{rec(0x3000, 8, tracker.Dirty)}

	s := Build(unpersisted, multiFlush, overwrites, true, true, nil)

	if len(s.MultiFlush) != 1 || len(s.Overwrites) != 1 {
		t.Fatalf("expected both ledgers populated, got multiFlush=%d overwrites=%d", len(s.MultiFlush), len(s.Overwrites))
	}
}

func TestTotalUnpersistedBytes(t *testing.T) {
	s := Build([]tracker.Record{rec(0x1000, 8, tracker.Dirty), rec(0x2000, 16, tracker.Flushed)}, nil, nil, false, false, nil)
	if got := s.TotalUnpersistedBytes(); got != 24 {
		t.Fatalf("expected 24 total bytes, got %d", got)
	}
}

func TestFormatIncludesCountsAndAddresses(t *testing.T) {
	s := Build([]tracker.Record{rec(0x1000, 8, tracker.Dirty)}, nil, nil, false, false, nil)

	out := s.String()
	if !strings.Contains(out, "unpersisted stores: 1") {
		t.Fatalf("expected unpersisted count in output, got:\n%s", out)
	}
	if !strings.Contains(out, "0x1000") {
		t.Fatalf("expected address in output, got:\n%s", out)
	}
	if !strings.Contains(out, "DIRTY") {
		t.Fatalf("expected state name in output, got:\n%s", out)
	}
}
