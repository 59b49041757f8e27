// Package tracker implements the in-flight store tracker and its
// trace_store ingestion algorithm. Every byte here that is not yet
// durable lives as one entry in an interval.Set, tagged with a
// four-state durability tag (see State) plus enough context to explain
// itself in a report.
package tracker

import (
	"github.com/outofforest/mass"

	"github.com/kolkov/pmemtrace/internal/pmem/callsite"
	"github.com/kolkov/pmemtrace/internal/pmem/config"
	"github.com/kolkov/pmemtrace/internal/pmem/interval"
	"github.com/kolkov/pmemtrace/internal/pmem/region"
)

// State is a store's position in the durability state machine. CLEAN,
// the terminal state, is never represented here: a store reaching it is
// removed from the tracker instead.
type State int

const (
	// Dirty means the store has not yet been flushed.
	Dirty State = iota
	// Flushed means a cache-line flush has covered the store but no
	// fence has ordered it yet.
	Flushed
	// Fenced means a fence has ordered the flush.
	Fenced
	// Committed means an explicit commit has observed the fence.
	Committed
)

// String renders the state name used in reporter output. Callers never
// see CLEAN here: it has no tracker representation to render.
func (s State) String() string {
	switch s {
	case Dirty:
		return "DIRTY"
	case Flushed:
		return "FLUSHED"
	case Fenced:
		return "FENCED"
	case Committed:
		return "COMMITTED"
	default:
		return "UNKNOWN"
	}
}

// Payload is the data carried by one in-flight store.
type Payload struct {
	Value    uint64
	BlockNum uint64
	Context  callsite.ID
	State    State
}

// Record is a saved snapshot of a tracker entry, used for both overwrite
// records and multi-flush records — the two ledgers share a shape.
type Record struct {
	Interval interval.Interval
	Value    uint64
	BlockNum uint64
	Context  callsite.ID
	State    State
}

func recordOf(e interval.Entry[*Payload]) Record {
	return Record{
		Interval: e.Interval,
		Value:    e.Payload.Value,
		BlockNum: e.Payload.BlockNum,
		Context:  e.Payload.Context,
		State:    e.Payload.State,
	}
}

// initialPoolCapacity sizes the payload arena's first chunk. It is a
// starting point, not a limit: outofforest/mass grows the pool as more
// payloads are requested.
const initialPoolCapacity = 1024

// Tracker is the interval set of in-flight store payloads.
type Tracker struct {
	entries interval.Set[*Payload]
	pool    *mass.Mass[Payload]
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{pool: mass.New[Payload](initialPoolCapacity)}
}

// Len reports how many in-flight stores remain tracked.
func (t *Tracker) Len() int {
	return t.entries.Len()
}

// Entries returns every in-flight store, ordered by address.
func (t *Tracker) Entries() []interval.Entry[*Payload] {
	return t.entries.Entries()
}

// TraceStore ingests one (addr, size, value) store event. mappings
// gates whether the store is tracked at all (step 1). onLogged is
// invoked once, after the fast-path check passes and before the overlap
// loop, so the caller can emit the protocol log record under whatever
// gating rule applies — TraceStore itself has no opinion on logging
// policy. onOverwrite is invoked once per
// evicted, non-benign prior store; if it returns true (the overwrite
// ledger has hit its cap and the process must abort), TraceStore stops
// immediately and reports aborted=true without inserting the new store.
func (t *Tracker) TraceStore(
	iv interval.Interval,
	value uint64,
	sb uint64,
	ctx callsite.ID,
	mappings *region.Set,
	cfg config.Config,
	onLogged func(),
	onOverwrite func(Record) (abort bool),
) (aborted bool) {
	if !mappings.ContainsAny(iv) {
		return false
	}

	if onLogged != nil {
		onLogged()
	}

	payload := t.pool.New()
	*payload = Payload{Value: value, BlockNum: sb, State: Dirty, Context: ctx}

	cursor := iv.Addr
	for {
		old, ok := t.entries.NextOverlap(cursor, iv)
		if !ok {
			break
		}
		cursor = old.Interval.End()
		t.entries.Remove(old.Interval)

		if !cfg.TrackMultipleStores {
			continue
		}

		benign := (sb-old.Payload.BlockNum) < cfg.StoreSBIndiff &&
			old.Interval == iv &&
			old.Payload.Value == value
		if benign {
			continue
		}

		if onOverwrite != nil && onOverwrite(recordOf(old)) {
			return true
		}
	}

	t.entries.InsertNonMerging(iv, payload)
	return false
}

// Flush implements flush(base, size): DIRTY entries overlapping the
// (already aligned) window become FLUSHED, splitting off any DIRTY
// portion that falls outside the window; entries in any other state are
// left untouched and, when checkFlush is set, reported to onRedundant,
// per the redundant-flush policy.
func (t *Tracker) Flush(window interval.Interval, checkFlush bool, onRedundant func(Record) (abort bool)) (aborted bool) {
	cursor := window.Addr
	for {
		e, ok := t.entries.NextOverlap(cursor, window)
		if !ok {
			break
		}

		if e.Payload.State != Dirty {
			cursor = e.Interval.End()
			if checkFlush && onRedundant != nil {
				if onRedundant(recordOf(e)) {
					return true
				}
			}
			continue
		}

		iv := e.Interval
		payload := e.Payload
		t.entries.Remove(iv)

		// Head split before tail split, so at most two DIRTY fragments
		// result.
		if iv.Addr < window.Addr {
			head := interval.Interval{Addr: iv.Addr, Size: window.Addr - iv.Addr}
			headPayload := t.pool.New()
			*headPayload = *payload
			t.entries.InsertNonMerging(head, headPayload)
		}
		if iv.End() > window.End() {
			tail := interval.Interval{Addr: window.End(), Size: iv.End() - window.End()}
			tailPayload := t.pool.New()
			*tailPayload = *payload
			t.entries.InsertNonMerging(tail, tailPayload)
		}

		flushedLo := iv.Addr
		if flushedLo < window.Addr {
			flushedLo = window.Addr
		}
		flushedHi := iv.End()
		if flushedHi > window.End() {
			flushedHi = window.End()
		}
		flushed := interval.Interval{Addr: flushedLo, Size: flushedHi - flushedLo}
		payload.State = Flushed
		t.entries.InsertNonMerging(flushed, payload)

		cursor = iv.End()
	}
	return false
}

// Fence implements fence(): FLUSHED promotes to FENCED, COMMITTED
// retires (is removed). All other states are untouched.
func (t *Tracker) Fence() {
	for _, e := range t.entries.Entries() {
		switch e.Payload.State {
		case Flushed:
			e.Payload.State = Fenced
		case Committed:
			t.entries.Remove(e.Interval)
		}
	}
}

// Commit implements commit(): FENCED promotes to COMMITTED. All other
// states are untouched.
func (t *Tracker) Commit() {
	for _, e := range t.entries.Entries() {
		if e.Payload.State == Fenced {
			e.Payload.State = Committed
		}
	}
}
