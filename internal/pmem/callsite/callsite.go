// Package callsite captures and deduplicates the guest call stack
// attached to every in-flight store, so the reporter can attribute a
// non-persistent store or an overwrite back to the code that issued it.
//
// Deduplication matters because the same handful of call sites issue the
// overwhelming majority of stores in any real program; storing the full
// program-counter slice once per unique stack, keyed by a hash, keeps the
// per-store cost down to an 8-byte ID rather than a slice copy.
package callsite

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/cespare/xxhash"
)

// MaxFrames bounds how many stack frames are captured per call site.
// Eight frames is enough to show the guest function that issued the
// store and its immediate callers without the report growing unbounded.
const MaxFrames = 8

// ID identifies a captured call stack. The zero ID means "no call site
// captured" (e.g. a store traced without stack info available).
type ID uint64

// Stack is a captured, fixed-depth call stack.
type Stack struct {
	pc [MaxFrames]uintptr
}

// Depot deduplicates captured stacks by hash. The engine owns exactly one
// Depot; because every event is serialized through a single caller,
// Depot needs no internal locking of its own.
type Depot struct {
	stacks map[ID]Stack
}

// NewDepot returns an empty, ready-to-use Depot.
func NewDepot() *Depot {
	return &Depot{stacks: make(map[ID]Stack)}
}

// Capture records the caller's current stack (skipping Capture itself)
// and returns its deduplicated ID.
func (d *Depot) Capture() ID {
	var pcs [MaxFrames]uintptr
	n := runtime.Callers(2, pcs[:])
	if n == 0 {
		return 0
	}

	id := ID(hashPCs(pcs[:n]))
	if _, ok := d.stacks[id]; !ok {
		d.stacks[id] = Stack{pc: pcs}
	}
	return id
}

// Lookup returns the stack for id, or false if it was never captured by
// this depot.
func (d *Depot) Lookup(id ID) (Stack, bool) {
	if id == 0 {
		return Stack{}, false
	}
	st, ok := d.stacks[id]
	return st, ok
}

// hashPCs hashes a program-counter slice with xxhash, treating the
// uintptr values as their raw little-endian byte representation.
func hashPCs(pcs []uintptr) uint64 {
	var buf [8]byte
	h := xxhash.New()
	for _, pc := range pcs {
		for i := range buf {
			buf[i] = byte(pc >> (8 * i))
		}
		_, _ = h.Write(buf[:]) // hash.Hash.Write never errors.
	}
	return h.Sum64()
}

// Format renders the stack as a human-readable frame list, one frame per
// line, filtering out runtime-internal frames that add no diagnostic
// value to a persistence report.
func (st Stack) Format() string {
	frames := runtime.CallersFrames(st.pc[:])

	var buf strings.Builder
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		if strings.HasPrefix(frame.Function, "runtime.") {
			if !more {
				break
			}
			continue
		}
		fmt.Fprintf(&buf, "  %s()\n      %s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}

	if buf.Len() == 0 {
		return "  <unknown>\n"
	}
	return buf.String()
}
