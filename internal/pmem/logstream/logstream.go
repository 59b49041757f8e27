// Package logstream implements the protocol log: a fixed, bespoke text
// format written straight to an io.Writer, one record per event. There
// is no intermediate buffering struct beyond what formatting a hex
// integer needs — records are written straight to the sink they were
// handed.
package logstream

import (
	"fmt"
	"io"
)

// Writer emits protocol log records to an underlying io.Writer. The
// zero Writer is unusable; construct with New.
type Writer struct {
	w io.Writer
}

// New wraps w as a protocol log sink.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Start emits the session-open marker. Unlike every other record it has
// no leading '|' — a deliberate format asymmetry.
func (l *Writer) Start() {
	fmt.Fprint(l.w, "START\n")
}

// Stop emits the session-close marker.
func (l *Writer) Stop() {
	fmt.Fprint(l.w, "|STOP\n")
}

// Store emits a STORE record.
func (l *Writer) Store(addr, value, size uint64) {
	fmt.Fprintf(l.w, "|STORE;0x%x;0x%x;0x%x\n", addr, value, size)
}

// Flush emits a FLUSH record for the already-aligned window.
func (l *Writer) Flush(alignedAddr, alignedSize uint64) {
	fmt.Fprintf(l.w, "|FLUSH;0x%x;0x%x\n", alignedAddr, alignedSize)
}

// Fence emits a FENCE record.
func (l *Writer) Fence() {
	fmt.Fprint(l.w, "|FENCE\n")
}

// Commit emits a COMMIT record.
func (l *Writer) Commit() {
	fmt.Fprint(l.w, "|COMMIT\n")
}

// RegisterFile emits a REGISTER_FILE record.
func (l *Writer) RegisterFile(path string, addr, size, offset uint64) {
	fmt.Fprintf(l.w, "|REGISTER_FILE;%s;0x%x;0x%x;0x%x\n", path, addr, size, offset)
}

// FullReorder, PartialReorder, FaultOnly and NoReorderFault emit the
// four reordering-marker records. None of the four affect any tracked
// state; they are pass-through diagnostics for an offline log consumer.
func (l *Writer) FullReorder()     { fmt.Fprint(l.w, "|FREORDER\n") }
func (l *Writer) PartialReorder()  { fmt.Fprint(l.w, "|PREORDER\n") }
func (l *Writer) FaultOnly()       { fmt.Fprint(l.w, "|FAULT_ONLY\n") }
func (l *Writer) NoReorderFault()  { fmt.Fprint(l.w, "|NO_REORDER_FAULT\n") }

// Active implements the gating rule for every record except Start/Stop:
// the stream is active only when logStores is true and
// either the global toggle is on or at least one loggable region is
// registered.
func Active(logStores, globalToggle bool, anyLoggableRegistered bool) bool {
	return logStores && (globalToggle || anyLoggableRegistered)
}

// StoreActive additionally gates STORE records: on top of Active, a
// specific store only logs when the global toggle is on (log
// everything) or that store's address actually falls in a loggable
// region.
func StoreActive(active, globalToggle, hitsLoggableRegion bool) bool {
	return active && (globalToggle || hitsLoggableRegion)
}
