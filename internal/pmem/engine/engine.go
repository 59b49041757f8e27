// Package engine is the composition root: it wires the region
// registry, store tracker and call-site depot behind the verbs a host
// instrumentation layer drives, owns the superblock counter and the two
// capped ledgers (overwrite, multi-flush), and renders the four
// reordering markers. Structurally it follows one exported verb per
// event, one internal helper per rule.
package engine

import (
	"go.uber.org/zap"

	"github.com/kolkov/pmemtrace/internal/pmem/callsite"
	"github.com/kolkov/pmemtrace/internal/pmem/config"
	"github.com/kolkov/pmemtrace/internal/pmem/interval"
	"github.com/kolkov/pmemtrace/internal/pmem/logstream"
	"github.com/kolkov/pmemtrace/internal/pmem/region"
	"github.com/kolkov/pmemtrace/internal/pmem/reporter"
	"github.com/kolkov/pmemtrace/internal/pmem/tracker"
)

// maxMultOverwrites is MAX_MULT_OVERWRITES: exceeding it while
// track_multiple_stores is on is fatal.
const maxMultOverwrites = 10000

// maxFlushErrorEvents is MAX_FLUSH_ERROR_EVENTS: exceeding it is
// non-fatal, excess records are silently dropped.
const maxFlushErrorEvents = 10000

// OverwriteFloodError is returned by OnStore when the overwrite ledger
// would exceed maxMultOverwrites. The process is expected to terminate
// with a non-zero exit code on this condition; Engine itself never
// calls os.Exit, leaving that decision to cmd/pmemtrace.
type OverwriteFloodError struct{}

func (OverwriteFloodError) Error() string {
	return "overwrite record ledger exceeded MAX_MULT_OVERWRITES"
}

// Host models the inbound instrumentation callbacks: the shape a
// dynamic-binary-translation host drives the engine through. Engine
// implements this interface; it is declared here so a caller can depend
// on the narrow contract rather than the concrete type.
type Host interface {
	OnStore(addr, size, value uint64) error
	OnSuperblockEnter()
}

// Engine is the core correctness checker: region registry + store
// tracker + call-site depot + durability ledgers, all serialized behind
// its exported methods (the caller, not Engine, is responsible for
// ensuring only one goroutine calls in at a time).
type Engine struct {
	cfg config.Config

	regions *region.Registry

	tracker *tracker.Tracker
	depot   *callsite.Depot

	sb uint64

	globalLogging bool
	log           *logstream.Writer

	overwrites []tracker.Record
	multiFlush []tracker.Record

	diag *zap.Logger
}

// New constructs an Engine. log may be nil, in which case the protocol
// log stream is entirely inactive regardless of configuration; diag may
// be nil, in which case diagnostics are discarded (zap.NewNop()).
func New(cfg config.Config, log *logstream.Writer, diag *zap.Logger) *Engine {
	if diag == nil {
		diag = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		regions: region.NewRegistry(),
		tracker: tracker.New(),
		depot:   callsite.NewDepot(),
		log:     log,
		diag:    diag,
	}
}

// ---- Region registration (routed via REGISTER_MAPPING / REMOVE_MAPPING) ----

func (e *Engine) RegisterMapping(addr, size uint64) {
	e.regions.Mappings.Register(interval.Interval{Addr: addr, Size: size})
}

func (e *Engine) RemoveMapping(addr, size uint64) {
	e.regions.Mappings.Deregister(interval.Interval{Addr: addr, Size: size})
}

// CheckIsMapping implements CHECK_IS_MAPPING: returns the overlap
// classification (0/1/2/3).
func (e *Engine) CheckIsMapping(addr, size uint64) int {
	return int(e.regions.Mappings.Classify(interval.Interval{Addr: addr, Size: size}))
}

func (e *Engine) AddLogRegion(addr, size uint64) {
	e.regions.Loggable.Register(interval.Interval{Addr: addr, Size: size})
}

func (e *Engine) RemoveLogRegion(addr, size uint64) {
	e.regions.Loggable.Deregister(interval.Interval{Addr: addr, Size: size})
}

// SetLogging implements LOG_STORES / NO_LOG_STORES: toggles the global
// logging switch used by the protocol log stream's gating rule.
func (e *Engine) SetLogging(on bool) {
	e.globalLogging = on
}

// ---- Instrumentation callbacks (the Host interface) ----

// OnSuperblockEnter implements on_sb_enter(): advances the monotone
// superblock counter. Called once per translated basic-block entry.
func (e *Engine) OnSuperblockEnter() {
	e.sb++
}

// OnStore implements on_store(): trace_store, wired to the tracker's
// TraceStore via the region registry, call-site depot and log/ledger
// policy this package owns. Returns OverwriteFloodError if the
// overwrite ledger has hit its cap; the caller must treat that as
// fatal.
func (e *Engine) OnStore(addr, size, value uint64) error {
	iv := interval.Interval{Addr: addr, Size: size}
	ctx := e.depot.Capture()

	active := logstream.Active(e.cfg.LogStores, e.globalLogging, e.regions.Loggable.Len() > 0)
	storeActive := logstream.StoreActive(active, e.globalLogging, e.regions.Loggable.ContainsAny(iv))

	onLogged := func() {
		if storeActive && e.log != nil {
			e.log.Store(addr, value, size)
		}
	}

	var flood bool
	aborted := e.tracker.TraceStore(iv, value, e.sb, ctx, &e.regions.Mappings, e.cfg, onLogged, func(rec tracker.Record) bool {
		if len(e.overwrites) >= maxMultOverwrites {
			e.diag.Error("overwrite ledger exceeded cap", zap.Int("cap", maxMultOverwrites))
			flood = true
			return true
		}
		e.overwrites = append(e.overwrites, rec)
		return false
	})
	if aborted && flood {
		return OverwriteFloodError{}
	}
	return nil
}

// ---- Durability state machine ----

// Flush implements DO_FLUSH: aligns the window down/up to flush_align
// before handing it to the tracker.
func (e *Engine) Flush(addr, size uint64) {
	align := e.cfg.FlushAlign
	if align == 0 {
		align = 64
	}
	alignedAddr := addr &^ (align - 1)
	end := addr + size
	alignedEnd := (end + align - 1) &^ (align - 1)
	window := interval.Interval{Addr: alignedAddr, Size: alignedEnd - alignedAddr}

	e.tracker.Flush(window, e.cfg.CheckFlush, func(rec tracker.Record) bool {
		if len(e.multiFlush) >= maxFlushErrorEvents {
			return false // non-fatal cap: drop silently
		}
		e.multiFlush = append(e.multiFlush, rec)
		return false
	})

	if e.storeLogActive() && e.log != nil {
		e.log.Flush(window.Addr, window.Size)
	}
}

func (e *Engine) Fence() {
	e.tracker.Fence()
	if e.storeLogActive() && e.log != nil {
		e.log.Fence()
	}
}

func (e *Engine) Commit() {
	e.tracker.Commit()
	if e.storeLogActive() && e.log != nil {
		e.log.Commit()
	}
}

func (e *Engine) storeLogActive() bool {
	return logstream.Active(e.cfg.LogStores, e.globalLogging, e.regions.Loggable.Len() > 0)
}

// ---- Reordering markers ----

func (e *Engine) FullReorder() {
	if e.storeLogActive() && e.log != nil {
		e.log.FullReorder()
	}
}

func (e *Engine) PartialReorder() {
	if e.storeLogActive() && e.log != nil {
		e.log.PartialReorder()
	}
}

func (e *Engine) OnlyFault() {
	if e.storeLogActive() && e.log != nil {
		e.log.FaultOnly()
	}
}

func (e *Engine) StopReorderFault() {
	if e.storeLogActive() && e.log != nil {
		e.log.NoReorderFault()
	}
}

// ---- Reporter hooks (routed via WRITE_STATS / PRINT_PMEM_MAPPINGS) ----

// Summary builds the teardown report from current tracker/ledger state.
func (e *Engine) Summary() reporter.Summary {
	unpersisted := make([]tracker.Record, 0, e.tracker.Len())
	for _, entry := range e.tracker.Entries() {
		unpersisted = append(unpersisted, tracker.Record{
			Interval: entry.Interval,
			Value:    entry.Payload.Value,
			BlockNum: entry.Payload.BlockNum,
			Context:  entry.Payload.Context,
			State:    entry.Payload.State,
		})
	}
	return reporter.Build(unpersisted, e.multiFlush, e.overwrites, e.cfg.CheckFlush, e.cfg.TrackMultipleStores, e.depot)
}

// WriteStats implements WRITE_STATS: renders the reporter summary to
// the diagnostics sink, honoring print_summary.
func (e *Engine) WriteStats() {
	if !e.cfg.PrintSummary {
		return
	}
	e.diag.Sugar().Info(e.Summary().String())
}

// PrintMappings implements PRINT_PMEM_MAPPINGS: dumps the persistent
// mapping registry to diagnostics.
func (e *Engine) PrintMappings() {
	for _, iv := range e.regions.Mappings.Entries() {
		e.diag.Info("persistent mapping", zap.Uint64("addr", iv.Addr), zap.Uint64("size", iv.Size))
	}
}

// PrintLogRegions implements the debugger command port's
// print_log_regions: dumps the loggable-region registry to diagnostics,
// mirroring PrintMappings.
func (e *Engine) PrintLogRegions() {
	for _, iv := range e.regions.Loggable.Entries() {
		e.diag.Info("loggable region", zap.Uint64("addr", iv.Addr), zap.Uint64("size", iv.Size))
	}
}

// RegisterFileResolved implements REGISTER_FILE's effect once the
// caller has already resolved fd to path — resolving /proc/self/fd/<fd>
// is cmd/pmemtrace's job, not the engine's, since the engine has no
// business touching the filesystem. Unlike REGISTER_MAPPING, this does
// not add to persistent_mappings: it only logs the mapping and reports
// success. Always returns 1: by the time this is called, resolution has
// already succeeded.
func (e *Engine) RegisterFileResolved(path string, addr, size, offset uint64) int {
	if e.storeLogActive() && e.log != nil {
		e.log.RegisterFile(path, addr, size, offset)
	}
	return 1
}

// RegisterFile satisfies router.Core's (fd, addr, size, offset)
// signature for the case where no separate resolver is wired (e.g.
// tests exercising the router directly): it treats fd as already
// resolved to an empty path.
func (e *Engine) RegisterFile(fd, addr, size, offset uint64) int {
	return e.RegisterFileResolved("", addr, size, offset)
}
