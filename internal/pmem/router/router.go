// Package router implements dispatch of numbered client requests to the
// engine, plus the debugger command port's line-oriented text
// subprotocol. Both dispatch tables use a flat switch over a small
// closed set of names, unknown input falling through to a single "not
// handled" branch rather than an error type hierarchy.
package router

import (
	"strings"

	"github.com/pkg/errors"
)

// Opcode identifies a numbered client request.
type Opcode int

const (
	RegisterMapping Opcode = iota
	RemoveMapping
	RegisterFile
	CheckIsMapping
	DoFlush
	DoFence
	DoCommit
	WriteStats
	LogStores
	NoLogStores
	AddLogRegion
	RemoveLogRegion
	FullReorder
	PartialReorder
	OnlyFault
	StopReorderFault
	PrintPmemMappings
)

// ErrUnhandled is returned for an opcode the router does not recognise;
// this is treated as a warning, not a fatal condition.
var ErrUnhandled = errors.New("not handled")

// Request is one numbered client request with its (up to four) word
// arguments.
type Request struct {
	Op   Opcode
	Args [4]uint64
}

// Core is the subset of engine.Engine the router dispatches into. Kept
// as a narrow interface (rather than importing engine directly) so
// router has no dependency on the engine's construction details, only
// its verbs — depend on behaviour, not the concrete type.
type Core interface {
	RegisterMapping(addr, size uint64)
	RemoveMapping(addr, size uint64)
	RegisterFile(fd, addr, size, offset uint64) int
	CheckIsMapping(addr, size uint64) int
	Flush(addr, size uint64)
	Fence()
	Commit()
	WriteStats()
	SetLogging(on bool)
	AddLogRegion(addr, size uint64)
	RemoveLogRegion(addr, size uint64)
	FullReorder()
	PartialReorder()
	OnlyFault()
	StopReorderFault()
	PrintMappings()
}

// Dispatch routes req to the matching Core verb. The return value is
// the opcode-specific result word where one is defined (REGISTER_FILE,
// CHECK_IS_MAPPING); every other opcode returns 0. err is ErrUnhandled
// for an opcode outside the table.
func Dispatch(core Core, req Request) (result int, err error) {
	switch req.Op {
	case RegisterMapping:
		core.RegisterMapping(req.Args[0], req.Args[1])
	case RemoveMapping:
		core.RemoveMapping(req.Args[0], req.Args[1])
	case RegisterFile:
		result = core.RegisterFile(req.Args[0], req.Args[1], req.Args[2], req.Args[3])
	case CheckIsMapping:
		result = core.CheckIsMapping(req.Args[0], req.Args[1])
	case DoFlush:
		core.Flush(req.Args[0], req.Args[1])
	case DoFence:
		core.Fence()
	case DoCommit:
		core.Commit()
	case WriteStats:
		core.WriteStats()
	case LogStores:
		core.SetLogging(true)
	case NoLogStores:
		core.SetLogging(false)
	case AddLogRegion:
		core.AddLogRegion(req.Args[0], req.Args[1])
	case RemoveLogRegion:
		core.RemoveLogRegion(req.Args[0], req.Args[1])
	case FullReorder:
		core.FullReorder()
	case PartialReorder:
		core.PartialReorder()
	case OnlyFault:
		core.OnlyFault()
	case StopReorderFault:
		core.StopReorderFault()
	case PrintPmemMappings:
		core.PrintMappings()
	default:
		return 0, ErrUnhandled
	}
	return result, nil
}

// Command is a parsed debugger command port request.
type Command int

const (
	CmdUnknown Command = iota
	CmdHelp
	CmdPrintStats
	CmdPrintPmemRegions
	CmdPrintLogRegions
)

// ParseCommand tokenizes one line from the debugger command port,
// matching case-sensitively against the four names the command handler
// recognises. Anything else, including a blank line, parses as
// CmdUnknown; the caller replies "not handled".
func ParseCommand(line string) Command {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return CmdUnknown
	}
	switch fields[0] {
	case "help":
		return CmdHelp
	case "print_stats":
		return CmdPrintStats
	case "print_pmem_regions":
		return CmdPrintPmemRegions
	case "print_log_regions":
		return CmdPrintLogRegions
	default:
		return CmdUnknown
	}
}
