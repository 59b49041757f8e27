// Package main implements the pmemtrace CLI: a stand-in session host
// that replays a textual event script through the engine and,
// optionally, serves the debugger command port concurrently.
//
// Usage:
//
//	pmemtrace --script=events.txt [--debug-addr=127.0.0.1:6000] [flags]
//
// The event script is one event per line; see replayLine for the
// recognised verbs. This is not part of the engine's real callback/
// opcode contracts; it exists only so this repository has a runnable
// entry point that exercises the engine the way a real
// dynamic-binary-translation host would.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/kolkov/pmemtrace/internal/pmem/config"
	"github.com/kolkov/pmemtrace/internal/pmem/engine"
	"github.com/kolkov/pmemtrace/internal/pmem/logstream"
	"github.com/kolkov/pmemtrace/internal/pmem/router"
)

const version = "0.1.0"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("pmemtrace", pflag.ContinueOnError)
	cfg := config.Default()
	config.RegisterFlags(fs, &cfg)
	scriptPath := fs.String("script", "-", `event script to replay ("-" for stdin)`)
	debugAddr := fs.String("debug-addr", "", "address to serve the debugger command port on (disabled if empty)")
	showVersion := fs.Bool("version", false, "print the version and exit")
	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("pmemtrace version %s\n", version)
		return nil
	}

	ctx := logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig))
	diag := logger.Get(ctx)

	log := logstream.New(os.Stdout)
	eng := engine.New(cfg, log, diag)

	// Session start/stop brackets the whole log regardless of which
	// individual records end up gated on; only log_stores governs it.
	if cfg.LogStores {
		log.Start()
	}

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("events", parallel.Fail, func(ctx context.Context) error {
			err := replayScript(*scriptPath, eng)
			if cfg.LogStores {
				log.Stop()
			}
			eng.WriteStats()
			return err
		})
		if *debugAddr != "" {
			spawn("debugport", parallel.Fail, func(ctx context.Context) error {
				return serveDebugPort(ctx, *debugAddr, eng)
			})
		}
		return nil
	})
}

func printUsage(fs *pflag.FlagSet) {
	fmt.Print(`pmemtrace - persistent-memory correctness checker

USAGE:
    pmemtrace [flags]

FLAGS:
`)
	fs.PrintDefaults()
}

// replayScript reads path (or stdin, for "-") line by line and feeds
// each one to the engine via replayLine. Returns the first error
// encountered, including engine.OverwriteFloodError.
func replayScript(path string, eng *engine.Engine) error {
	r := io.Reader(os.Stdin)
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "open event script")
		}
		defer f.Close()
		r = f
	}
	return replayScriptFromReader(r, eng)
}

// replayScriptFromReader is replayScript's body, split out so tests can
// drive it from an in-memory reader instead of a file.
func replayScriptFromReader(r io.Reader, eng *engine.Engine) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := replayLine(line, eng); err != nil {
			return errors.Wrapf(err, "replay %q", line)
		}
	}
	return errors.Wrap(scanner.Err(), "read event script")
}

// replayLine parses and applies one event script line. Recognised
// verbs: STORE, SBENTER, REGISTER, REMOVE, FLUSH, FENCE, COMMIT,
// LOGSTORES on|off, ADDLOG, REMOVELOG, REORDER full|partial|fault|stop,
// REGISTERFILE, CHECKMAPPING, WRITESTATS, PRINTMAPPINGS.
func replayLine(line string, eng *engine.Engine) error {
	fields := strings.Fields(line)
	verb := fields[0]
	args := fields[1:]

	u64 := func(i int) (uint64, error) {
		if i >= len(args) {
			return 0, errors.Errorf("missing argument %d", i)
		}
		return strconv.ParseUint(args[i], 0, 64)
	}

	switch verb {
	case "STORE":
		addr, err := u64(0)
		if err != nil {
			return err
		}
		size, err := u64(1)
		if err != nil {
			return err
		}
		value, err := u64(2)
		if err != nil {
			return err
		}
		return eng.OnStore(addr, size, value)
	case "SBENTER":
		eng.OnSuperblockEnter()
	case "REGISTER":
		addr, err := u64(0)
		if err != nil {
			return err
		}
		size, err := u64(1)
		if err != nil {
			return err
		}
		eng.RegisterMapping(addr, size)
	case "REMOVE":
		addr, err := u64(0)
		if err != nil {
			return err
		}
		size, err := u64(1)
		if err != nil {
			return err
		}
		eng.RemoveMapping(addr, size)
	case "FLUSH":
		addr, err := u64(0)
		if err != nil {
			return err
		}
		size, err := u64(1)
		if err != nil {
			return err
		}
		eng.Flush(addr, size)
	case "FENCE":
		eng.Fence()
	case "COMMIT":
		eng.Commit()
	case "LOGSTORES":
		if len(args) < 1 {
			return errors.New("LOGSTORES requires on|off")
		}
		eng.SetLogging(args[0] == "on")
	case "ADDLOG":
		addr, err := u64(0)
		if err != nil {
			return err
		}
		size, err := u64(1)
		if err != nil {
			return err
		}
		eng.AddLogRegion(addr, size)
	case "REMOVELOG":
		addr, err := u64(0)
		if err != nil {
			return err
		}
		size, err := u64(1)
		if err != nil {
			return err
		}
		eng.RemoveLogRegion(addr, size)
	case "REORDER":
		if len(args) < 1 {
			return errors.New("REORDER requires full|partial|fault|stop")
		}
		switch args[0] {
		case "full":
			eng.FullReorder()
		case "partial":
			eng.PartialReorder()
		case "fault":
			eng.OnlyFault()
		case "stop":
			eng.StopReorderFault()
		default:
			return errors.Errorf("unknown REORDER kind %q", args[0])
		}
	case "REGISTERFILE":
		fd, err := u64(0)
		if err != nil {
			return err
		}
		addr, err := u64(1)
		if err != nil {
			return err
		}
		size, err := u64(2)
		if err != nil {
			return err
		}
		offset, err := u64(3)
		if err != nil {
			return err
		}
		registerFile(eng, fd, addr, size, offset)
	case "CHECKMAPPING":
		addr, err := u64(0)
		if err != nil {
			return err
		}
		size, err := u64(1)
		if err != nil {
			return err
		}
		fmt.Printf("classification: %d\n", eng.CheckIsMapping(addr, size))
	case "WRITESTATS":
		eng.WriteStats()
	case "PRINTMAPPINGS":
		eng.PrintMappings()
	default:
		return errors.Errorf("unknown event verb %q", verb)
	}
	return nil
}

// registerFile resolves fd to a pathname via /proc/self/fd/<fd> (the
// same readlink trick pmemcheck's own register_new_file uses) and
// forwards the resolved path to the engine. A resolution failure is
// swallowed: there is no error surface visible to the host
// instrumentation callback path — the engine's 0/1 return contract for
// REGISTER_FILE lives entirely in this function, since the engine
// itself never touches the filesystem.
func registerFile(eng *engine.Engine, fd, addr, size, offset uint64) int {
	path, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd))
	if err != nil {
		return 0
	}
	return eng.RegisterFileResolved(path, addr, size, offset)
}

// serveDebugPort implements the debugger command port: a line-oriented
// TCP listener accepting help/print_stats/print_pmem_regions/
// print_log_regions, one connection handled at a time (the engine is
// not safe for concurrent calls).
func serveDebugPort(ctx context.Context, addr string, eng *engine.Engine) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen on debug port")
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept debug connection")
		}
		handleDebugConn(conn, eng)
	}
}

func handleDebugConn(conn net.Conn, eng *engine.Engine) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		switch router.ParseCommand(scanner.Text()) {
		case router.CmdHelp:
			fmt.Fprint(conn, "help print_stats print_pmem_regions print_log_regions\n")
		case router.CmdPrintStats:
			eng.WriteStats()
			fmt.Fprint(conn, "ok\n")
		case router.CmdPrintPmemRegions:
			eng.PrintMappings()
			fmt.Fprint(conn, "ok\n")
		case router.CmdPrintLogRegions:
			eng.PrintLogRegions()
			fmt.Fprint(conn, "ok\n")
		default:
			fmt.Fprint(conn, "not handled\n")
		}
	}
}
