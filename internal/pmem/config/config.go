// Package config holds the checker's tunables, exposed as command-line
// flags, plus their pflag registration. Values are plain data; every
// other package takes a config.Config by value and applies its own
// policy against it.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config mirrors pmemcheck's tool_pmemcheck.c argument set, translated
// to the subset this tool keeps in scope.
type Config struct {
	// TrackMultipleStores enables overwrite tracking. When false, a new
	// store to an address silently evicts whatever was tracked there,
	// with no overwrite record produced.
	TrackMultipleStores bool

	// StoreSBIndiff is the superblock-count window inside which an
	// identical repeated store to the same address/size/value is
	// considered benign rather than an overwrite.
	StoreSBIndiff uint64

	// CheckFlush enables redundant-flush detection: every tracked store
	// a flush window overlaps that is no longer DIRTY produces a
	// multi-flush record instead of being silently skipped.
	CheckFlush bool

	// LogStores is the master switch for the protocol log stream.
	// Gating against the global toggle and loggable regions is applied
	// on top of this by the engine.
	LogStores bool

	// PrintSummary controls whether the reporter emits its teardown
	// summary at all.
	PrintSummary bool

	// FlushAlign is the cache-line size flush windows are rounded to
	// before being applied to the tracker. pmemcheck probes it from the
	// host OS; here it defaults to 64 and is set by flag or by tests.
	FlushAlign uint64
}

// Default returns the tool's out-of-the-box configuration, matching
// pmemcheck's own CLI defaults: everything off except the teardown
// summary.
func Default() Config {
	return Config{
		TrackMultipleStores: false,
		StoreSBIndiff:       0,
		CheckFlush:          false,
		LogStores:           false,
		PrintSummary:        true,
		FlushAlign:          64,
	}
}

// yesNo adapts a *bool to pflag.Value so flags read as the familiar
// pmemcheck --flag=yes/no rather than Go's --flag/--flag=false.
type yesNo struct {
	target *bool
}

func (y *yesNo) String() string {
	if y.target == nil || !*y.target {
		return "no"
	}
	return "yes"
}

func (y *yesNo) Set(s string) error {
	switch s {
	case "yes", "true", "1":
		*y.target = true
	case "no", "false", "0":
		*y.target = false
	default:
		return errors.Errorf("invalid value %q, expected \"yes\" or \"no\"", s)
	}
	return nil
}

func (y *yesNo) Type() string { return "yes|no" }

// RegisterFlags binds cfg's fields onto fs, using pmemcheck's own flag
// names so a transcript copied from a real pmemcheck session parses
// unchanged. flush-align has no pmemcheck counterpart — the original
// probes it from the host OS at init; this tool takes it as a flag
// instead of doing OS-specific cache-line-size discovery, and falls
// back to 64 when unset.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.Var(&yesNo{&cfg.TrackMultipleStores}, "mult-stores", "track multiple overlapping in-flight stores")
	fs.Uint64Var(&cfg.StoreSBIndiff, "indiff", cfg.StoreSBIndiff, "superblock window treating a repeated identical store as benign")
	fs.Var(&yesNo{&cfg.LogStores}, "log-stores", "enable the protocol log stream")
	fs.Var(&yesNo{&cfg.PrintSummary}, "print-summary", "print the teardown summary")
	fs.Var(&yesNo{&cfg.CheckFlush}, "flush-check", "flag flushes of stores that are no longer dirty")
	fs.Uint64Var(&cfg.FlushAlign, "flush-align", cfg.FlushAlign, "cache line size flush windows are aligned to")
}
