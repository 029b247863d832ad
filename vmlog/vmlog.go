// Package vmlog is the ambient logging seam for duskvm: swap-full,
// swap-write-failure and eviction-impossible events go through a small
// injectable Logger instead of bare fmt.Printf, so a harness embedding
// the core can route them wherever it likes. Ordinary evictions and
// rejected faults are not logged.
package vmlog

import (
	"log/slog"
	"os"
)

// Logger is the logging surface duskvm depends on. *slog.Logger already
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Default is used by every package that doesn't receive an explicit
// Logger. Replace it (or pass one in explicitly) to capture VM events in
// a test or a real kernel's own log sink.
var Default Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level: slog.LevelWarn,
}))

// noop silences all log output; used by tests that assert on behavior,
// not log lines.
type noop struct{}

func (noop) Debug(string, ...any) {}
func (noop) Info(string, ...any)  {}
func (noop) Warn(string, ...any)  {}
func (noop) Error(string, ...any) {}

// Noop returns a Logger that discards everything.
func Noop() Logger { return noop{} }
