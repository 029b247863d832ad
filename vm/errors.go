package vm

import (
	"errors"

	"duskvm/defs"
)

// errNoMem is returned when the simulated MMU refuses a mapping (e.g. a
// misaligned va slipping through — structurally prevented elsewhere, but
// kept as a defensive return rather than a panic since it's a caller
// contract violation, not a resource-exhaustion condition).
var errNoMem = defs.ErrNoMem

// errEvictionBusy signals that evictFrame couldn't acquire the victim
// page's lock without blocking. It never escapes the vm package:
// getFrame retries against a fresh victim selection instead.
var errEvictionBusy = errors.New("duskvm/vm: eviction victim busy")

// panicEvictionImpossible raises the unrecoverable condition: every
// frame in the table is pinned, so no frame can ever be reclaimed.
func panicEvictionImpossible() {
	defs.Panic("eviction impossible: every frame is pinned")
}
