// Package mem defines duskvm's page/frame primitives and the UserPool
// collaborator: the donor of physical-page-shaped memory that frames
// are bound to.
package mem

import "unsafe"

// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

// PGOFFSET masks offsets within a page.
const PGOFFSET uintptr = uintptr(PGSIZE) - 1

// PGMASK masks the page number of an address.
const PGMASK uintptr = ^PGOFFSET

// Pa_t represents a physical (frame-table-relative) address. duskvm
// doesn't have real physical memory to address, so a Pa_t here is just
// the stable identity of a Frame's backing allocation.
type Pa_t uintptr

// Bytepg_t is a byte-addressed page, the unit a swap/file read or write
// transfers.
type Bytepg_t [PGSIZE]uint8

// Pg_t is a page viewed as machine words, used where callers want to
// zero or compare whole pages cheaply.
type Pg_t [PGSIZE / 8]uint64

// Pg2bytes reinterprets a Pg_t as a Bytepg_t.
func Pg2bytes(pg *Pg_t) *Bytepg_t {
	return (*Bytepg_t)(unsafe.Pointer(pg))
}

// Rounddownpg rounds a virtual address down to its containing page.
func Rounddownpg(va uintptr) uintptr {
	return va &^ PGOFFSET
}

// PageAligned reports whether va is page-aligned.
func PageAligned(va uintptr) bool {
	return va&PGOFFSET == 0
}
