// Package frame implements the frame table: the set of resident frames
// and the clock hand used for second-chance eviction. Membership
// bookkeeping (Add idempotent, Remove repairing the hand) is grounded
// directly on original_source/pintos/vm/frame.c's frame_table_add and
// frame_table_remove.
//
// The frame<->page cross-reference is a plain pointer here since
// duskvm runs in one address space rather than across a page-table
// boundary; page.go never reaches back into a Frame except through the
// accessors below.
package frame

import (
	"sync"

	"duskvm/mem"
)

// Page is the minimal view a Frame needs of its bound page: just enough
// to let the clock sweep consult the owner's page table for the
// accessed bit, without frame importing package vm (which would create
// an import cycle, since vm.Page needs to reference Frame).
type Page interface {
	// VA returns the page's virtual address, for page-table lookups.
	VA() uintptr
	// Owner returns the page table to consult/mutate for this page.
	Owner() PageTable
}

// PageTable is the subset of pagetable.PageTable the clock sweep needs.
type PageTable interface {
	IsAccessed(va uintptr) bool
	SetAccessed(va uintptr, v bool)
}

// Frame represents one donated page-sized slot of memory: its backing
// bytes (Kva), the page currently bound to it (if any), and whether
// it's pinned against eviction mid-I/O.
type Frame struct {
	Kva    []byte
	page   Page
	pinned bool
}

// NewFrame wraps kva (obtained from a mem.UserPool) in a fresh, unbound
// Frame.
func NewFrame(kva []byte) *Frame {
	if len(kva) != mem.PGSIZE {
		panic("duskvm/frame: frame backing must be exactly one page")
	}
	return &Frame{Kva: kva}
}

// Page returns the page currently bound to this frame, or nil.
func (f *Frame) Page() Page { return f.page }

// Bind associates page with this frame.
func (f *Frame) Bind(p Page) { f.page = p }

// Unbind clears the frame's page reference.
func (f *Frame) Unbind() { f.page = nil }

// Pin marks the frame ineligible for eviction during I/O.
func (f *Frame) Pin() { f.pinned = true }

// Unpin clears the pin.
func (f *Frame) Unpin() { f.pinned = false }

// Pinned reports the current pin state.
func (f *Frame) Pinned() bool { return f.pinned }

// Table is the frame table: membership set plus clock hand, protected
// by one lock held across the whole victim sweep and released before
// any swap/file I/O on the chosen victim.
type Table struct {
	mu      sync.Mutex
	members []*Frame
	// index of the clock hand within members; -1 when empty.
	hand int
}

// NewTable returns an empty frame table.
func NewTable() *Table {
	return &Table{hand: -1}
}

// Add registers f in the table if it isn't already present.
func (t *Table) Add(f *Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.members {
		if m == f {
			return
		}
	}
	t.members = append(t.members, f)
	if t.hand == -1 {
		t.hand = 0
	}
}

// Remove drops f from the table, repairing the clock hand if f was the
// hand's target.
func (t *Table) Remove(f *Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := -1
	for i, m := range t.members {
		if m == f {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	wasHand := t.hand == idx
	t.members = append(t.members[:idx], t.members[idx+1:]...)
	switch {
	case len(t.members) == 0:
		t.hand = -1
	case wasHand:
		if idx >= len(t.members) {
			t.hand = 0
		} else {
			t.hand = idx
		}
	case idx < t.hand:
		t.hand--
	}
}

// Len reports the current membership count.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.members)
}

// Contains reports whether f is a member, for tests.
func (t *Table) Contains(f *Frame) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.members {
		if m == f {
			return true
		}
	}
	return false
}

// SelectVictim runs the clock/second-chance sweep: starting at the hand
// and advancing circularly, skip pinned frames and frames with no bound
// page; for each candidate, clear the accessed bit and advance if it
// was set, otherwise select it as the victim and advance the hand past
// it. It returns nil if no evictable frame exists (every member
// pinned) — the caller treats that as an unrecoverable condition.
//
// The chosen victim is pinned before the lock is released, so two
// concurrent sweeps can never select the same frame: the second sweep's
// Pinned() check will skip it. The caller is responsible for unpinning
// it once eviction completes, and also when it abandons an eviction
// before retrying with a fresh sweep.
//
// The lock is held for the duration of the sweep and released before
// returning: SelectVictim only picks the victim, it never performs
// swap/file I/O itself.
func (t *Table) SelectVictim() *Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.members)
	if n == 0 || t.hand == -1 {
		return nil
	}
	// At most two full circuits: the first clears accessed bits on
	// every still-accessed candidate, guaranteeing the second circuit
	// finds at least one already-cleared bit to evict, unless every
	// frame is pinned or pageless.
	for pass := 0; pass < 2*n; pass++ {
		cand := t.members[t.hand]
		nextHand := (t.hand + 1) % n
		if cand.Pinned() || cand.Page() == nil {
			t.hand = nextHand
			continue
		}
		p := cand.Page()
		if p.Owner().IsAccessed(p.VA()) {
			p.Owner().SetAccessed(p.VA(), false)
			t.hand = nextHand
			continue
		}
		t.hand = nextHand
		cand.Pin()
		return cand
	}
	return nil
}
