package vm

import (
	"sync"

	"duskvm/defs"
	"duskvm/mem"
)

// SPT is the per-process Supplemental Page Table: virtual page address
// to Page record. A single sync.RWMutex over one Go map is enough since
// an SPT is private to one process — never a structure contended across
// address spaces the way the frame table is.
type SPT struct {
	mu    sync.RWMutex
	pages map[uintptr]*Page
}

// NewSPT returns an empty table.
func NewSPT() *SPT {
	return &SPT{pages: make(map[uintptr]*Page)}
}

// Find looks up the page covering va, rounding down to the containing
// page boundary first.
func (s *SPT) Find(va uintptr) (*Page, bool) {
	va = mem.Rounddownpg(va)
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[va]
	return p, ok
}

// Insert adds p, keyed by its (already page-aligned) va. Returns
// defs.ErrExist if the slot is occupied.
func (s *SPT) Insert(p *Page) error {
	if !mem.PageAligned(p.va) {
		return defs.ErrInval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pages[p.va]; exists {
		return defs.ErrExist
	}
	s.pages[p.va] = p
	return nil
}

// Remove deletes p from the table and releases its resources via
// destroy.
func (s *SPT) Remove(p *Page) {
	s.mu.Lock()
	delete(s.pages, p.va)
	s.mu.Unlock()
	p.destroy()
}

// Kill empties the table, destroying every remaining page. Pages are
// snapshotted and the map cleared before any destroy runs, so a page's
// own teardown never observes a half-emptied table.
func (s *SPT) Kill() {
	s.mu.Lock()
	pages := make([]*Page, 0, len(s.pages))
	for _, p := range s.pages {
		pages = append(pages, p)
	}
	s.pages = make(map[uintptr]*Page)
	s.mu.Unlock()
	for _, p := range pages {
		p.destroy()
	}
}

// Len reports the current entry count.
func (s *SPT) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// All returns a snapshot slice of every page currently in the table, for
// address-space copy (copy.go) to iterate without holding the table lock
// across per-page claim/I/O work.
func (s *SPT) All() []*Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Page, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, p)
	}
	return out
}
