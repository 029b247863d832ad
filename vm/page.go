package vm

import (
	"sync"

	"duskvm/frame"
	"duskvm/mem"
	"duskvm/pagetable"
	"duskvm/swap"
)

// InitFunc lazily populates a page's contents the first time it's
// claimed: lazyLoadFile (file.go) and the zero-fill default (nil,
// meaning "leave the pool's zeroed frame as-is") are the two instances
// in use.
type InitFunc func(p *Page, aux interface{}) error

// Page is the tagged record: one struct with a kind tag and exactly one
// payload active per kind, rather than separate types behind an
// operations table. swapIn/swapOut/destroy below are the
// match-dispatched replacement for that table.
type Page struct {
	mu sync.Mutex

	va       uintptr
	writable bool
	owner    *AddressSpace
	frame    *frame.Frame
	kind     Kind

	// Uninit payload: the declared eventual kind plus the recorded
	// initializer and its opaque aux.
	uninitType Kind
	uninitInit InitFunc
	uninitAux  interface{}

	// Anon payload.
	swapIdx int

	// File payload.
	file filePayload
}

// VA satisfies frame.Page: the virtual address this page is resident at.
func (p *Page) VA() uintptr { return p.va }

// Owner satisfies frame.Page: the page table to consult during eviction's
// clock sweep, and to unmap during eviction/destroy.
func (p *Page) Owner() frame.PageTable { return p.owner.Pmap }

// Writable reports whether the owning process may write this page.
func (p *Page) Writable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writable
}

// Kind reports the page's current variant, without resolving Uninit to
// its eventual type (see EventualType for that).
func (p *Page) Kind() Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kind
}

// EventualType reports the kind this page is, or will become once first
// claimed: Anon/File pages report themselves, Uninit pages report their
// recorded uninitType. Address-space copy (copy.go) needs this to decide
// how to replicate a page it has never claimed.
func (p *Page) EventualType() Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.kind == KindUninit {
		return p.uninitType
	}
	return p.kind
}

// Resident reports whether the page currently owns a frame.
func (p *Page) Resident() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame != nil
}

// Frame returns the bound frame, or nil, for tests that need to inspect
// or mutate backing bytes directly.
func (p *Page) Frame() *frame.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

// SwapIdx returns the page's current swap slot, or swap.NoSlot.
func (p *Page) SwapIdx() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.swapIdx
}

// swapIn dispatches a fresh claim to the variant-specific loader. Called
// with p.mu held by the caller (claim.go).
func (p *Page) swapIn(kva []byte) error {
	switch p.kind {
	case KindUninit:
		return p.uninitSwapIn(kva)
	case KindAnon:
		return p.anonSwapIn(kva)
	case KindFile:
		return p.fileSwapIn(kva)
	default:
		panic("duskvm/vm: swapIn on page of unknown kind")
	}
}

// swapOut dispatches eviction's variant-specific write-back/bookkeeping.
// Called with p.mu held by the caller (claim.go's evictFrame).
func (p *Page) swapOut() error {
	switch p.kind {
	case KindAnon:
		return p.anonSwapOut()
	case KindFile:
		return p.fileSwapOut()
	default:
		panic("duskvm/vm: swapOut on a page that was never resident")
	}
}

// destroy releases whatever resources the page's current variant holds:
// its frame (unmapped and returned to the pool, writing back first if a
// dirty File page), and its swap slot if one is held.
func (p *Page) destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.kind {
	case KindUninit:
		// No frame, no swap slot: nothing to release.
	case KindAnon:
		if p.frame != nil {
			p.owner.Pmap.Unmap(p.va)
			p.owner.K.freeFrame(p.frame)
			p.frame = nil
		}
		if p.swapIdx != swap.NoSlot {
			p.owner.K.Swap.Free(p.swapIdx)
			p.swapIdx = swap.NoSlot
		}
	case KindFile:
		if p.frame != nil {
			if p.owner.Pmap.IsDirty(p.va) {
				_, _ = p.file.file.WriteAt(p.frame.Kva[:p.file.readBytes], p.file.offset)
				p.owner.Pmap.SetDirty(p.va, false)
			}
			p.owner.Pmap.Unmap(p.va)
			p.owner.K.freeFrame(p.frame)
			p.frame = nil
		}
		// The mmap region, not the page, owns the file handle; it is
		// closed by DoMunmap/Kill once every page in the region has
		// been destroyed.
	}
}

// pageAligned is a small local guard used by several vm.go entry points.
func pageAligned(va uintptr) bool { return mem.PageAligned(va) }

var _ pagetable.PageTable = (*pagetable.Pmap)(nil)
