package mem

import (
	"fmt"
	"sync"
)

// UserPool is the allocator collaborator: donor of page-sized,
// page-aligned memory for frames. AllocPage returns a fresh zeroed page
// or false if the pool is exhausted (the caller's cue to evict);
// FreePage returns a page to the pool.
type UserPool interface {
	AllocPage() ([]byte, bool)
	FreePage([]byte)
}

// FramePool is the concrete UserPool: a fixed-capacity donor of
// anonymous pages, each backed by a real OS mapping (see pool_unix.go /
// pool_fallback.go) rather than a plain Go byte slice, so a frame in
// this module behaves like a physical page alias instead of an
// ordinary GC-managed allocation. No refcounting or per-CPU sharding,
// since a Frame here always has exactly one owner at a time.
type FramePool struct {
	mu       sync.Mutex
	slots    [][]byte
	free     []int
	indexOf  map[uintptr]int
	capacity int
}

// NewFramePool allocates capacity page-sized slots up front and returns a
// pool ready to hand them out. capacity simulates the bound on physical
// memory that makes eviction necessary at all.
func NewFramePool(capacity int) (*FramePool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("duskvm/mem: capacity must be positive, got %d", capacity)
	}
	p := &FramePool{
		slots:    make([][]byte, capacity),
		free:     make([]int, 0, capacity),
		indexOf:  make(map[uintptr]int, capacity),
		capacity: capacity,
	}
	for i := 0; i < capacity; i++ {
		b, err := allocPage()
		if err != nil {
			p.Close()
			return nil, err
		}
		p.slots[i] = b
		p.indexOf[addrOf(b)] = i
		p.free = append(p.free, i)
	}
	return p, nil
}

// AllocPage hands out one zeroed page, or false if every slot is in use.
func (p *FramePool) AllocPage() ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return nil, false
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]
	b := p.slots[idx]
	for i := range b {
		b[i] = 0
	}
	return b, true
}

// FreePage returns a page previously handed out by AllocPage. It panics
// if kva was not obtained from this pool — a foreign pointer is a
// programming error in the claim/evict engine, not a recoverable
// runtime condition. A second FreePage of the same pool page is not
// detected.
func (p *FramePool) FreePage(kva []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.indexOf[addrOf(kva)]
	if !ok {
		panic("duskvm/mem: FreePage of unknown page")
	}
	p.free = append(p.free, idx)
}

// Avail reports the number of pages currently free, for tests and
// diagnostics.
func (p *FramePool) Avail() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Capacity reports the pool's total size.
func (p *FramePool) Capacity() int { return p.capacity }

// Close releases every backing mapping. Callers must not use the pool
// afterward.
func (p *FramePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for _, b := range p.slots {
		if b == nil {
			continue
		}
		if err := freePage(b); err != nil && first == nil {
			first = err
		}
	}
	return first
}
