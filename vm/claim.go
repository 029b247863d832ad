package vm

import (
	"runtime"

	"duskvm/frame"
)

// Claim brings p into residency: idempotent if it already is. Split
// into getFrame (allocate-or-evict) and the bind/map/load sequence.
//
// p.mu is held for the whole call, including any eviction getFrame
// performs: the frame selected for eviction can never be p's own (p has
// no frame yet), so this can't self-deadlock, and it closes the race
// window where a second caller blocks on p.mu and then sees p.frame
// already set.
func (as *AddressSpace) Claim(p *Page) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frame != nil {
		return nil
	}

	f, err := as.getFrame()
	if err != nil {
		return err
	}

	f.Bind(p)
	f.Pin()
	p.frame = f

	if !as.Pmap.Map(p.va, f.Kva, p.writable) {
		p.frame = nil
		as.K.freeFrame(f)
		f.Unpin()
		return errNoMem
	}

	if err := p.swapIn(f.Kva); err != nil {
		as.Pmap.Unmap(p.va)
		p.frame = nil
		as.K.freeFrame(f)
		f.Unpin()
		return err
	}

	as.K.Frames.Add(f)
	f.Unpin()
	return nil
}

// getFrame returns a zeroed frame ready to bind: either fresh from the
// pool, or — once the pool is exhausted — reclaimed from the victim the
// frame table's clock sweep selects and cleared of the victim's bytes.
//
// SelectVictim pins whatever it returns before releasing the table
// lock, so a losing evictFrame attempt (errEvictionBusy) must unpin
// before retrying: otherwise the victim stays permanently ineligible
// for any future sweep.
func (as *AddressSpace) getFrame() (*frame.Frame, error) {
	if kva, ok := as.K.Pool.AllocPage(); ok {
		return frame.NewFrame(kva), nil
	}
	for {
		victim := as.K.Frames.SelectVictim()
		if victim == nil {
			as.K.Log.Error("vm: eviction impossible, every frame is pinned")
			panicEvictionImpossible()
		}
		err := as.K.evictFrame(victim)
		if err == errEvictionBusy {
			victim.Unpin()
			runtime.Gosched()
			continue
		}
		if err != nil {
			victim.Unpin()
			return nil, err
		}
		for i := range victim.Kva {
			victim.Kva[i] = 0
		}
		return victim, nil
	}
}

// evictFrame runs the generic eviction steps against victim's bound
// page: variant-dispatched swap-out, MMU unmap, then clear the
// cross-links so the frame is ready to be rebound by the caller.
//
// It never blocks waiting for the victim page's lock: a concurrent
// Claim on some other page q might itself be holding q.mu while trying
// to evict the caller's own page as ITS victim, and a caller of
// evictFrame always holds its own claiming page's lock for the
// duration — blocking here on pg.mu would be a classic lock-order
// inversion (the caller holds lock A and waits on B while some other
// goroutine holds B and waits on A). TryLock turns that potential
// deadlock into a retry in getFrame instead; getFrame sets no limit on
// the number of retries.
func (k *Kernel) evictFrame(victim *frame.Frame) error {
	page := victim.Page()
	if page == nil {
		// Already unbound by a racing eviction that got here first;
		// nothing left to do, the frame is ready to rebind as-is.
		return nil
	}
	pg := page.(*Page)
	if !pg.mu.TryLock() {
		return errEvictionBusy
	}
	defer pg.mu.Unlock()
	if pg.frame == nil {
		// Lost the race: another evictor already tore this page down.
		return nil
	}
	if err := pg.swapOut(); err != nil {
		return err
	}
	pg.owner.Pmap.Unmap(pg.va)
	victim.Unbind()
	pg.frame = nil
	return nil
}
