package vm

import "duskvm/swap"

// anonSwapIn loads an anonymous page back into kva. If the page has never
// been swapped out (swapIdx == NoSlot — including the instant it was just
// transitioned from Uninit with no initializer) the pool's zeroed frame is
// already correct and there is nothing to read. Otherwise the page's data
// is fetched from its swap slot and the slot is freed.
func (p *Page) anonSwapIn(kva []byte) error {
	if p.swapIdx == swap.NoSlot {
		return nil
	}
	if err := p.owner.K.Swap.In(p.swapIdx, kva); err != nil {
		return err
	}
	p.swapIdx = swap.NoSlot
	return nil
}

// anonSwapOut writes the page's current frame contents to a fresh swap
// slot and records it. Called with p.mu held and p.frame non-nil
// (claim.go's evictFrame checks that before dispatching).
func (p *Page) anonSwapOut() error {
	data := make([]byte, len(p.frame.Kva))
	copy(data, p.frame.Kva)
	p.swapIdx = p.owner.K.Swap.Out(data)
	return nil
}
