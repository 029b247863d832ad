package vm

import "duskvm/swap"

// uninitSwapIn performs the one-shot UNINIT transition:
// switch the kind tag to the declared eventual type, clear the now-spent
// uninit metadata, then invoke the recorded initializer (if any) to
// populate the fresh frame. Grounded on pintos's uninit_initialize,
// which sets page->operations before calling page->uninit.init.
//
// Called with p.mu held (from Page.swapIn, itself called with the lock
// held by claim.go).
func (p *Page) uninitSwapIn(kva []byte) error {
	switch p.uninitType {
	case KindAnon:
 p.kind = KindAnon
 p.swapIdx = swap.NoSlot
	case KindFile:
 p.kind = KindFile
	default:
 panic("duskvm/vm: uninit page has no declared eventual type")
	}
	init:= p.uninitInit
	aux:= p.uninitAux
	p.uninitInit = nil
	p.uninitAux = nil
	if init == nil {
 // No initializer: the pool already handed us a zeroed frame,
 // which is exactly a fresh anonymous page's contents.
 return nil
	}
	return init(p, aux)
}
