package vm

import (
	"duskvm/defs"
	"duskvm/mem"
)

// FaultInfo carries the parameters TryHandleFault dispatches on: the
// faulting address, whether it came from user mode, whether it was a
// write, and whether the PTE was not-present (as opposed to a
// protection violation). Rsp/ThreadSavedRsp stand in for the interrupt
// frame's saved stack pointer and the faulting thread's own saved user
// stack pointer: the former is valid when User is true, the latter is
// what the stack-growth heuristic falls back to for a fault taken in
// kernel mode on the user's behalf (e.g. a syscall dereferencing a user
// pointer).
type FaultInfo struct {
	Addr           uintptr
	User           bool
	Write          bool
	NotPresent     bool
	Rsp            uintptr
	ThreadSavedRsp uintptr
}

// TryHandleFault is the page-fault entry point: reject null/kernel
// addresses and protection violations outright, resolve to an existing
// SPT entry or a stack-growth allocation, reject a write to a read-only
// page, and finally claim the page into residency.
func (as *AddressSpace) TryHandleFault(fi FaultInfo) error {
	if !as.K.Cfg.inUserRange(fi.Addr) {
		return defs.ErrFault
	}
	if !fi.NotPresent {
		// A present PTE faulting is a protection violation; duskvm has
		// no write-protected/copy-on-write pages to repair, so this is
		// always an unrecoverable access.
		return defs.ErrFault
	}

	pageVA := mem.Rounddownpg(fi.Addr)
	page, ok := as.SPT.Find(pageVA)
	if !ok {
		if !as.shouldGrowStack(fi, pageVA) {
			return defs.ErrFault
		}
		if err := as.AllocPage(KindAnon, pageVA, true); err != nil {
			return err
		}
		page, ok = as.SPT.Find(pageVA)
		if !ok {
			return defs.ErrFault
		}
	}

	if fi.Write && !page.Writable() {
		return defs.ErrFault
	}

	return as.Claim(page)
}

// shouldGrowStack applies the stack-growth heuristic: the fault must
// land within StackLimit bytes below UserStack, and within
// StackHeuristic bytes below the relevant stack pointer (the interrupt
// frame's rsp for a user-mode fault, the thread's saved user rsp
// otherwise) — the "this looks like a PUSH growing the stack" test.
func (as *AddressSpace) shouldGrowStack(fi FaultInfo, pageVA uintptr) bool {
	cfg := as.K.Cfg
	if fi.Addr >= cfg.UserStack {
		return false
	}
	if fi.Addr+cfg.StackLimit < cfg.UserStack {
		return false
	}
	rsp := fi.Rsp
	if !fi.User {
		rsp = fi.ThreadSavedRsp
	}
	if rsp == 0 {
		return false
	}
	// fi.Addr >= rsp - StackHeuristic, rearranged to avoid an unsigned
	// underflow when rsp < StackHeuristic.
	return fi.Addr+cfg.StackHeuristic >= rsp
}
