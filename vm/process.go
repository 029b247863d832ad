package vm

// Thread is the collaborator exposing a saved user stack pointer for
// the stack-growth heuristic when a fault is taken outside user mode
// (e.g. a syscall handler dereferencing a user pointer). duskvm doesn't
// need the rest of a real per-thread record (page table, SPT, mmap
// list): those are exactly AddressSpace's own fields, so FaultInfo
// (fault.go) carries only the two values that genuinely originate from
// the interrupt frame / thread rather than the address space — Rsp and
// ThreadSavedRsp. Thread exists purely as a convenience for callers that
// already have one of these lying around.
type Thread interface {
	SavedUserRsp() uintptr
}

// FaultInfoFor builds a FaultInfo for a fault taken while t was running,
// filling ThreadSavedRsp from it.
func FaultInfoFor(t Thread, addr uintptr, user, write, notPresent bool, rsp uintptr) FaultInfo {
	return FaultInfo{
		Addr:           addr,
		User:           user,
		Write:          write,
		NotPresent:     notPresent,
		Rsp:            rsp,
		ThreadSavedRsp: t.SavedUserRsp(),
	}
}
