package vm

import (
	"sync"

	"duskvm/defs"
	"duskvm/frame"
	"duskvm/mem"
	"duskvm/pagetable"
	"duskvm/swap"
	"duskvm/vmlog"
)

// Config collects the tunables (stack growth limits, user/kernel split)
// into one injectable struct, so tests can exercise non-default limits instead of
// reaching for package-level vars.
type Config struct {
	// UserStack is the highest user virtual address, the base the stack
	// grows down from.
	UserStack uintptr
	// StackLimit is the maximum size the stack may grow to, in bytes.
	StackLimit uintptr
	// StackHeuristic is the maximum distance below the current stack
	// pointer a fault address may be and still count as a push.
	StackHeuristic uintptr
	// KernelBase is the lowest address treated as kernel, not user,
	// space; faults at or above it are always rejected.
	KernelBase uintptr
}

// DefaultConfig returns reasonable defaults for a 64-bit user/kernel split.
func DefaultConfig() Config {
	return Config{
		UserStack:      0x47480000,
		StackLimit:     1 << 20,
		StackHeuristic: 8,
		KernelBase:     uintptr(1) << 47,
	}
}

// inUserRange reports whether va is a plausible user address: non-null
// and below the kernel/user split.
func (c Config) inUserRange(va uintptr) bool {
	return va != 0 && va < c.KernelBase
}

// Kernel holds the process-wide singletons: the frame pool, the frame
// table and its clock hand, and the swap subsystem. One Kernel is shared
// by every AddressSpace.
type Kernel struct {
	Pool   mem.UserPool
	Frames *frame.Table
	Swap   *swap.Swap
	Cfg    Config
	Log    vmlog.Logger
}

// Init builds a Kernel over the given frame pool and swap device.
func Init(pool mem.UserPool, sw *swap.Swap, cfg Config, log vmlog.Logger) *Kernel {
	if log == nil {
		log = vmlog.Default
	}
	return &Kernel{
		Pool:   pool,
		Frames: frame.NewTable(),
		Swap:   sw,
		Cfg:    cfg,
		Log:    log,
	}
}

// freeFrame removes f from the frame table, unbinds it, and returns its
// backing bytes to the pool. Used by Page.destroy and by claim.go's
// failure-path unwind.
func (k *Kernel) freeFrame(f *frame.Frame) {
	k.Frames.Remove(f)
	f.Unbind()
	k.Pool.FreePage(f.Kva)
}

// AddressSpace is one process's virtual memory: its Supplemental Page
// Table, its (simulated) page table, and its mmap bookkeeping. mu guards
// MmapList; SPT and Pmap each carry their own finer-grained locking.
type AddressSpace struct {
	mu sync.Mutex

	K        *Kernel
	SPT      *SPT
	Pmap     *pagetable.Pmap
	MmapList []*MmapRegion
}

// NewAddressSpace returns an empty address space backed by k.
func NewAddressSpace(k *Kernel) *AddressSpace {
	return &AddressSpace{K: k, SPT: NewSPT(), Pmap: pagetable.NewPmap()}
}

// AllocPageWithInitializer registers a new Uninit page at va, declared to
// eventually become kind (which must not itself be KindUninit), with
// init/aux recorded to run on first claim. Fails if va already has an
// SPT entry.
func (as *AddressSpace) AllocPageWithInitializer(kind Kind, va uintptr, writable bool, init InitFunc, aux interface{}) error {
	if kind == KindUninit {
		panic("duskvm/vm: AllocPageWithInitializer requires a concrete eventual kind")
	}
	va = mem.Rounddownpg(va)
	p := &Page{
		va:         va,
		writable:   writable,
		owner:      as,
		kind:       KindUninit,
		uninitType: kind,
		uninitInit: init,
		uninitAux:  aux,
		swapIdx:    swap.NoSlot,
	}
	return as.SPT.Insert(p)
}

// AllocPage is AllocPageWithInitializer with no initializer: a lazily
// zero-filled page, used for on-demand stack growth.
func (as *AddressSpace) AllocPage(kind Kind, va uintptr, writable bool) error {
	return as.AllocPageWithInitializer(kind, va, writable, nil, nil)
}

// ClaimPage brings the page covering va into residency, allocating it
// first if necessary. Returns defs.ErrNotFound if no SPT entry covers va.
func (as *AddressSpace) ClaimPage(va uintptr) error {
	p, ok := as.SPT.Find(va)
	if !ok {
		return defs.ErrNotFound
	}
	return as.Claim(p)
}

// Kill tears down the address space: every resident/backed page is
// destroyed (write-back, unmap, frame/slot release), then every mmap
// region's file handle is closed.
func (as *AddressSpace) Kill() {
	as.SPT.Kill()
	as.mu.Lock()
	regions := as.MmapList
	as.MmapList = nil
	as.mu.Unlock()
	for _, r := range regions {
		_ = r.file.Close()
	}
}
