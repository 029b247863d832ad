package vm

import (
	"testing"

	"golang.org/x/sync/errgroup"

	"duskvm/defs"
	"duskvm/mem"
	"duskvm/swap"
	"duskvm/vfile"
	"duskvm/vmlog"
)

func newTestKernel(t *testing.T, frames int) *Kernel {
	t.Helper()
	pool, err := mem.NewFramePool(frames)
	if err != nil {
		t.Fatalf("NewFramePool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })
	disk := swap.NewMemDisk(swap.SectorsPerPage * 16)
	sw := swap.New(disk, vmlog.Noop())
	return Init(pool, sw, DefaultConfig(), vmlog.Noop())
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestLazyAnonymousLoadIsZeroFilled(t *testing.T) {
	k := newTestKernel(t, 4)
	as := NewAddressSpace(k)
	va := uintptr(0x10000)

	if err := as.AllocPage(KindAnon, va, true); err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	if err := as.ClaimPage(va); err != nil {
		t.Fatalf("ClaimPage: %v", err)
	}
	p, ok := as.SPT.Find(va)
	if !ok || !p.Resident() {
		t.Fatal("expected the page to be resident after Claim")
	}
	if !allZero(p.Frame().Kva) {
		t.Fatal("a freshly claimed anonymous page must be zero-filled")
	}
}

func TestStackGrowthOnPushWithinLimit(t *testing.T) {
	k := newTestKernel(t, 4)
	as := NewAddressSpace(k)
	cfg := k.Cfg

	addr := cfg.UserStack - uintptr(mem.PGSIZE)
	rsp := addr + cfg.StackHeuristic // fault 8 bytes below the current rsp, as a PUSH would

	err := as.TryHandleFault(FaultInfo{
		Addr:       addr,
		User:       true,
		Write:      true,
		NotPresent: true,
		Rsp:        rsp,
	})
	if err != nil {
		t.Fatalf("expected the stack to grow, got %v", err)
	}
	p, ok := as.SPT.Find(addr)
	if !ok || !p.Resident() {
		t.Fatal("expected a resident page to have been allocated for the grown stack")
	}
}

func TestStackGrowthBeyondLimitRejected(t *testing.T) {
	k := newTestKernel(t, 4)
	as := NewAddressSpace(k)
	cfg := k.Cfg

	addr := cfg.UserStack - cfg.StackLimit - uintptr(mem.PGSIZE)
	rsp := addr + cfg.StackHeuristic

	err := as.TryHandleFault(FaultInfo{
		Addr:       addr,
		User:       true,
		Write:      true,
		NotPresent: true,
		Rsp:        rsp,
	})
	if err != defs.ErrFault {
		t.Fatalf("expected ErrFault beyond the stack limit, got %v", err)
	}
	if as.SPT.Len() != 0 {
		t.Fatal("a rejected stack-growth fault must not leave an SPT entry behind")
	}
}

func TestStackGrowthRejectsFaultFarBelowRsp(t *testing.T) {
	k := newTestKernel(t, 4)
	as := NewAddressSpace(k)
	cfg := k.Cfg

	addr := cfg.UserStack - uintptr(mem.PGSIZE)
	rsp := addr + cfg.StackHeuristic + 1024 // far beyond a plausible push

	err := as.TryHandleFault(FaultInfo{
		Addr:       addr,
		User:       true,
		Write:      true,
		NotPresent: true,
		Rsp:        rsp,
	})
	if err != defs.ErrFault {
		t.Fatalf("expected ErrFault for a fault far below rsp, got %v", err)
	}
}

func TestMmapLazyLoadReadsFileAndZeroFills(t *testing.T) {
	k := newTestKernel(t, 4)
	as := NewAddressSpace(k)
	content := []byte("hello world")
	f := vfile.NewMemFile(content)
	va := uintptr(0x40000)

	addr, err := as.DoMmap(va, len(content), true, f, 0)
	if err != nil {
		t.Fatalf("DoMmap: %v", err)
	}
	if addr != va {
		t.Fatalf("expected DoMmap to return %x, got %x", va, addr)
	}
	if err := as.ClaimPage(va); err != nil {
		t.Fatalf("ClaimPage: %v", err)
	}
	p, _ := as.SPT.Find(va)
	kva := p.Frame().Kva
	if string(kva[:len(content)]) != string(content) {
		t.Fatalf("expected file contents at the start of the page, got %q", kva[:len(content)])
	}
	if !allZero(kva[len(content):]) {
		t.Fatal("expected the remainder of the page to be zero-filled")
	}
}

func TestMmapDirtyPageWritesBackOnMunmap(t *testing.T) {
	k := newTestKernel(t, 4)
	as := NewAddressSpace(k)
	f := vfile.NewMemFile([]byte("0123456789"))
	va := uintptr(0x50000)

	if _, err := as.DoMmap(va, 10, true, f, 0); err != nil {
		t.Fatalf("DoMmap: %v", err)
	}
	if err := as.ClaimPage(va); err != nil {
		t.Fatalf("ClaimPage: %v", err)
	}
	p, _ := as.SPT.Find(va)
	copy(p.Frame().Kva, []byte("ABCDEFGHIJ"))
	if !as.Pmap.MarkWrite(va) {
		t.Fatal("MarkWrite should succeed on a writable mapping")
	}

	as.DoMunmap(va)

	got := f.Snapshot()
	if string(got[:10]) != "ABCDEFGHIJ" {
		t.Fatalf("expected the dirty page to be written back, got %q", got[:10])
	}
	if as.SPT.Len() != 0 {
		t.Fatal("DoMunmap should remove every page the mapping covered")
	}
}

func TestMunmapOnUnknownAddressIsNoop(t *testing.T) {
	k := newTestKernel(t, 4)
	as := NewAddressSpace(k)
	as.DoMunmap(0xdeadb000) // must not panic
}

func TestEvictionThenRefaultRoundTrips(t *testing.T) {
	k := newTestKernel(t, 1) // exactly one frame forces eviction on the second claim
	as := NewAddressSpace(k)
	va1 := uintptr(0x10000)
	va2 := uintptr(0x20000)

	if err := as.AllocPage(KindAnon, va1, true); err != nil {
		t.Fatalf("AllocPage va1: %v", err)
	}
	if err := as.AllocPage(KindAnon, va2, true); err != nil {
		t.Fatalf("AllocPage va2: %v", err)
	}
	if err := as.ClaimPage(va1); err != nil {
		t.Fatalf("ClaimPage va1: %v", err)
	}
	p1, _ := as.SPT.Find(va1)
	p1.Frame().Kva[0] = 0xAB

	if err := as.ClaimPage(va2); err != nil {
		t.Fatalf("ClaimPage va2 (should evict va1): %v", err)
	}
	if p1.Resident() {
		t.Fatal("expected va1's page to have been evicted")
	}
	if p1.SwapIdx() == swap.NoSlot {
		t.Fatal("an evicted anonymous page must hold a swap slot")
	}

	if err := as.ClaimPage(va1); err != nil {
		t.Fatalf("re-claiming va1 after eviction: %v", err)
	}
	if p1.SwapIdx() != swap.NoSlot {
		t.Fatal("swap-in should release the slot")
	}
	if p1.Frame().Kva[0] != 0xAB {
		t.Fatalf("expected evicted page contents to survive the round trip, got %#x", p1.Frame().Kva[0])
	}
}

func TestConcurrentClaimIsIdempotent(t *testing.T) {
	k := newTestKernel(t, 8)
	as := NewAddressSpace(k)
	va := uintptr(0x30000)
	if err := as.AllocPage(KindAnon, va, true); err != nil {
		t.Fatalf("AllocPage: %v", err)
	}

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			return as.ClaimPage(va)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent ClaimPage: %v", err)
	}
	if k.Frames.Len() != 1 {
		t.Fatalf("expected exactly one frame table entry for the racing claims, got %d", k.Frames.Len())
	}
}

func TestCopyReplicatesAnonAndUninitPages(t *testing.T) {
	k := newTestKernel(t, 8)
	parent := NewAddressSpace(k)
	child := NewAddressSpace(k)

	claimedVA := uintptr(0x10000)
	lazyVA := uintptr(0x20000)

	if err := parent.AllocPage(KindAnon, claimedVA, true); err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	if err := parent.ClaimPage(claimedVA); err != nil {
		t.Fatalf("ClaimPage: %v", err)
	}
	pp, _ := parent.SPT.Find(claimedVA)
	pp.Frame().Kva[0] = 0x55

	if err := parent.AllocPage(KindAnon, lazyVA, true); err != nil {
		t.Fatalf("AllocPage lazy: %v", err)
	}

	if err := parent.Copy(child); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	cp, ok := child.SPT.Find(claimedVA)
	if !ok {
		t.Fatal("expected the claimed page to be replicated")
	}
	if !cp.Resident() || cp.Frame().Kva[0] != 0x55 {
		t.Fatal("expected the child's copy to carry the parent's bytes")
	}
	// Mutating the child's copy must not affect the parent's page.
	cp.Frame().Kva[0] = 0x99
	if pp.Frame().Kva[0] != 0x55 {
		t.Fatal("parent and child anonymous frames must be independent after fork")
	}

	if _, ok := child.SPT.Find(lazyVA); !ok {
		t.Fatal("expected the never-claimed page to be replicated as an Uninit entry")
	}
}

func TestKillDestroysResidentPagesAndClosesMappings(t *testing.T) {
	k := newTestKernel(t, 4)
	as := NewAddressSpace(k)
	va := uintptr(0x10000)
	if err := as.AllocPage(KindAnon, va, true); err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	if err := as.ClaimPage(va); err != nil {
		t.Fatalf("ClaimPage: %v", err)
	}

	mf := vfile.NewMemFile([]byte("data"))
	if _, err := as.DoMmap(uintptr(0x60000), 4, false, mf, 0); err != nil {
		t.Fatalf("DoMmap: %v", err)
	}
	region := as.MmapList[0]

	as.Kill()

	if as.SPT.Len() != 0 {
		t.Fatal("Kill should empty the SPT")
	}
	if k.Frames.Len() != 0 {
		t.Fatal("Kill should release every frame back to the pool")
	}
	if _, err := region.file.ReadAt(make([]byte, 1), 0); err != defs.ErrInval {
		t.Fatal("Kill should close every mmap region's file handle")
	}
}
