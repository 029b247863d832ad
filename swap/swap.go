package swap

import (
	"duskvm/defs"
	"duskvm/mem"
	"duskvm/vmlog"
)

// NoSlot is the sentinel swap index meaning "not currently swapped".
const NoSlot = -1

// SectorsPerPage is the number of disk sectors one page occupies:
// PGSIZE / SectorSize (8 for a 4KiB page / 512B sector).
const SectorsPerPage = mem.PGSIZE / SectorSize

// Swap ties a Disk and a Bitmap together: page-granular swap-out/in
// over a sector-addressed device.
type Swap struct {
	disk   Disk
	bitmap *Bitmap
	log    vmlog.Logger
}

// New builds a Swap subsystem over disk, sizing the slot bitmap to
// disk.Size()/SectorsPerPage.
func New(disk Disk, log vmlog.Logger) *Swap {
	if log == nil {
		log = vmlog.Default
	}
	nslots := disk.Size() / SectorsPerPage
	return &Swap{disk: disk, bitmap: NewBitmap(nslots), log: log}
}

// Out writes one page of data to a freshly allocated slot and returns
// the slot index. It panics with a *defs.Fatal if the device is full:
// swap exhaustion is treated as an unrecoverable kernel condition, not
// a returned error.
func (s *Swap) Out(data []byte) int {
	if len(data) != mem.PGSIZE {
		panic("duskvm/swap: Out requires exactly one page of data")
	}
	slot, ok := s.bitmap.ScanAndFlip()
	if !ok {
		s.log.Error("swap device full")
		defs.Panic("swap full")
	}
	start := slot * SectorsPerPage
	for i := 0; i < SectorsPerPage; i++ {
		off := i * SectorSize
		if err := s.disk.Write(start+i, data[off:off+SectorSize]); err != nil {
			// A write failure mid-transfer is as fatal as a full
			// device: the slot is marked used but only partially
			// written, and anon pages have no secondary backing.
			s.log.Error("swap write failed", "slot", slot, "err", err)
			defs.Panic("swap write failed")
		}
	}
	return slot
}

// In reads slot's page back into dst (exactly one page) and frees the
// slot. It returns defs.ErrInval if the slot isn't currently allocated —
// a logical error, not a fatal one, since it indicates a caller bug
// (double swap-in) rather than device exhaustion.
func (s *Swap) In(slot int, dst []byte) error {
	if len(dst) != mem.PGSIZE {
		panic("duskvm/swap: In requires exactly one page of destination")
	}
	if slot < 0 || slot >= s.bitmap.Len() || !s.bitmap.Test(slot) {
		return defs.ErrInval
	}
	start := slot * SectorsPerPage
	for i := 0; i < SectorsPerPage; i++ {
		off := i * SectorSize
		if err := s.disk.Read(start+i, dst[off:off+SectorSize]); err != nil {
			return defs.ErrShortIO
		}
	}
	s.bitmap.Reset(slot)
	return nil
}

// Free releases slot without reading it back, used when an Anon page is
// destroyed while swapped out.
func (s *Swap) Free(slot int) {
	if slot == NoSlot {
		return
	}
	s.bitmap.Reset(slot)
}

// Peek copies slot's page into dst without freeing the slot. Address-space
// copy needs the bytes of a still-swapped source page without disturbing
// the source's own residency or swap bookkeeping, which rules out
// routing through In.
func (s *Swap) Peek(slot int, dst []byte) error {
	if len(dst) != mem.PGSIZE {
		panic("duskvm/swap: Peek requires exactly one page of destination")
	}
	if slot < 0 || slot >= s.bitmap.Len() || !s.bitmap.Test(slot) {
		return defs.ErrInval
	}
	start := slot * SectorsPerPage
	for i := 0; i < SectorsPerPage; i++ {
		off := i * SectorSize
		if err := s.disk.Read(start+i, dst[off:off+SectorSize]); err != nil {
			return defs.ErrShortIO
		}
	}
	return nil
}

// Bitmap exposes the underlying allocator for invariant checks in tests.
func (s *Swap) Bitmap() *Bitmap { return s.bitmap }
