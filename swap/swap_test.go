package swap

import (
	"bytes"
	"testing"

	"duskvm/mem"
	"duskvm/vmlog"
)

func page(fill byte) []byte {
	p := make([]byte, mem.PGSIZE)
	for i := range p {
		p[i] = fill
	}
	return p
}

func TestOutInRoundTrip(t *testing.T) {
	disk := NewMemDisk(SectorsPerPage * 4)
	sw := New(disk, vmlog.Noop())

	data := page(0x42)
	slot := sw.Out(data)

	dst := make([]byte, mem.PGSIZE)
	if err := sw.In(slot, dst); err != nil {
		t.Fatalf("In: %v", err)
	}
	if !bytes.Equal(data, dst) {
		t.Fatal("round-tripped page contents changed")
	}
	// The slot was freed by In; reusing it without a fresh Out should fail.
	if err := sw.In(slot, dst); err == nil {
		t.Fatal("expected In on a freed slot to fail")
	}
}

func TestPeekDoesNotFreeSlot(t *testing.T) {
	disk := NewMemDisk(SectorsPerPage * 2)
	sw := New(disk, vmlog.Noop())

	data := page(0x7)
	slot := sw.Out(data)

	dst := make([]byte, mem.PGSIZE)
	if err := sw.Peek(slot, dst); err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if !bytes.Equal(data, dst) {
		t.Fatal("Peek returned wrong bytes")
	}
	if !sw.Bitmap().Test(slot) {
		t.Fatal("Peek must not free the slot")
	}
}

func TestFreeReleasesSlotWithoutReading(t *testing.T) {
	disk := NewMemDisk(SectorsPerPage)
	sw := New(disk, vmlog.Noop())
	slot := sw.Out(page(1))
	sw.Free(slot)
	if sw.Bitmap().Test(slot) {
		t.Fatal("Free should clear the slot's bit")
	}
	// NoSlot is always safe to Free.
	sw.Free(NoSlot)
}

func TestOutPanicsWhenDeviceFull(t *testing.T) {
	disk := NewMemDisk(SectorsPerPage) // exactly one slot
	sw := New(disk, vmlog.Noop())
	sw.Out(page(1))

	defer func() {
		if recover() == nil {
			t.Fatal("expected Out to panic once the swap device is full")
		}
	}()
	sw.Out(page(2))
}
