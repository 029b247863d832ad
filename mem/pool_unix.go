//go:build unix

package mem

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// allocPage reserves one page-aligned anonymous mapping, giving a frame
// the same backing-memory shape a real physical page would have
// (independent of the Go heap, not subject to GC assumptions).
func allocPage() ([]byte, error) {
	return unix.Mmap(-1, 0, PGSIZE, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
}

// freePage releases a mapping obtained from allocPage.
func freePage(b []byte) error {
	return unix.Munmap(b)
}

func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
