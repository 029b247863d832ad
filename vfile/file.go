// Package vfile provides a minimal file-handle abstraction for mmap and
// lazy file-backed page loads: byte-granular read/write over an opaque
// handle that can be reopened and closed independently per mapping.
package vfile

import (
	"sync"

	"duskvm/defs"
)

// File is the collaborator a file-backed mapping reads and writes
// through.
type File interface {
	ReadAt(buf []byte, off int64) (n int, err error)
	WriteAt(buf []byte, off int64) (n int, err error)
	Length() int64
	Reopen() (File, error)
	Close() error
}

// MemFile is an in-memory File used by tests exercising mmap and lazy
// file loads, and by any harness with no real filesystem wired in.
// Reopen returns a handle sharing the same backing bytes (matching a
// real reopen(2), which shares the underlying inode) but with its own
// closed flag, since each mmap region owns one independently-closable
// reopened handle.
type MemFile struct {
	mu     *sync.RWMutex
	data   *[]byte
	closed bool
}

// NewMemFile creates a file whose initial contents are data (not
// copied defensively — tests construct it directly from a byte literal).
func NewMemFile(data []byte) *MemFile {
	return &MemFile{mu: &sync.RWMutex{}, data: &data}
}

// Length returns the file's current size.
func (f *MemFile) Length() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int64(len(*f.data))
}

// ReadAt copies min(len(buf), Length-off) bytes starting at off into
// buf and returns the count actually copied — a short read past EOF,
// the same as the read_at/write_at contract this stands in for.
func (f *MemFile) ReadAt(buf []byte, off int64) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0, defs.ErrInval
	}
	if off < 0 || off >= int64(len(*f.data)) {
		return 0, nil
	}
	n := copy(buf, (*f.data)[off:])
	return n, nil
}

// WriteAt writes buf at off, growing the file if necessary.
func (f *MemFile) WriteAt(buf []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, defs.ErrInval
	}
	need := off + int64(len(buf))
	if need > int64(len(*f.data)) {
		grown := make([]byte, need)
		copy(grown, *f.data)
		*f.data = grown
	}
	n := copy((*f.data)[off:], buf)
	return n, nil
}

// Reopen returns a new handle sharing this file's bytes.
func (f *MemFile) Reopen() (File, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, defs.ErrInval
	}
	return &MemFile{mu: f.mu, data: f.data}, nil
}

// Close marks this handle closed. Other handles sharing the same
// backing bytes (from Reopen) are unaffected, matching independent file
// descriptors over one inode.
func (f *MemFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Snapshot returns a copy of the file's current bytes, for test
// assertions.
func (f *MemFile) Snapshot() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]byte, len(*f.data))
	copy(out, *f.data)
	return out
}
