package vm

import (
	"duskvm/defs"
	"duskvm/vfile"
)

// filePayload is the File variant's metadata: which file, at what
// offset, how many of the page's bytes come from the file versus are
// zero-filled, and which mmap region it belongs to. It's also the aux
// blob handed to lazyLoadFile by an Uninit page declared KindFile.
type filePayload struct {
	file      vfile.File
	offset    int64
	readBytes int
	zeroBytes int
	region    *MmapRegion
}

// lazyLoadFile is the InitFunc recorded by DoMmap for each page of a
// mapping: it installs aux as the page's File payload and performs the
// first load.
func lazyLoadFile(p *Page, aux interface{}) error {
	fp, ok := aux.(filePayload)
	if !ok {
		panic("duskvm/vm: lazyLoadFile aux must be a filePayload")
	}
	p.file = fp
	return p.fileSwapIn(p.frame.Kva)
}

// fileSwapIn (re-)reads a file-backed page's contents into kva: readBytes
// bytes from the file at offset, the remaining zeroBytes bytes zeroed.
// Used both for the page's first load and for re-faulting it after
// eviction — the two are the same operation.
func (p *Page) fileSwapIn(kva []byte) error {
	n, err := p.file.file.ReadAt(kva[:p.file.readBytes], p.file.offset)
	if err != nil {
		return err
	}
	if n != p.file.readBytes {
		return defs.ErrShortIO
	}
	for i := p.file.readBytes; i < len(kva); i++ {
		kva[i] = 0
	}
	return nil
}

// fileSwapOut writes the page back to its file if the MMU reports it
// dirty, then clears the dirty bit; a clean page is simply dropped,
// since its contents are already on the file. Called with p.mu held and
// p.frame non-nil.
func (p *Page) fileSwapOut() error {
	if !p.owner.Pmap.IsDirty(p.va) {
		return nil
	}
	n, err := p.file.file.WriteAt(p.frame.Kva[:p.file.readBytes], p.file.offset)
	if err != nil {
		return err
	}
	if n != p.file.readBytes {
		return defs.ErrShortIO
	}
	p.owner.Pmap.SetDirty(p.va, false)
	return nil
}

// MmapRegion records one DoMmap call's extent and backing file, so
// DoMunmap (and address-space teardown) can find every page it covers
// and close the handle once they're all gone.
type MmapRegion struct {
	startVA    uintptr
	pageCount  int
	file       vfile.File
	baseOffset int64
}
