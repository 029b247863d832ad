package vm

import (
	"duskvm/defs"
	"duskvm/mem"
	"duskvm/util"
	"duskvm/vfile"
)

// DoMmap establishes a file-backed mapping of length bytes of file
// starting at offset, at the page-aligned virtual address addr: one
// Uninit/File page per covered page, each lazily loaded by lazyLoadFile
// on first fault. Fails if addr isn't page-aligned, length isn't
// positive, the whole [addr, addr+length) range isn't within user
// space, or any covered page already has an SPT entry. The file is
// reopened so the mapping owns an independent handle.
func (as *AddressSpace) DoMmap(addr uintptr, length int, writable bool, file vfile.File, offset int64) (uintptr, error) {
	if !pageAligned(addr) || length <= 0 {
		return 0, defs.ErrInval
	}
	if !as.K.Cfg.inUserRange(addr) || !as.K.Cfg.inUserRange(addr+uintptr(length)-1) {
		return 0, defs.ErrInval
	}
	pageCount := (length + mem.PGSIZE - 1) / mem.PGSIZE
	for i := 0; i < pageCount; i++ {
		va := addr + uintptr(i*mem.PGSIZE)
		if _, exists := as.SPT.Find(va); exists {
			return 0, defs.ErrInval
		}
	}

	reopened, err := file.Reopen()
	if err != nil {
		return 0, err
	}
	region := &MmapRegion{startVA: addr, pageCount: pageCount, file: reopened, baseOffset: offset}

	as.mu.Lock()
	as.MmapList = append(as.MmapList, region)
	as.mu.Unlock()

	fileLen := reopened.Length()
	for i := 0; i < pageCount; i++ {
		va := addr + uintptr(i*mem.PGSIZE)
		curOff := offset + int64(i*mem.PGSIZE)

		var readBytes int
		if curOff < fileLen {
			readBytes = int(util.Min(int64(mem.PGSIZE), fileLen-curOff))
		}
		fp := filePayload{
			file:      reopened,
			offset:    curOff,
			readBytes: readBytes,
			zeroBytes: mem.PGSIZE - readBytes,
			region:    region,
		}
		if err := as.AllocPageWithInitializer(KindFile, va, writable, lazyLoadFile, fp); err != nil {
			as.DoMunmap(addr)
			return 0, err
		}
	}
	return addr, nil
}

// DoMunmap tears down the mapping starting at addr: every page it covers
// is removed from the SPT (destroying it — writing back if dirty), then
// the mapping's file handle is closed. A no-op if addr doesn't start a
// known mapping.
func (as *AddressSpace) DoMunmap(addr uintptr) {
	as.mu.Lock()
	idx := -1
	for i, r := range as.MmapList {
		if r.startVA == addr {
			idx = i
			break
		}
	}
	if idx == -1 {
		as.mu.Unlock()
		return
	}
	region := as.MmapList[idx]
	as.MmapList = append(as.MmapList[:idx], as.MmapList[idx+1:]...)
	as.mu.Unlock()

	for i := 0; i < region.pageCount; i++ {
		va := region.startVA + uintptr(i*mem.PGSIZE)
		if p, ok := as.SPT.Find(va); ok {
			as.SPT.Remove(p)
		}
	}
	_ = region.file.Close()
}
