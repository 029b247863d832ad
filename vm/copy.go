package vm

import "duskvm/swap"

// Copy replicates every page of as into dst:
//   - Uninit pages are re-declared with a deep copy of their aux (so a
//     reopened file handle, if any, is independent of the source's).
//   - Anon pages are freshly allocated, then — if the source has ever
//     been touched — claimed and filled with the source's bytes, read
//     either from its resident frame or straight from its swap slot
//     (via Peek, which doesn't disturb the source's own residency).
//   - File pages are re-declared exactly as DoMmap would declare one,
//     then byte-copied if the source happens to be resident.
func (as *AddressSpace) Copy(dst *AddressSpace) error {
	for _, p := range as.SPT.All() {
		switch p.Kind() {
		case KindUninit:
			if err := as.copyUninit(dst, p); err != nil {
				return err
			}
		case KindAnon:
			if err := as.copyAnon(dst, p); err != nil {
				return err
			}
		case KindFile:
			if err := as.copyFile(dst, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (as *AddressSpace) copyUninit(dst *AddressSpace, p *Page) error {
	p.mu.Lock()
	va, writable, uninitType, init := p.va, p.writable, p.uninitType, p.uninitInit
	aux := p.uninitAux
	p.mu.Unlock()

	auxCopy, err := deepCopyAux(aux)
	if err != nil {
		return err
	}
	return dst.AllocPageWithInitializer(uninitType, va, writable, init, auxCopy)
}

func (as *AddressSpace) copyAnon(dst *AddressSpace, p *Page) error {
	p.mu.Lock()
	va, writable := p.va, p.writable
	hasData := p.frame != nil || p.swapIdx != swap.NoSlot
	p.mu.Unlock()

	if err := dst.AllocPage(KindAnon, va, writable); err != nil {
		return err
	}
	if !hasData {
		return nil
	}
	dstPage, _ := dst.SPT.Find(va)
	if err := dst.Claim(dstPage); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frame != nil {
		copy(dstPage.Frame().Kva, p.frame.Kva)
		return nil
	}
	return as.K.Swap.Peek(p.swapIdx, dstPage.Frame().Kva)
}

func (as *AddressSpace) copyFile(dst *AddressSpace, p *Page) error {
	p.mu.Lock()
	va, writable, fp := p.va, p.writable, p.file
	resident := p.frame != nil
	var srcKva []byte
	if resident {
		srcKva = p.frame.Kva
	}
	p.mu.Unlock()

	fpCopy := fp
	if reopened, err := fp.file.Reopen(); err == nil {
		fpCopy.file = reopened
	}
	if err := dst.AllocPageWithInitializer(KindFile, va, writable, lazyLoadFile, fpCopy); err != nil {
		return err
	}
	if !resident {
		return nil
	}
	dstPage, _ := dst.SPT.Find(va)
	if err := dst.Claim(dstPage); err != nil {
		return err
	}
	copy(dstPage.Frame().Kva, srcKva)
	return nil
}

// deepCopyAux duplicates an Uninit page's opaque aux blob. The only aux
// shape duskvm ever constructs that owns a resource is filePayload (its
// file handle); anything else — including nil, for e.g. a bare stack
// marker — is safe to copy by value.
func deepCopyAux(aux interface{}) (interface{}, error) {
	fp, ok := aux.(filePayload)
	if !ok {
		return aux, nil
	}
	reopened, err := fp.file.Reopen()
	if err != nil {
		return nil, err
	}
	fp.file = reopened
	return fp, nil
}
