package vm

import (
	"vmkernel/internal/defs"
	"vmkernel/internal/fsfile"
)

// fileBody is the file-backed page variant (spec §4.3.3), grounded on
// Pintos's vm/file.c: a page maps exactly one (file, offset, length)
// region; length may be shorter than a full page, with the remainder
// zero-filled on load.
type fileBody struct {
	file     fsfile.File
	offset   int64
	length   int
	writable bool
}

func (*fileBody) pageType() PageType { return File }

// swapIn reads length bytes from (file, offset) into the frame and
// zero-fills the remainder of the page (spec §4.3.3).
func (f *fileBody) swapIn(p *Page, kva []byte) defs.Err_t {
	n, err := fsfile.ReadAt(f.file, kva[:f.length], f.offset)
	if err != nil || n != f.length {
		return defs.EIO
	}
	for i := f.length; i < len(kva); i++ {
		kva[i] = 0
	}
	return 0
}

// swapOut writes the page back to its file region only if dirty, then
// tears down the hardware mapping (spec §4.3.3).
func (f *fileBody) swapOut(p *Page) defs.Err_t {
	if p.as.pts.IsDirty(p.va) {
		if _, err := fsfile.WriteAt(f.file, p.frame.KVA[:f.length], f.offset); err != nil {
			return defs.EIO
		}
	}
	p.as.pts.ClearPage(p.va)
	p.frame = nil
	return 0
}

// destroy flushes a dirty bound frame to the file, clears the dirty bit
// and the hardware mapping, then frees the frame (spec §4.3.3, this is
// the "Dirty writeback" law from spec §8 made concrete).
func (f *fileBody) destroy(p *Page) {
	if p.frame == nil {
		return
	}
	if p.as.pts.IsDirty(p.va) {
		fsfile.WriteAt(f.file, p.frame.KVA[:f.length], f.offset)
		p.as.pts.SetDirty(p.va, false)
	}
	p.as.pts.ClearPage(p.va)
	fr := p.frame
	p.frame = nil
	fr.Page = nil
	p.as.frames.FreeFrame(fr)
}
