package vm

import (
	"vmkernel/internal/defs"
	"vmkernel/internal/fsfile"
	"vmkernel/internal/util"
)

// loadFilePage is the InitFunc every DoMmap page uses (spec §4.3.4 step
// 3, lazy_load_segment). By the time this runs, uninitBody.swapIn has
// already promoted p.body to a *fileBody; delegating to that variant's
// own swapIn means the first load and a later reload-after-eviction run
// the identical code path, rather than duplicating the read/zero-fill
// logic here.
func loadFilePage(p *Page, kva []byte, aux any) defs.Err_t {
	fb, ok := p.body.(*fileBody)
	if !ok {
		return defs.EINVAL
	}
	return fb.swapIn(p, kva)
}

// pageFileHandle returns the file handle backing p, whether p is already
// a materialized FILE page or still UNINIT-pending-FILE, or nil if p is
// not file-backed at all. do_munmap's contiguous-run test (spec §4.3.4
// step 2) needs this before a page has necessarily taken its first
// fault.
func pageFileHandle(p *Page) fsfile.File {
	switch b := p.body.(type) {
	case *fileBody:
		return b.file
	case *uninitBody:
		if fa, ok := b.aux.(*lazyFileAux); ok {
			return fa.file
		}
	}
	return nil
}

// DoMmap maps length bytes of file starting at offset into as at addr,
// spec §4.3.4 / Pintos's do_mmap: one UNINIT-pending-FILE page per page
// of the region, nothing read until first fault. addr must already be
// page-aligned and non-zero (the caller, out of scope here, is
// responsible for picking an unused region, spec §1 leaves region
// selection to the existing vmregion search).
func DoMmap(as *AddressSpace, addr uintptr, length int, writable bool, file fsfile.File, offset int64) (uintptr, defs.Err_t) {
	if addr == 0 || addr != defs.PageRound(addr) || length <= 0 {
		return 0, defs.EINVAL
	}

	rf, err := file.Reopen()
	if err != nil {
		return 0, defs.EIO
	}

	as.Lock()
	defer as.Unlock()

	numPages := util.DivRoundup(length, defs.PGSIZE)
	va := addr
	off := offset
	remaining := length
	for i := 0; i < numPages; i++ {
		readBytes := util.Min(remaining, defs.PGSIZE)
		aux := &lazyFileAux{file: rf, offset: off, readBytes: readBytes}
		if _, allocErr := as.AllocPageWithInitializer(File, va, writable, loadFilePage, aux); allocErr != 0 {
			// munmapLocked already closes rf if it tore down any page this
			// call had already inserted; only close it ourselves when
			// nothing was torn down (the very first page failed), or the
			// handle would be closed twice.
			if !as.munmapLocked(addr) {
				rf.Close()
			}
			return 0, allocErr
		}
		va += uintptr(defs.PGSIZE)
		off += int64(readBytes)
		remaining -= readBytes
	}
	return addr, 0
}

// DoMunmap tears down the mmap region starting at addr, spec §4.3.4 step
// 2 / do_munmap: walk forward from addr removing pages that are (a)
// still file-backed by the same reopened handle the mapping started
// with and (b) contiguous, stopping at the first page that breaks
// either condition. Each removed page's destroy flushes it if dirty
// (spec §8 "Dirty writeback" law). The reopened handle is closed once,
// after the whole run has been removed.
func DoMunmap(as *AddressSpace, addr uintptr) {
	as.Lock()
	defer as.Unlock()
	as.munmapLocked(addr)
}

// munmapLocked tears down the run and reports whether it found and
// closed a handle, so DoMmap's rollback path knows whether it still
// needs to close the handle itself (see DoMmap).
func (as *AddressSpace) munmapLocked(addr uintptr) bool {
	va := defs.PageRound(addr)
	first, ok := as.Find(va)
	if !ok {
		return false
	}
	handle := pageFileHandle(first)
	if handle == nil {
		return false
	}

	for {
		p, ok := as.Find(va)
		if !ok {
			break
		}
		if p.Type() != File || pageFileHandle(p) != handle {
			break
		}
		as.Remove(p)
		va += uintptr(defs.PGSIZE)
	}
	handle.Close()
	return true
}
