// Package vm implements the supplemental page table, the page-variant
// dispatch (uninit/anon/file), the claim protocol, the fault handler,
// and mmap/munmap (spec §4.3–§4.6). It is grounded on two sources: the
// polymorphic page design and lazy-load/fault/mmap *semantics* come from
// Pintos's vm/vm.c, vm/anon.c and vm/file.c
// (_examples/original_source/pintos); the address-space shape (one
// mutex guarding the supplemental page table, a
// Lock_pmap/Unlock_pmap-style pair of accessors, copy-on-fork, teardown)
// follows biscuit's Vm_t in vm/as.go.
package vm

import (
	"vmkernel/internal/defs"
	"vmkernel/internal/frame"
	"vmkernel/internal/fsfile"
	"vmkernel/internal/hw"
	"vmkernel/internal/swap"
)

// PageType tags a page descriptor's current variant (spec §3: "Page
// type tag ... UNINIT, ANON, FILE").
type PageType int

const (
	Uninit PageType = iota
	Anon
	File
)

func (t PageType) String() string {
	switch t {
	case Uninit:
		return "UNINIT"
	case Anon:
		return "ANON"
	case File:
		return "FILE"
	default:
		return "?"
	}
}

// InitFunc is the user-supplied lazy-load callback invoked on a
// UNINIT page's first fault (spec §4.3.1 step 3): it typically reads
// file bytes into the frame and zero-fills the tail.
type InitFunc func(p *Page, kva []byte, aux any) defs.Err_t

// body is the variant-specific payload plus the three operations the
// spec calls swap_in/swap_out/destroy (spec §4.3: "operations table").
// UNINIT/anonBody/fileBody are peers implementing this interface, not a
// class hierarchy (spec §9: "Avoid deep inheritance, the variants are
// peers").
type body interface {
	pageType() PageType
	swapIn(p *Page, kva []byte) defs.Err_t
	swapOut(p *Page) defs.Err_t
	destroy(p *Page)
}

// Page is one page of a process's address space (spec §3 "Page
// descriptor"). It is created by AllocPageWithInitializer or by stack
// growth, and destroyed when its SPT is torn down or Remove is called.
type Page struct {
	va       uintptr
	writable bool
	as       *AddressSpace
	frame    *frame.Frame
	stack    bool // VM_MARKER_0 equivalent: this page backs a grown stack slot
	body     body
}

// VA returns the page's page-aligned virtual address.
func (p *Page) VA() uintptr { return p.va }

// Writable reports the page's writable flag.
func (p *Page) Writable() bool { return p.writable }

// IsStack reports whether this page was created by stack growth.
func (p *Page) IsStack() bool { return p.stack }

// Frame returns the frame currently bound to this page, or nil.
func (p *Page) Frame() *frame.Frame { return p.frame }

// Type returns the page's current, or, for a still-UNINIT page, its
// eventual, type (spec_full §6 supplement: page_get_type "unwraps" a
// pending page so callers like do_munmap's file-handle walk see its
// eventual type).
func (p *Page) Type() PageType {
	if u, ok := p.body.(*uninitBody); ok {
		return u.eventual
	}
	return p.body.pageType()
}

// PTSpace implements frame.PageRef.
func (p *Page) PTSpace() hw.PTSpace { return p.as.pts }

// ClearFrame implements frame.PageRef: it drops this page's reference to
// its bound frame without touching the frame side of the binding (the
// caller, claim rollback or a variant's swap_out/destroy, is
// responsible for the frame side).
func (p *Page) ClearFrame() { p.frame = nil }

// SwapOut implements frame.PageRef by dispatching to the current
// variant's swap_out.
func (p *Page) SwapOut() defs.Err_t {
	return p.body.swapOut(p)
}

// newUninitPage builds a page whose first fault will promote it to
// target (Anon or File), matching uninit_new in vm/vm.c.
func newUninitPage(as *AddressSpace, va uintptr, writable bool, target PageType, init InitFunc, aux any) *Page {
	return &Page{
		va:       va,
		writable: writable,
		as:       as,
		body:     &uninitBody{eventual: target, init: init, aux: aux},
	}
}

// --- UNINIT -----------------------------------------------------------

// uninitBody is the transient state every page starts in when created
// through AllocPageWithInitializer (spec §4.3.1). It is never the base
// of Anon/File, swapIn replaces p.body outright, completing the
// promotion in place.
type uninitBody struct {
	eventual PageType
	init     InitFunc
	aux      any
}

func (*uninitBody) pageType() PageType { return Uninit }

func (u *uninitBody) swapIn(p *Page, kva []byte) defs.Err_t {
	// Step 1+2: promote in place and run the target initializer.
	switch u.eventual {
	case Anon:
		p.body = &anonBody{slot: swap.NoSlot}
	case File:
		fa, ok := u.aux.(*lazyFileAux)
		if !ok {
			return defs.EINVAL
		}
		p.body = &fileBody{file: fa.file, offset: fa.offset, length: fa.readBytes, writable: p.writable}
	default:
		panic("vm: uninit page has no eventual type")
	}
	// Step 3: the user-supplied init callback, e.g. reading file bytes
	// into the frame and zero-filling the tail.
	if u.init == nil {
		return 0
	}
	return u.init(p, kva, u.aux)
}

func (*uninitBody) swapOut(p *Page) defs.Err_t {
	panic("vm: swap_out on an unclaimed UNINIT page")
}

func (u *uninitBody) destroy(p *Page) {
	// No frame is ever bound to an UNINIT page; only the aux payload
	// needs releasing, and Go's GC does that for us once the page is
	// unreferenced (spec §4.3.1 destroy: "frees any aux payload").
	u.aux = nil
}

// lazyFileAux is the fixed-size payload copied by fork for a pending
// mmap page (spec §4.4: "deep copy the fixed-size lazy_load_aux"),
// matching Pintos's struct lazy_load_aux.
type lazyFileAux struct {
	file      fsfile.File
	offset    int64
	readBytes int
}

func (a *lazyFileAux) clone() *lazyFileAux {
	cp := *a
	return &cp
}
