package vm

import (
	"sync"

	"vmkernel/internal/defs"
	"vmkernel/internal/frame"
	"vmkernel/internal/fsfile"
	"vmkernel/internal/hw"
	"vmkernel/internal/swap"
)

// AddressSpace is a process's address space: the supplemental page
// table plus the hardware page table it backs, with one mutex guarding
// the supplemental page table, in the shape of biscuit's Vm_t
// (vm/as.go). The hardware page table is not covered by that mutex: the
// clock evictor reads and clears its bits holding only frame_lock, so
// hw.PTSpace implementations carry their own lock.
// Pintos instead stores the SPT directly on struct thread; biscuit's
// shape is used here because it is the teacher and because bundling the
// SPT with its own mutex (rather than relying on a single global thread
// lock) is what lets multiple address spaces fault concurrently.
type AddressSpace struct {
	mu  sync.Mutex
	spt map[uintptr]*Page

	pts    hw.PTSpace
	frames *frame.Table
	swap   *swap.Table

	// StackTop and SavedRSP stand in for thread/process fields the fault
	// handler reads (spec §6: "per-thread saved user rsp"). Pintos keeps
	// these on struct thread; this module keeps them on the address
	// space, which all of a process's threads share, and proc.Thread.Fault
	// copies the faulting thread's saved rsp into SavedRSP before each
	// fault.
	StackTop uintptr
	SavedRSP uintptr
}

// NewAddressSpace constructs an empty address space (spt_init).
func NewAddressSpace(pts hw.PTSpace, frames *frame.Table, swapTable *swap.Table, stackTop uintptr) *AddressSpace {
	return &AddressSpace{
		spt:      make(map[uintptr]*Page),
		pts:      pts,
		frames:   frames,
		swap:     swapTable,
		StackTop: stackTop,
	}
}

// Lock acquires the address-space mutex (Lock_pmap).
func (as *AddressSpace) Lock() { as.mu.Lock() }

// Unlock releases the address-space mutex (Unlock_pmap).
func (as *AddressSpace) Unlock() { as.mu.Unlock() }

// Find looks up the page covering va, rounding down to the page
// boundary first (spt_find_page).
func (as *AddressSpace) Find(va uintptr) (*Page, bool) {
	p, ok := as.spt[defs.PageRound(va)]
	return p, ok
}

// Insert adds page to the SPT, failing if an entry already exists for
// its VA (spt_insert_page).
func (as *AddressSpace) Insert(p *Page) bool {
	if _, exists := as.spt[p.va]; exists {
		return false
	}
	as.spt[p.va] = p
	return true
}

// Remove deletes page's SPT entry and destroys it (spt_remove_page).
func (as *AddressSpace) Remove(p *Page) {
	delete(as.spt, p.va)
	p.body.destroy(p)
}

// RemoveVA is a convenience wrapping Find+Remove.
func (as *AddressSpace) RemoveVA(va uintptr) bool {
	p, ok := as.Find(va)
	if !ok {
		return false
	}
	as.Remove(p)
	return true
}

// Kill destroys every page and empties the SPT (supplemental_page_table_kill).
// The hardware page table itself is torn down separately by the caller,
// matching the spec's note that Uvmfree discards the pmap after this
// step completes.
func (as *AddressSpace) Kill() {
	as.Lock()
	defer as.Unlock()
	for va, p := range as.spt {
		p.body.destroy(p)
		delete(as.spt, va)
	}
}

// AllocPageWithInitializer creates a pending UNINIT page at va that will
// be promoted to target on first fault, running init with aux at that
// point (spec: alloc_page_with_initializer / vm_alloc_page_with_initializer).
func (as *AddressSpace) AllocPageWithInitializer(target PageType, va uintptr, writable bool, init InitFunc, aux any) (*Page, defs.Err_t) {
	va = defs.PageRound(va)
	if _, exists := as.Find(va); exists {
		return nil, defs.EEXIST
	}
	p := newUninitPage(as, va, writable, target, init, aux)
	if !as.Insert(p) {
		return nil, defs.EEXIST
	}
	return p, 0
}

// AllocPage is AllocPageWithInitializer with no lazy-load callback,
// matching vm_alloc_page, used for plain anonymous pages such as a
// grown stack slot.
func (as *AddressSpace) AllocPage(target PageType, va uintptr, writable bool) (*Page, defs.Err_t) {
	return as.AllocPageWithInitializer(target, va, writable, nil, nil)
}

// DeallocPage destroys page outside of the SPT bookkeeping path (spec:
// dealloc_page / vm_dealloc_page). Callers that also need the SPT entry
// removed should use Remove instead.
func DeallocPage(p *Page) {
	p.body.destroy(p)
}

// Copy realizes fork's address-space duplication (spec §4.4,
// supplemental_page_table_copy):
//   - file-backed pages, materialized or still UNINIT-pending-FILE, are
//     skipped entirely, the child does not inherit mmaps (spec §9 open
//     question, decided explicitly; see DESIGN.md).
//   - UNINIT (eventually ANON) pages get a deep-copied aux and are
//     recreated pending in dst.
//   - materialized ANON pages are eagerly, byte-for-byte copied into a
//     freshly claimed frame in dst, no COW, no sharing.
func (src *AddressSpace) Copy(dst *AddressSpace) defs.Err_t {
	src.Lock()
	defer src.Unlock()
	for _, p := range src.spt {
		if p.Type() == File {
			continue
		}
		if u, ok := p.body.(*uninitBody); ok {
			var aux any
			if fa, ok := u.aux.(*lazyFileAux); ok {
				aux = fa.clone()
			}
			if _, err := dst.AllocPageWithInitializer(u.eventual, p.va, p.writable, u.init, aux); err != 0 {
				return err
			}
			continue
		}
		// Materialized ANON: bring the source back into residence if it is
		// currently swapped out, so there is something to copy, Pintos's
		// supplemental_page_table_copy assumes the source frame is already
		// resident and would otherwise dereference a null frame.
		if p.frame == nil {
			if err := src.Claim(p); err != 0 {
				return err
			}
		}
		np, err := dst.AllocPage(Anon, p.va, p.writable)
		if err != 0 {
			return err
		}
		if err := dst.Claim(np); err != 0 {
			return err
		}
		copy(np.frame.KVA, p.frame.KVA)
	}
	return 0
}
