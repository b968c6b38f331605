package vm

import (
	"vmkernel/internal/defs"
	"vmkernel/internal/frame"
)

// Claim binds page to a frame and installs the hardware mapping,
// following the five-step protocol of spec §4.5 exactly. Callers must
// hold page.as's lock; Claim itself takes no lock so that fault handling
// and fork's eager copy (spt.go Copy) can call it as one step of an
// already-locked operation, matching biscuit's convention that
// Vm_t.Pgfault locks once and every inner helper assumes the lock is
// already held (Lockassert_pmap).
func (as *AddressSpace) Claim(p *Page) defs.Err_t {
	if p.frame != nil {
		// Already resident: claiming an already-claimed page is a no-op,
		// not a rebind, a fault handler never reaches here for a page the
		// hardware already reports present, but fork's eager copy path
		// (spt.go Copy) and tests may re-claim a page defensively.
		return 0
	}

	// Step 1: acquire a frame, evicting if necessary. GetFrame panics
	// rather than failing if frames are exhausted and the evictor can't
	// choose a victim (spec §7; see DESIGN.md for the panic-vs-Err_t
	// decision).
	f := as.frames.GetFrame()

	// Step 2: a never-before-resident frame joins the frame table now;
	// Insert is a no-op if it's a recycled, already-present victim frame.
	as.frames.Insert(f)

	// Step 3: bind.
	f.Page = p
	p.frame = f

	// Step 4: install the hardware mapping.
	if !as.pts.SetPage(p.va, f.ID, p.writable) {
		as.rollbackClaim(p, f, true)
		return defs.ENOMEM
	}

	// Step 5: restore contents.
	if err := p.body.swapIn(p, f.KVA); err != 0 {
		as.rollbackClaim(p, f, true)
		return err
	}
	return 0
}

// ClaimVA looks the page up by address and claims it (vm_claim_page).
func (as *AddressSpace) ClaimVA(va uintptr) defs.Err_t {
	p, ok := as.Find(va)
	if !ok {
		return defs.EFAULT
	}
	return as.Claim(p)
}

// rollbackClaim undoes a partial claim (spec §4.5 step 4/5 failure
// paths, §7 "Rollback during claim"): the frame is freed and both
// back-pointers cleared, returning the page to its prior unmapped
// state.
func (as *AddressSpace) rollbackClaim(p *Page, f *frame.Frame, clearMapping bool) {
	if clearMapping {
		as.pts.ClearPage(p.va)
	}
	f.Page = nil
	p.ClearFrame()
	as.frames.FreeFrame(f)
}
