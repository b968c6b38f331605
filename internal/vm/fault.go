package vm

import "vmkernel/internal/defs"

// Fault describes one page-fault trap (spec §4.6 inputs): the faulting
// address, whether it came from user mode, whether it was a write, and
// whether the fault was "not present" (as opposed to a protection
// violation). The CPU trap-frame's rsp is passed separately since it is
// only meaningful when User is true.
type Fault struct {
	Addr       uintptr
	User       bool
	Write      bool
	NotPresent bool
	TrapRSP    uintptr // valid iff User
}

// ErrUnsupportedWP is returned (conceptually; see TryHandleFault, which
// returns a bool per the spec) for a present-but-protection-violation
// fault: write-protect/COW handling is unimplemented (spec §9:
// "vm_handle_wp is declared but unimplemented in the source; treat
// write-protect faults as fatal unless extending the design to support
// COW"). Exported so a caller that wants to distinguish "unsupported"
// from "genuinely invalid" can call HandleFault directly instead of
// TryHandleFault.
var ErrUnsupportedWP = defs.ENOTSUP

// kernelSpaceFloor is the lowest address considered kernel space for
// this module's address layout; addresses at or above it fail fast
// (spec §4.6: "NULL or kernel-space address -> fail").
const kernelSpaceFloor = uintptr(1) << 47

// TryHandleFault classifies and resolves a page fault (spec §4.6). It
// returns true on success; the trap dispatcher (out of scope here, per
// spec §1) is expected to translate a false return into process
// termination with exit status -1 (spec §7).
func (as *AddressSpace) TryHandleFault(f Fault) bool {
	return as.HandleFault(f) == 0
}

// HandleFault is TryHandleFault's defs.Err_t-returning counterpart, for
// callers that want to distinguish the failure reason (e.g. tests
// asserting ErrUnsupportedWP specifically).
func (as *AddressSpace) HandleFault(f Fault) defs.Err_t {
	if f.Addr == 0 || f.Addr >= kernelSpaceFloor {
		return defs.EFAULT
	}

	as.Lock()
	defer as.Unlock()

	if !f.NotPresent {
		// Present but protection violation: write-protect/COW is
		// unimplemented upstream and stays unimplemented here (spec §9).
		return ErrUnsupportedWP
	}

	rsp := f.TrapRSP
	if !f.User {
		rsp = as.SavedRSP
	}

	if as.isStackGrowthAccess(f.Addr, rsp) {
		as.growStack(f.Addr)
	}

	page, ok := as.Find(f.Addr)
	if !ok {
		return defs.EFAULT
	}
	if f.Write && !page.writable {
		return defs.EFAULT
	}
	return as.Claim(page)
}

// isStackGrowthAccess implements the stack-growth predicate verbatim
// from Pintos's vm_try_handle_fault (spec §4.6 step 2, §9 open
// question): an access within the 1 MiB window below StackTop that is
// either exactly one PUSH below rsp, or anywhere between rsp and
// StackTop inclusive. Spec §9 flags that the second disjunct can
// over-grow when the fault address is already inside the live stack;
// this module keeps the original predicate rather than narrowing it,
// per the spec's instruction to confirm intent against test
// expectations rather than silently redesign it (see DESIGN.md).
func (as *AddressSpace) isStackGrowthAccess(addr, rsp uintptr) bool {
	lo := as.StackTop - defs.StackMaxSize
	if addr < lo || addr > as.StackTop {
		return false
	}
	if rsp >= 8 && rsp-8 == addr {
		return true
	}
	return rsp >= lo && rsp <= addr
}

// growStack allocates a new anonymous, stack-marked page at the
// rounded-down page containing addr (spec §4.6 step 2, vm_stack_growth).
// A page already present at that address (e.g. a racing fault from
// another thread) is not an error.
func (as *AddressSpace) growStack(addr uintptr) {
	va := defs.PageRound(addr)
	if _, exists := as.Find(va); exists {
		return
	}
	p, err := as.AllocPage(Anon, va, true)
	if err != 0 {
		return
	}
	p.stack = true
}
