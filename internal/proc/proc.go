// Package proc models just enough of a process/thread to drive the vm
// subsystem end to end: one address space per process, one saved user
// rsp per thread, and a fork operation that exercises AddressSpace.Copy
// (spec §4.4, §6). biscuit's own proc package carries a great deal more:
// scheduling, file descriptor tables, signal state, none of which
// the vm subsystem reads; what's reconstructed here is only the shape
// vm/as.go actually touches (P_pmap, per-thread saved rsp, Tid_t),
// matching the fields biscuit's Proc_t and Tnote_t expose to Vm_t.
package proc

import (
	"sync/atomic"

	"vmkernel/internal/defs"
	"vmkernel/internal/frame"
	"vmkernel/internal/hw"
	"vmkernel/internal/swap"
	"vmkernel/internal/vm"
)

var nextTid int64

func newTid() defs.Tid_t {
	return defs.Tid_t(atomic.AddInt64(&nextTid, 1))
}

// Process owns exactly one AddressSpace (spec §3: "one supplemental page
// table per process") and the shared frame/swap tables its threads
// fault against.
type Process struct {
	AS      *vm.AddressSpace
	Threads map[defs.Tid_t]*Thread
}

// NewProcess builds a process with a fresh, empty address space backed
// by the given shared frame table and swap table (spec §5: both tables
// are process-global, shared across every process in the kernel, not
// duplicated per-process).
func NewProcess(pts hw.PTSpace, frames *frame.Table, swapTable *swap.Table, stackTop uintptr) *Process {
	return &Process{
		AS:      vm.NewAddressSpace(pts, frames, swapTable, stackTop),
		Threads: make(map[defs.Tid_t]*Thread),
	}
}

// Spawn creates a new thread belonging to p (spec §6: "per-thread saved
// user rsp" is read by the fault handler for a kernel-mode fault).
func (p *Process) Spawn() *Thread {
	t := &Thread{Tid: newTid(), proc: p}
	p.Threads[t.Tid] = t
	return t
}

// Fork duplicates p into a new process with an independent address
// space (spec §4.4, §8 "Fork independence" law): child pages are
// byte-for-byte copies or independently re-pending UNINIT entries, never
// shared with the parent.
func (p *Process) Fork(pts hw.PTSpace, frames *frame.Table, swapTable *swap.Table) (*Process, defs.Err_t) {
	child := NewProcess(pts, frames, swapTable, p.AS.StackTop)
	if err := p.AS.Copy(child.AS); err != 0 {
		return nil, err
	}
	return child, 0
}

// Thread is one schedulable control flow within a Process. SavedRSP
// mirrors the live value a kernel-mode page fault must consult instead
// of the (meaningless, privileged) trap-frame rsp (spec §4.6 step 2).
type Thread struct {
	Tid      defs.Tid_t
	SavedRSP uintptr

	proc *Process
}

// Process returns the thread's owning process.
func (t *Thread) Process() *Process { return t.proc }

// Fault runs the full fault-handling path for an access at addr from
// this thread, syncing the thread's saved rsp onto the address space
// first so a kernel-mode fault sees the same value a user-mode trap
// frame would have supplied (spec §4.6: "determine the relevant rsp
// based on whether the fault originated in user or kernel mode").
func (t *Thread) Fault(addr uintptr, user, write, notPresent bool, trapRSP uintptr) bool {
	t.proc.AS.SavedRSP = t.SavedRSP
	return t.proc.AS.TryHandleFault(vm.Fault{
		Addr:       addr,
		User:       user,
		Write:      write,
		NotPresent: notPresent,
		TrapRSP:    trapRSP,
	})
}
