// Package hw abstracts the hardware page table. The spec's fault handler
// and clock evictor both need to read/write PTE present, accessed, dirty
// and writable bits (spec §6 "Hardware PTE ops": pml4_get_page,
// pml4_set_page, pml4_clear_page, pml4_is_accessed, pml4_set_accessed,
// pml4_is_dirty, pml4_set_dirty). The real page-table walker is an
// explicit Non-goal (spec §1/§8): biscuit hides the same concern behind
// pmap_walk/Pmap_lookup helpers over its own Pmap_t ([512]Pa_t) rather
// than exposing raw CR3 manipulation to vm/as.go, so PTSpace plays the
// same role here, a narrow interface the vm package programs against,
// with FlatPTSpace standing in for real hardware since this module runs
// as ordinary Go code rather than a freestanding kernel image.
package hw

import "sync"

// Perm is the small set of permission/status bits the vm subsystem reads
// or writes on a PTE.
type Perm uint

const (
	PermPresent  Perm = 1 << iota // PTE_P
	PermWritable                  // PTE_W
	PermUser                      // PTE_U
	PermAccessed                  // PTE_A
	PermDirty                     // PTE_D
)

// entry is one simulated page-table entry: the bound frame's kernel
// address plus status bits.
type entry struct {
	kva   uintptr
	perm  Perm
	valid bool
}

// FlatPTSpace is a software stand-in for one process's page table
// (biscuit's per-process Pmap_t). It implements PTSpace with a map
// keyed by page-aligned virtual address, guarded by a mutex so the
// clock evictor (which inspects PTEs belonging to frames it does not
// own the SPT lock for) never races a fault handler mutating the same
// table.
type FlatPTSpace struct {
	mu      sync.Mutex
	entries map[uintptr]*entry
}

// NewFlatPTSpace returns an empty page table.
func NewFlatPTSpace() *FlatPTSpace {
	return &FlatPTSpace{entries: make(map[uintptr]*entry)}
}

func (t *FlatPTSpace) get(va uintptr) *entry {
	e, ok := t.entries[va]
	if !ok {
		e = &entry{}
		t.entries[va] = e
	}
	return e
}

// SetPage installs a present mapping from va to kva with the given
// permission bits (PermPresent is implied). Mirrors pml4_set_page.
func (t *FlatPTSpace) SetPage(va, kva uintptr, writable bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.get(va)
	e.kva = kva
	e.valid = true
	e.perm = PermPresent | PermUser
	if writable {
		e.perm |= PermWritable
	}
	return true
}

// ClearPage removes any mapping for va. Mirrors pml4_clear_page.
func (t *FlatPTSpace) ClearPage(va uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.get(va)
	*e = entry{}
}

// GetPage reports the frame kva mapped at va, if present. Mirrors
// pml4_get_page.
func (t *FlatPTSpace) GetPage(va uintptr) (kva uintptr, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.get(va)
	return e.kva, e.valid && e.perm&PermPresent != 0
}

// IsPresent reports whether va has a present mapping.
func (t *FlatPTSpace) IsPresent(va uintptr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(va).perm&PermPresent != 0
}

// IsWritable reports whether va's mapping permits writes.
func (t *FlatPTSpace) IsWritable(va uintptr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(va).perm&PermWritable != 0
}

// IsAccessed reports the PTE's accessed bit. Mirrors pml4_is_accessed.
func (t *FlatPTSpace) IsAccessed(va uintptr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(va).perm&PermAccessed != 0
}

// SetAccessed sets or clears the PTE's accessed bit. Mirrors
// pml4_set_accessed.
func (t *FlatPTSpace) SetAccessed(va uintptr, v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.get(va)
	if v {
		e.perm |= PermAccessed
	} else {
		e.perm &^= PermAccessed
	}
}

// IsDirty reports the PTE's dirty bit. Mirrors pml4_is_dirty.
func (t *FlatPTSpace) IsDirty(va uintptr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(va).perm&PermDirty != 0
}

// SetDirty sets or clears the PTE's dirty bit. Mirrors pml4_set_dirty.
func (t *FlatPTSpace) SetDirty(va uintptr, v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.get(va)
	if v {
		e.perm |= PermDirty
	} else {
		e.perm &^= PermDirty
	}
}

// MarkWritten is a convenience used by simulated user writes in tests:
// it sets both the accessed and dirty bits, as real hardware does on a
// write access.
func (t *FlatPTSpace) MarkWritten(va uintptr) {
	t.SetAccessed(va, true)
	t.SetDirty(va, true)
}

// MarkRead is the read-access equivalent of MarkWritten: hardware sets
// only the accessed bit on a load.
func (t *FlatPTSpace) MarkRead(va uintptr) {
	t.SetAccessed(va, true)
}

// PTSpace is the interface the vm package programs against; FlatPTSpace
// is its only implementation in this module, but keeping the interface
// narrow is what lets internal/vm run free of any particular hardware
// backing, matching the spec's framing of PTE ops as an external
// collaborator (§6).
type PTSpace interface {
	SetPage(va, kva uintptr, writable bool) bool
	ClearPage(va uintptr)
	GetPage(va uintptr) (kva uintptr, ok bool)
	IsPresent(va uintptr) bool
	IsWritable(va uintptr) bool
	IsAccessed(va uintptr) bool
	SetAccessed(va uintptr, v bool)
	IsDirty(va uintptr) bool
	SetDirty(va uintptr, v bool)
}
