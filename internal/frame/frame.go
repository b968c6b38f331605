// Package frame implements the frame pool, the global frame table, and
// the clock (second-chance) eviction policy (spec §4.1, §4.2). It is
// grounded on two teacher shapes: biscuit's mem.Physmem_t, which embeds
// a single sync.Mutex guarding one global free-list-backed allocator
// (mem/mem.go), and biscuit's fs.BlkList_t (fs/blk.go), which wraps
// container/list for an ordered, iterator-walkable collection, the
// frame table's insertion order plus persistent clock cursor is exactly
// that shape applied to resident frames instead of cached disk blocks.
package frame

import (
	"container/list"
	"sync"
	"sync/atomic"

	"vmkernel/internal/defs"
	"vmkernel/internal/hw"
)

// PageRef is the narrow view the frame table needs of whatever page
// descriptor is bound to a frame: its virtual address (to read PTE bits
// through the owning address space's PTSpace) and a way to run its
// variant-specific swap_out. internal/vm's *Page satisfies this without
// frame importing vm, avoiding a cycle between the two packages that
// both the claim protocol (vm depends on frame) and the evictor (frame
// must call back into a page's swap_out) would otherwise create.
type PageRef interface {
	VA() uintptr
	PTSpace() hw.PTSpace
	SwapOut() defs.Err_t
	ClearFrame()
}

// Frame represents one physical, kernel-resident user page (spec §3).
// KVA is the frame's byte storage (standing in for a kernel virtual
// address in this non-freestanding build); ID is an opaque, unique
// identity a PTSpace can record in place of a real kva, since this
// module has no physical-to-virtual mapping to perform.
type Frame struct {
	KVA     []byte
	ID      uintptr
	Page    PageRef
	InTable bool

	elem *list.Element // valid iff InTable
}

var nextFrameID uintptr

func newFrameID() uintptr {
	return atomic.AddUintptr(&nextFrameID, 1)
}

// Pool is the user memory pool frames are drawn from (spec §4.1:
// "Acquire/release physical frames from the user memory pool"),
// standing in for biscuit's Physmem_t / Pintos's palloc_get_page(PAL_USER).
type Pool struct {
	mu        sync.Mutex
	capacity  int
	allocated int
}

// NewPool creates a pool able to hand out capacity frames before
// reporting exhaustion.
func NewPool(capacity int) *Pool {
	return &Pool{capacity: capacity}
}

// alloc reserves one page-sized slot from the pool's capacity and
// returns a freshly zeroed frame, or false if the pool is exhausted.
func (p *Pool) alloc() (*Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.allocated >= p.capacity {
		return nil, false
	}
	p.allocated++
	return &Frame{KVA: make([]byte, defs.PGSIZE), ID: newFrameID()}, true
}

// release returns one unit of capacity to the pool. Precondition: the
// frame being released has already been detached from the frame table
// and from any page (mirrors palloc_free_page).
func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.allocated == 0 {
		panic("frame: pool underflow")
	}
	p.allocated--
}

// Available reports the number of frames the pool can still hand out
// without eviction.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity - p.allocated
}

// Table is the process-global frame table: an insertion-ordered
// sequence of resident frames plus a clock-sweep cursor, guarded by one
// mutex (spec §5: frame_lock, "Held during insert on claim, during
// list remove in free_frame, and during the clock sweep").
type Table struct {
	pool *Pool

	mu     sync.Mutex
	frames *list.List
	cursor *list.Element
}

// NewTable builds a frame table drawing from pool.
func NewTable(pool *Pool) *Table {
	return &Table{pool: pool, frames: list.New()}
}

// GetFrame returns a frame backed by a fresh, zeroed kernel page (spec
// §4.1). If the pool is exhausted it runs the clock evictor; frame
// exhaustion with the evictor unable to choose a victim is fatal (spec
// §7), exactly as swap-disk exhaustion is fatal in anonBody.swapOut, so
// GetFrame panics rather than returning ok=false, matching the
// PANIC("todo") / PANIC("swap disk is full") symmetry in
// original_source/pintos's vm.c and anon.c (see DESIGN.md).
func (t *Table) GetFrame() *Frame {
	if f, ok := t.pool.alloc(); ok {
		return f
	}
	return t.evict()
}

// Insert adds a newly claimed frame to the frame table under frame_lock,
// marking it present so a rollback cannot double-insert it (spec §4.1:
// "the in_table flag prevents double-insertion across a rollback").
func (t *Table) Insert(f *Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f.InTable {
		return
	}
	f.elem = t.frames.PushBack(f)
	f.InTable = true
	if t.cursor == nil {
		t.cursor = f.elem
	}
}

// FreeFrame releases both the frame's descriptor and its backing page,
// removing it from the frame table if present. Precondition: f.Page ==
// nil (spec §4.1), the caller must have already broken the binding.
func (t *Table) FreeFrame(f *Frame) {
	if f.Page != nil {
		panic("frame: FreeFrame with a bound page")
	}
	t.mu.Lock()
	if f.InTable {
		t.removeLocked(f)
	}
	t.mu.Unlock()
	t.pool.release()
}

func (t *Table) removeLocked(f *Frame) {
	if t.cursor == f.elem {
		t.cursor = t.successorLocked(f.elem)
	}
	t.frames.Remove(f.elem)
	f.elem = nil
	f.InTable = false
}

func (t *Table) successorLocked(e *list.Element) *list.Element {
	n := e.Next()
	if n == nil {
		n = t.frames.Front()
	}
	if n == e {
		return nil
	}
	return n
}

// evict runs the clock (second-chance) policy under frame_lock (spec
// §4.2). It returns the victim frame, still present in the frame table,
// already unbound from its prior page, ready for the caller to rebind
// immediately, exactly as spec §4.2 specifies: "the frame is handed back
// to get_frame as the return value (it is NOT removed from the frame
// table because it will be immediately rebound)". There being no frame
// at all to evict is fatal (spec §7), matching anonBody.swapOut's panic
// on a full swap disk.
func (t *Table) evict() *Frame {
	t.mu.Lock()
	if t.frames.Len() == 0 {
		t.mu.Unlock()
		panic("frame: out of frames: no resident frame to evict")
	}

	var victim *Frame
	start := t.cursor
	if start == nil {
		start = t.frames.Front()
	}

	// Pass 1: prefer a frame with no bound page, else clean+unreferenced.
	e := start
	for i := 0; i < t.frames.Len(); i++ {
		f := e.Value.(*Frame)
		if f.Page == nil {
			victim = f
			break
		}
		pts := f.Page.PTSpace()
		va := f.Page.VA()
		if pts.IsAccessed(va) {
			pts.SetAccessed(va, false)
		} else if !pts.IsDirty(va) {
			victim = f
			break
		}
		e = t.successorLocked(e)
		if e == nil {
			e = t.frames.Front()
		}
	}

	// Pass 2: accept any unreferenced frame regardless of dirty bit.
	if victim == nil {
		e = start
		for i := 0; i < t.frames.Len(); i++ {
			f := e.Value.(*Frame)
			if f.Page == nil {
				victim = f
				break
			}
			pts := f.Page.PTSpace()
			va := f.Page.VA()
			if !pts.IsAccessed(va) {
				victim = f
				break
			}
			pts.SetAccessed(va, false)
			e = t.successorLocked(e)
			if e == nil {
				e = t.frames.Front()
			}
		}
	}

	if victim == nil {
		t.mu.Unlock()
		panic("frame: out of frames: clock sweep found no victim")
	}

	// Advance the cursor to the victim's successor so that repeated
	// evictions distribute around the ring (spec §4.2).
	t.cursor = t.successorLocked(victim.elem)
	page := victim.Page
	t.mu.Unlock()

	// Swap-out I/O runs with frame_lock released (spec §5): the victim
	// has been detached from consideration by the cursor advance above,
	// but remains a valid frame the caller (not yet) owns exclusively
	// until SwapOut returns and clears the binding.
	if page != nil {
		page.SwapOut()
	}
	victim.Page = nil
	// The victim's bytes belong to the page just swapped out; zero them so
	// the caller gets the same fresh page a pool allocation would give.
	for i := range victim.KVA {
		victim.KVA[i] = 0
	}
	return victim
}

// Len reports the number of resident frames, for diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames.Len()
}

// Walk calls f for every resident frame, for diagnostics (vmstat). It
// takes frame_lock for the duration, matching the spec's statement that
// the clock sweep "reads list structure under the same mutex".
func (t *Table) Walk(f func(*Frame)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for e := t.frames.Front(); e != nil; e = e.Next() {
		f(e.Value.(*Frame))
	}
}
