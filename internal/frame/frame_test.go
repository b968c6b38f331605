package frame

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vmkernel/internal/defs"
	"vmkernel/internal/hw"
)

// fakePage is a minimal frame.PageRef used to exercise the frame table
// and clock evictor without pulling in internal/vm (which itself
// depends on this package).
type fakePage struct {
	va      uintptr
	pts     hw.PTSpace
	cleared bool
	outs    int
}

func (p *fakePage) VA() uintptr         { return p.va }
func (p *fakePage) PTSpace() hw.PTSpace { return p.pts }
func (p *fakePage) ClearFrame()         { p.cleared = true }
func (p *fakePage) SwapOut() defs.Err_t { p.outs++; p.pts.ClearPage(p.va); return 0 }

func TestGetFrameThenEvictWhenPoolExhausted(t *testing.T) {
	pool := NewPool(2)
	table := NewTable(pool)
	pts := hw.NewFlatPTSpace()

	var pages []*fakePage
	for i := 0; i < 2; i++ {
		f := table.GetFrame()
		table.Insert(f)
		p := &fakePage{va: uintptr((i + 1) * 0x1000), pts: pts}
		pts.SetPage(p.va, f.ID, true)
		f.Page = p
		pages = append(pages, p)
	}
	require.Equal(t, 0, pool.Available())

	// Both frames are unreferenced and clean: the clock sweep's first
	// pass should pick one without touching pass two.
	f3 := table.GetFrame()
	require.NotNil(t, f3)

	evicted := 0
	for _, p := range pages {
		if p.outs == 1 {
			evicted++
		}
	}
	require.Equal(t, 1, evicted, "exactly one victim page should have been swapped out")
}

func TestClockSweepSkipsReferencedFirstPass(t *testing.T) {
	pool := NewPool(1)
	table := NewTable(pool)
	pts := hw.NewFlatPTSpace()

	f := table.GetFrame()
	table.Insert(f)
	p := &fakePage{va: 0x5000, pts: pts}
	pts.SetPage(p.va, f.ID, true)
	pts.SetAccessed(p.va, true)
	f.Page = p

	victim := table.evict()
	require.Same(t, f, victim, "the only frame present must eventually be the victim")
	// Referenced bit should have been cleared by the sweep's first pass.
	require.False(t, pts.IsAccessed(p.va))
}

func TestFreeFramePanicsWithBoundPage(t *testing.T) {
	pool := NewPool(1)
	table := NewTable(pool)
	f := table.GetFrame()
	f.Page = &fakePage{}
	require.Panics(t, func() { table.FreeFrame(f) })
}

func TestFreeFrameReturnsCapacity(t *testing.T) {
	pool := NewPool(1)
	table := NewTable(pool)
	f := table.GetFrame()
	table.Insert(f)
	f.Page = nil
	table.FreeFrame(f)
	require.Equal(t, 1, pool.Available())
	require.Equal(t, 0, table.Len())
}

func TestGetFramePanicsWhenNothingToEvict(t *testing.T) {
	pool := NewPool(0)
	table := NewTable(pool)
	require.Panics(t, func() { table.GetFrame() },
		"frame exhaustion with no resident frame to evict must be fatal, matching anonBody.swapOut's panic on a full swap disk")
}
