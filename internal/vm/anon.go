package vm

import "vmkernel/internal/defs"
import "vmkernel/internal/swap"

// anonBody is the anonymous page variant (spec §4.3.2), grounded on
// Pintos's vm/anon.c: it holds at most one swap slot at a time, and the
// invariant "exactly one of {bound frame, valid swap slot}" is enforced
// by swapIn/swapOut always clearing the one they consume.
type anonBody struct {
	slot uint64 // swap.NoSlot means "resident" (spec: slot_index == NONE)
}

func (*anonBody) pageType() PageType { return Anon }

// swapIn reads the page back from its swap slot into kva, or, if the
// page has never been written out, succeeds without reading (spec:
// "first-time zero-fill"); kva arrives already zeroed because frame
// allocation always hands back a freshly zeroed page.
func (a *anonBody) swapIn(p *Page, kva []byte) defs.Err_t {
	if a.slot == swap.NoSlot {
		return 0
	}
	if err := p.as.swap.Read(a.slot, kva); err != nil {
		return defs.EIO
	}
	p.as.swap.Release(a.slot)
	a.slot = swap.NoSlot
	return 0
}

// swapOut writes the bound frame's contents to a freshly reserved slot
// and tears down the hardware mapping. A full swap device is fatal
// (spec §4.3.2, §7): there is no page left to evict in its place.
func (a *anonBody) swapOut(p *Page) defs.Err_t {
	slot, ok := p.as.swap.Reserve()
	if !ok {
		panic("vm: swap disk is full")
	}
	if err := p.as.swap.Write(slot, p.frame.KVA); err != nil {
		panic("vm: swap write failed: " + err.Error())
	}
	a.slot = slot
	p.as.pts.ClearPage(p.va)
	p.frame = nil
	return 0
}

// destroy releases whichever of {bound frame, swap slot} the page
// currently holds (spec §4.3.2).
func (a *anonBody) destroy(p *Page) {
	if p.frame != nil {
		p.as.pts.ClearPage(p.va)
		f := p.frame
		p.frame = nil
		f.Page = nil
		p.as.frames.FreeFrame(f)
	}
	if a.slot != swap.NoSlot {
		p.as.swap.Release(a.slot)
		a.slot = swap.NoSlot
	}
}
