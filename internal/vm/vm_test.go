package vm

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"vmkernel/internal/defs"
	"vmkernel/internal/diskio"
	"vmkernel/internal/frame"
	"vmkernel/internal/fsfile"
	"vmkernel/internal/hw"
	"vmkernel/internal/swap"
)

const userStack = uintptr(0x4747_0000_0000)

func newTestAS(t *testing.T, poolCapacity int) *AddressSpace {
	t.Helper()
	pts := hw.NewFlatPTSpace()
	frames := frame.NewTable(frame.NewPool(poolCapacity))
	swapTable := swap.NewTable(diskio.NewMemDisk(defs.SectorsPerPage * 64))
	return NewAddressSpace(pts, frames, swapTable, userStack)
}

func TestSPTInsertFindRemove(t *testing.T) {
	as := newTestAS(t, 4)
	p, err := as.AllocPage(Anon, 0x1000, true)
	require.Zero(t, err)

	got, ok := as.Find(0x1000)
	require.True(t, ok)
	require.Same(t, p, got)

	_, err = as.AllocPage(Anon, 0x1000, true)
	require.Equal(t, defs.EEXIST, err, "inserting a second page at the same VA must fail")

	require.True(t, as.RemoveVA(0x1000))
	_, ok = as.Find(0x1000)
	require.False(t, ok, "removed page must be absent from the SPT")
}

func TestAnonLazyZeroPageThenWrite(t *testing.T) {
	as := newTestAS(t, 4)
	p, err := as.AllocPage(Anon, 0x2000, true)
	require.Zero(t, err)

	require.Zero(t, as.Claim(p))
	require.NotNil(t, p.Frame())
	for _, b := range p.Frame().KVA {
		require.Zero(t, b, "a fresh anon page must be zero-filled")
	}

	p.Frame().KVA[0] = 0xAB
	require.Equal(t, Anon, p.Type())
}

func TestAnonSwapOutSwapInRoundTrip(t *testing.T) {
	as := newTestAS(t, 4)
	p, err := as.AllocPage(Anon, 0x3000, true)
	require.Zero(t, err)
	require.Zero(t, as.Claim(p))

	p.Frame().KVA[10] = 0x42
	require.Zero(t, p.SwapOut())
	require.Nil(t, p.Frame(), "after swap-out the page must hold no frame")

	require.Zero(t, as.Claim(p))
	require.NotNil(t, p.Frame())
	require.Equal(t, byte(0x42), p.Frame().KVA[10], "swapped-out bytes must round-trip")
}

func TestFileBackedLazyLoadWithTailZeroFill(t *testing.T) {
	tmp := t.TempDir() + "/data.bin"
	content := make([]byte, defs.PGSIZE+100)
	for i := range content {
		content[i] = byte(i % 251)
	}
	require.NoError(t, writeFile(tmp, content))

	f, err := fsfile.Open(tmp)
	require.NoError(t, err)

	as := newTestAS(t, 4)
	addr, ferr := DoMmap(as, 0x10000, len(content), true, f, 0)
	require.Zero(t, ferr)
	require.Equal(t, uintptr(0x10000), addr)

	p1, ok := as.Find(0x10000)
	require.True(t, ok)
	require.Zero(t, as.Claim(p1))
	require.Equal(t, content[:defs.PGSIZE], p1.Frame().KVA)

	p2, ok := as.Find(0x10000 + uintptr(defs.PGSIZE))
	require.True(t, ok)
	require.Zero(t, as.Claim(p2))
	require.Equal(t, content[defs.PGSIZE:], p2.Frame().KVA[:100])
	for _, b := range p2.Frame().KVA[100:] {
		require.Zero(t, b, "remainder of the final page must be zero-filled")
	}
}

func TestMunmapFlushesDirtyPages(t *testing.T) {
	tmp := t.TempDir() + "/data.bin"
	require.NoError(t, writeFile(tmp, make([]byte, defs.PGSIZE)))

	f, err := fsfile.Open(tmp)
	require.NoError(t, err)

	as := newTestAS(t, 4)
	addr, ferr := DoMmap(as, 0x20000, defs.PGSIZE, true, f, 0)
	require.Zero(t, ferr)

	p, _ := as.Find(addr)
	require.Zero(t, as.Claim(p))
	p.Frame().KVA[0] = 0x99
	as.pts.SetDirty(addr, true)

	DoMunmap(as, addr)
	_, ok := as.Find(addr)
	require.False(t, ok, "munmap must remove the page from the SPT")

	back, err := fsfile.Open(tmp)
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = back.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, byte(0x99), buf[0], "dirty page must be flushed back to the file on munmap")
}

func TestEvictionReclaimsFramesUnderPressure(t *testing.T) {
	const capacity = 3
	as := newTestAS(t, capacity)

	var pages []*Page
	for i := 0; i < capacity+2; i++ {
		p, err := as.AllocPage(Anon, uintptr(0x30000+i*defs.PGSIZE), true)
		require.Zero(t, err)
		require.Zero(t, as.Claim(p))
		p.Frame().KVA[0] = byte(i + 1)
		pages = append(pages, p)
	}

	// Every page must still be independently readable by value, whether
	// resident or evicted-and-reclaimed.
	for i, p := range pages {
		require.Zero(t, as.Claim(p))
		require.Equal(t, byte(i+1), p.Frame().KVA[0])
	}
}

func TestStackGrowthAtExactBoundary(t *testing.T) {
	as := newTestAS(t, 4)
	faultAddr := userStack - 8

	ok := as.TryHandleFault(Fault{
		Addr:       faultAddr,
		User:       true,
		Write:      true,
		NotPresent: true,
		TrapRSP:    userStack,
	})
	require.True(t, ok, "a push exactly one word below rsp must grow the stack")

	_, found := as.Find(defs.PageRound(faultAddr))
	require.True(t, found)
}

func TestStackGrowthRejectsBelowMaxSize(t *testing.T) {
	as := newTestAS(t, 4)
	tooFar := as.StackTop - defs.StackMaxSize - 1

	ok := as.TryHandleFault(Fault{
		Addr:       tooFar,
		User:       true,
		Write:      true,
		NotPresent: true,
		TrapRSP:    tooFar,
	})
	require.False(t, ok, "an access past the 1 MiB stack ceiling must not grow the stack")
}

func TestFaultRejectsNullAndKernelAddress(t *testing.T) {
	as := newTestAS(t, 4)
	require.False(t, as.TryHandleFault(Fault{Addr: 0, User: true, NotPresent: true}))
	require.False(t, as.TryHandleFault(Fault{Addr: ^uintptr(0), User: true, NotPresent: true}))
}

func TestForkCopyIsIndependent(t *testing.T) {
	parent := newTestAS(t, 4)
	p, err := parent.AllocPage(Anon, 0x40000, true)
	require.Zero(t, err)
	require.Zero(t, parent.Claim(p))
	p.Frame().KVA[0] = 7

	child := newTestAS(t, 4)
	require.Zero(t, parent.Copy(child))

	cp, ok := child.Find(0x40000)
	require.True(t, ok)
	require.NotNil(t, cp.Frame())
	require.Equal(t, byte(7), cp.Frame().KVA[0])

	// Mutating the child's frame must not affect the parent's.
	cp.Frame().KVA[0] = 99
	require.Equal(t, byte(7), p.Frame().KVA[0], "fork must not alias parent and child frames")
}

func TestForkSkipsFileBackedPages(t *testing.T) {
	tmp := t.TempDir() + "/data.bin"
	require.NoError(t, writeFile(tmp, make([]byte, defs.PGSIZE)))
	f, err := fsfile.Open(tmp)
	require.NoError(t, err)

	parent := newTestAS(t, 4)
	addr, ferr := DoMmap(parent, 0x50000, defs.PGSIZE, true, f, 0)
	require.Zero(t, ferr)

	child := newTestAS(t, 4)
	require.Zero(t, parent.Copy(child))

	_, ok := child.Find(addr)
	require.False(t, ok, "a child must not inherit its parent's mmap regions")
}

func writeFile(path string, content []byte) error {
	return os.WriteFile(path, content, 0644)
}
