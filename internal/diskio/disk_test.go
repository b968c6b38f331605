package diskio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDiskReadWriteSectors(t *testing.T) {
	d := NewMemDisk(16)
	buf := []byte("0123456789ABCDEF")
	require.NoError(t, WriteSectors(d, 2, buf))

	out := make([]byte, len(buf))
	require.NoError(t, ReadSectors(d, 2, out))
	require.Equal(t, buf, out)
}

func TestMemDiskOutOfRange(t *testing.T) {
	d := NewMemDisk(4)
	buf := make([]byte, SectorSize*2)
	err := ReadSectors(d, 3, buf)
	require.Error(t, err)
}

func TestMemDiskSize(t *testing.T) {
	d := NewMemDisk(32)
	require.Equal(t, uint64(32), d.Size())
}
