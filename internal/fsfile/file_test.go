package fsfile

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOSFileReadWriteReopen(t *testing.T) {
	path := t.TempDir() + "/f.bin"
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0644))

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 5)
	n, err := ReadAt(f, buf, 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))

	_, err = WriteAt(f, []byte("HELLO"), 0)
	require.NoError(t, err)

	r, err := f.Reopen()
	require.NoError(t, err)
	defer r.Close()

	buf2 := make([]byte, 5)
	_, err = r.ReadAt(buf2, 0)
	require.NoError(t, err)
	require.Equal(t, "HELLO", string(buf2), "a reopened handle must observe writes through the original")
}

func TestOSFileReadAtEOFIsNotAnError(t *testing.T) {
	path := t.TempDir() + "/short.bin"
	require.NoError(t, os.WriteFile(path, []byte("ab"), 0644))

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 10)
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
