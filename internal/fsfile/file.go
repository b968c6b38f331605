// Package fsfile is the narrow filesystem boundary file-backed pages
// read and write through (spec §6: file_reopen, file_read_at,
// file_write_at, file_close, filesys_lock). File-system layout itself is
// an explicit Non-goal (spec §1); this package only has to reproduce the
// handful of operations Pintos's vm/file.c calls into process.c/file.c
// for, plus the single global lock the spec says must be held "around
// each call into the filesystem" (spec §5).
package fsfile

import (
	"io"
	"os"
	"sync"
)

// File is the contract vm.fileBody needs. Reopen must return an
// independent handle so a later Close of the user's original descriptor
// does not invalidate an existing mmap, the exact property do_mmap
// relies on file_reopen for (spec §4.3.4).
type File interface {
	ReadAt(buf []byte, off int64) (int, error)
	WriteAt(buf []byte, off int64) (int, error)
	Reopen() (File, error)
	Close() error
}

// Lock is the process-wide filesys_lock (spec §5): mmap and file-backed
// swap read/write acquire it around each call into the filesystem. It is
// a single package-level mutex, mirroring how biscuit and Pintos both
// treat the filesystem lock as one global resource rather than per-file.
var Lock sync.Mutex

// ReadAt acquires Lock and performs a single file_read_at-equivalent
// call.
func ReadAt(f File, buf []byte, off int64) (int, error) {
	Lock.Lock()
	defer Lock.Unlock()
	return f.ReadAt(buf, off)
}

// WriteAt acquires Lock and performs a single file_write_at-equivalent
// call.
func WriteAt(f File, buf []byte, off int64) (int, error) {
	Lock.Lock()
	defer Lock.Unlock()
	return f.WriteAt(buf, off)
}

// OSFile adapts an *os.File to File. It is the concrete File used by
// tests that exercise mmap against a real backing file (spec §8
// scenarios 2 and 5).
type OSFile struct {
	path string
	f    *os.File
}

// Open opens path for reading and writing as an OSFile.
func Open(path string) (*OSFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &OSFile{path: path, f: f}, nil
}

// ReadAt implements File.
func (o *OSFile) ReadAt(buf []byte, off int64) (int, error) {
	n, err := o.f.ReadAt(buf, off)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// WriteAt implements File.
func (o *OSFile) WriteAt(buf []byte, off int64) (int, error) {
	return o.f.WriteAt(buf, off)
}

// Reopen implements File by opening an independent *os.File handle onto
// the same path, exactly as Pintos's file_reopen does for an on-disk
// inode.
func (o *OSFile) Reopen() (File, error) {
	return Open(o.path)
}

// Close implements File.
func (o *OSFile) Close() error {
	return o.f.Close()
}
