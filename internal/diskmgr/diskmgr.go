// Package diskmgr provides raw fixed-size page file I/O shared by the
// heap (internal/heap) and B+-tree (internal/ix) layers. Both used to
// duplicate this arithmetic in the teacher repo
// (storage/filestore/page.go vs index/btree/file.go); this package
// exists so neither has to again.
package diskmgr

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/llll-debug/rucbase-go/internal/dberr"
)

// PageSize is fixed for the whole engine; spec.md §3/§4.1 assume a
// single fixed page size and this module does not make it
// configurable (see config.File.BufferPoolSize instead, which sizes
// the cache, not the page).
const PageSize = 4096

// File is a single fixed-size-page-addressable disk file: a heap
// table file or a B+-tree index file. It hands out page numbers
// densely starting at 0.
type File struct {
	mu        sync.Mutex
	f         *os.File
	numPages  uint32
}

// Open opens (creating if needed) a page file at path. If the file is
// new, numPages starts at 0; otherwise it's derived from the file
// size.
func Open(path string) (*File, error) {
	osf, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberr.NewUnixError("open "+path, err)
	}
	fi, err := osf.Stat()
	if err != nil {
		return nil, dberr.NewUnixError("stat "+path, err)
	}
	n := uint32(fi.Size() / PageSize)
	return &File{f: osf, numPages: n}, nil
}

// NumPages returns the current page count.
func (f *File) NumPages() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.numPages
}

// AllocPage reserves the next page number and zero-fills it on disk,
// returning the new page's id.
func (f *File) AllocPage() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.numPages
	buf := make([]byte, PageSize)
	if _, err := f.f.WriteAt(buf, int64(id)*PageSize); err != nil {
		return 0, dberr.NewUnixError("alloc page", err)
	}
	f.numPages++
	return id, nil
}

// ReadPage reads page id into buf, which must be PageSize bytes.
func (f *File) ReadPage(id uint32, buf []byte) error {
	if len(buf) != PageSize {
		return dberr.NewInternal("diskmgr: ReadPage buffer size %d != %d", len(buf), PageSize)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id >= f.numPages {
		return dberr.NewInternal("diskmgr: read out-of-range page %d (have %d)", id, f.numPages)
	}
	if _, err := f.f.ReadAt(buf, int64(id)*PageSize); err != nil {
		return dberr.NewUnixError("read page", err)
	}
	return nil
}

// WritePage writes buf (PageSize bytes) to page id.
func (f *File) WritePage(id uint32, buf []byte) error {
	if len(buf) != PageSize {
		return dberr.NewInternal("diskmgr: WritePage buffer size %d != %d", len(buf), PageSize)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.f.WriteAt(buf, int64(id)*PageSize); err != nil {
		return dberr.NewUnixError("write page", err)
	}
	return nil
}

// Sync flushes OS buffers for this file.
func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.f.Sync(); err != nil {
		return dberr.NewUnixError("sync", err)
	}
	return nil
}

// Close closes the underlying OS file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.f.Close(); err != nil {
		return errors.Wrap(err, "diskmgr: close")
	}
	return nil
}

// Remove deletes the file at path. Callers must Close first.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return dberr.NewUnixError("remove "+path, err)
	}
	return nil
}
