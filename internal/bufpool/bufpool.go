// Package bufpool implements the "page provider" spec.md treats as a
// pre-existing external collaborator (§2 row 1, §5): a fixed-capacity
// cache of fixed-size pages, keyed by (fileID, pageNo), with pin
// counts as the only synchronization primitive callers need. Mutating
// a page requires it to be pinned and marked dirty; pins are released
// on every exit path via PageGuard, never by a caller-held raw
// pointer (spec.md §9's "scoped acquisition" redesign of the
// teacher's ad hoc pin/unpin).
package bufpool

import (
	"container/list"
	"sync"

	"github.com/llll-debug/rucbase-go/internal/dberr"
	"github.com/llll-debug/rucbase-go/internal/diskmgr"
)

// FileID identifies one open page file (a heap table file or a
// B+-tree index file) within a Pool.
type FileID uint32

type pageKey struct {
	file FileID
	page uint32
}

type frame struct {
	key     pageKey
	data    []byte
	pinCnt  int
	dirty   bool
	elem    *list.Element // position in the LRU list
}

// Pool is a shared, fixed-capacity page cache. One Pool typically
// backs an entire open database (all its heap files and index files
// register a FileID with it).
type Pool struct {
	mu       sync.Mutex
	capacity int
	frames   map[pageKey]*frame
	lru      *list.List // front = most recently used
	files    map[FileID]*diskmgr.File
	nextFile FileID
}

// New creates a pool that holds at most capacity pages in memory.
func New(capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		capacity: capacity,
		frames:   make(map[pageKey]*frame),
		lru:      list.New(),
		files:    make(map[FileID]*diskmgr.File),
	}
}

// RegisterFile adds a disk file to the pool and returns its FileID.
func (p *Pool) RegisterFile(f *diskmgr.File) FileID {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextFile
	p.nextFile++
	p.files[id] = f
	return id
}

// UnregisterFile drops all cached pages belonging to fileID. Callers
// must ensure no pins are outstanding.
func (p *Pool) UnregisterFile(fileID FileID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, fr := range p.frames {
		if k.file == fileID {
			p.lru.Remove(fr.elem)
			delete(p.frames, k)
		}
	}
	delete(p.files, fileID)
}

// PageGuard is a scoped, pinned handle to a page's bytes. Callers
// must call Unpin exactly once, normally via defer immediately after
// a successful Fetch/New.
type PageGuard struct {
	pool   *Pool
	key    pageKey
	frame  *frame
}

// Data returns the page's raw bytes. Mutations require MarkDirty.
func (g *PageGuard) Data() []byte { return g.frame.data }

// MarkDirty flags the page as needing flush before eviction.
func (g *PageGuard) MarkDirty() {
	g.pool.mu.Lock()
	g.frame.dirty = true
	g.pool.mu.Unlock()
}

// Unpin releases the pin acquired by Fetch/New. dirty additionally
// marks the page dirty (equivalent to calling MarkDirty first).
func (g *PageGuard) Unpin(dirty bool) {
	g.pool.mu.Lock()
	defer g.pool.mu.Unlock()
	if dirty {
		g.frame.dirty = true
	}
	if g.frame.pinCnt > 0 {
		g.frame.pinCnt--
	}
}

// Fetch pins and returns page pageNo of fileID, loading it from disk
// if not cached. The caller must Unpin the guard on every exit path.
func (p *Pool) Fetch(fileID FileID, pageNo uint32) (*PageGuard, error) {
	p.mu.Lock()
	key := pageKey{fileID, pageNo}
	if fr, ok := p.frames[key]; ok {
		fr.pinCnt++
		p.lru.MoveToFront(fr.elem)
		p.mu.Unlock()
		return &PageGuard{pool: p, key: key, frame: fr}, nil
	}
	file, ok := p.files[fileID]
	if !ok {
		p.mu.Unlock()
		return nil, dberr.NewInternal("bufpool: unknown file %d", fileID)
	}
	p.mu.Unlock()

	buf := make([]byte, diskmgr.PageSize)
	if err := file.ReadPage(pageNo, buf); err != nil {
		return nil, err
	}

	return p.install(key, buf)
}

// NewPage allocates a fresh page on disk and returns it pinned and
// zero-filled, ready for the caller to initialize and mark dirty.
func (p *Pool) NewPage(fileID FileID) (*PageGuard, error) {
	p.mu.Lock()
	file, ok := p.files[fileID]
	p.mu.Unlock()
	if !ok {
		return nil, dberr.NewInternal("bufpool: unknown file %d", fileID)
	}

	pageNo, err := file.AllocPage()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, diskmgr.PageSize)
	return p.install(pageKey{fileID, pageNo}, buf)
}

// install inserts a freshly loaded/allocated page into the pool,
// evicting an unpinned page if the pool is at capacity.
func (p *Pool) install(key pageKey, buf []byte) (*PageGuard, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fr, ok := p.frames[key]; ok {
		// Raced with another loader; reuse it.
		fr.pinCnt++
		p.lru.MoveToFront(fr.elem)
		return &PageGuard{pool: p, key: key, frame: fr}, nil
	}

	if len(p.frames) >= p.capacity {
		if err := p.evictLocked(); err != nil {
			return nil, err
		}
	}

	fr := &frame{key: key, data: buf, pinCnt: 1}
	fr.elem = p.lru.PushFront(fr)
	p.frames[key] = fr
	return &PageGuard{pool: p, key: key, frame: fr}, nil
}

// evictLocked removes the least-recently-used unpinned frame,
// flushing it first if dirty. Must be called with p.mu held.
func (p *Pool) evictLocked() error {
	for e := p.lru.Back(); e != nil; e = e.Prev() {
		fr := e.Value.(*frame)
		if fr.pinCnt > 0 {
			continue
		}
		if fr.dirty {
			file, ok := p.files[fr.key.file]
			if ok {
				if err := file.WritePage(fr.key.page, fr.data); err != nil {
					return err
				}
			}
		}
		p.lru.Remove(e)
		delete(p.frames, fr.key)
		return nil
	}
	return dberr.NewInternal("bufpool: capacity %d exhausted, all pages pinned", p.capacity)
}

// FlushPage writes a specific page back to disk if dirty, without
// evicting it.
func (p *Pool) FlushPage(fileID FileID, pageNo uint32) error {
	p.mu.Lock()
	fr, ok := p.frames[pageKey{fileID, pageNo}]
	if !ok || !fr.dirty {
		p.mu.Unlock()
		return nil
	}
	file := p.files[fileID]
	data := fr.data
	p.mu.Unlock()

	if err := file.WritePage(pageNo, data); err != nil {
		return err
	}

	p.mu.Lock()
	fr.dirty = false
	p.mu.Unlock()
	return nil
}

// FlushAll writes every dirty page belonging to fileID back to disk.
func (p *Pool) FlushAll(fileID FileID) error {
	p.mu.Lock()
	var dirty []uint32
	for k, fr := range p.frames {
		if k.file == fileID && fr.dirty {
			dirty = append(dirty, k.page)
		}
	}
	p.mu.Unlock()

	for _, pageNo := range dirty {
		if err := p.FlushPage(fileID, pageNo); err != nil {
			return err
		}
	}
	return nil
}
