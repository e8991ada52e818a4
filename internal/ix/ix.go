// Package ix implements spec.md §4.2's B+-tree secondary index: ordered
// multi-column keys mapping to record ids, with split/coalesce/
// redistribute rebalancing, leaf linking, and a coarse tree latch.
//
// Keys are opaque, already order-preserving-encoded byte strings of a
// fixed width (see internal/types.Encode) — bytes.Compare on the
// concatenation of a row's per-column encodings reproduces exactly the
// "per-column, left-to-right, first-non-equal-column" comparison
// spec.md §4.2 specifies, so the tree itself never needs to know a
// key's column types.
//
// Grounded structurally on the teacher's `internal/index/btree`
// (_examples/askorykh-goDB/internal/index/btree/{page,file}.go): fixed
// page header plus packed key/value arrays, page-offset arithmetic in
// the same style. The teacher's btree is single-column int64-only and
// implements no split/merge at all (see btree/file.go); the actual
// rebalancing algorithm here (split point, sibling preference,
// redistribute parent-slot patching, coalesce survivor rule,
// adjust_root) is grounded on
// _examples/original_source/src/execution/ix_index_handle.cpp, the
// original this spec was distilled from — see DESIGN.md for where this
// package's leaf-relinking consolidates two of the original's
// separately-tracked steps into one, and where it departs from the
// original's node/parent-deletion signal.
package ix

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/llll-debug/rucbase-go/internal/bufpool"
	"github.com/llll-debug/rucbase-go/internal/dberr"
	"github.com/llll-debug/rucbase-go/internal/diskmgr"
	"github.com/llll-debug/rucbase-go/internal/types"
)

const noPage uint32 = 0xFFFFFFFF
const noSlot uint32 = 0xFFFFFFFF

const nodeHeaderSize = 24
const valueSize = 8 // 4 bytes page/rid.PageNo + 4 bytes slot/rid.SlotNo

// node header field offsets within a page.
const (
	offIsLeaf = 0
	offNumKeys = 4
	offParent = 8
	offPrevLeaf = 12
	offNextLeaf = 16
)

// fileHeader lives in page 0 of the index file.
const (
	fhRootPage = 0
	fhFirstLeaf = 4
	fhLastLeaf = 8
	fhNumPages = 12
	fhKeyLen = 16
	fhMaxSize = 20
	fhMinSize = 24
)

// Tree is an open B+-tree index file.
type Tree struct {
	pool   *bufpool.Pool
	fileID bufpool.FileID
	disk   *diskmgr.File

	// mu is spec.md §5's coarse tree latch: exclusive for any
	// structure-mutating operation, shared for point/range reads.
	mu sync.RWMutex

	keyLen  int
	maxSize int
	minSize int

	rootPage  uint32
	firstLeaf uint32
	lastLeaf  uint32
}

// Create initializes a new, empty B+-tree index file for keys of
// keyLen bytes.
func Create(pool *bufpool.Pool, path string, keyLen int) (*Tree, error) {
	disk, err := diskmgr.Open(path)
	if err != nil {
		return nil, err
	}
	if disk.NumPages() != 0 {
		return nil, dberr.NewInternal("ix: %s already initialized", path)
	}
	fileID := pool.RegisterFile(disk)

	capacity := (diskmgr.PageSize - nodeHeaderSize) / (keyLen + valueSize)
	if capacity < 4 {
		capacity = 4
	}
	t := &Tree{
		pool: pool, fileID: fileID, disk: disk,
		keyLen:  keyLen,
		maxSize: capacity - 1,
		minSize: (capacity) / 2,
	}

	// Page 0: file header.
	hg, err := t.pool.NewPage(t.fileID)
	if err != nil {
		return nil, err
	}
	hg.Unpin(true)

	root, err := t.createNode(true)
	if err != nil {
		return nil, err
	}
	t.rootPage = root.pageNo
	t.firstLeaf = root.pageNo
	t.lastLeaf = root.pageNo
	root.setParent(noPage)
	root.setPrevLeaf(noPage)
	root.setNextLeaf(noPage)
	root.unpin(true)

	if err := t.saveHeader(); err != nil {
		return nil, err
	}
	return t, nil
}

// Open loads an existing B+-tree index file.
func Open(pool *bufpool.Pool, path string, keyLen int) (*Tree, error) {
	disk, err := diskmgr.Open(path)
	if err != nil {
		return nil, err
	}
	fileID := pool.RegisterFile(disk)
	capacity := (diskmgr.PageSize - nodeHeaderSize) / (keyLen + valueSize)
	if capacity < 4 {
		capacity = 4
	}
	t := &Tree{
		pool: pool, fileID: fileID, disk: disk,
		keyLen:  keyLen,
		maxSize: capacity - 1,
		minSize: capacity / 2,
	}
	hg, err := pool.Fetch(fileID, 0)
	if err != nil {
		return nil, err
	}
	buf := hg.Data()
	t.rootPage = binary.LittleEndian.Uint32(buf[fhRootPage:])
	t.firstLeaf = binary.LittleEndian.Uint32(buf[fhFirstLeaf:])
	t.lastLeaf = binary.LittleEndian.Uint32(buf[fhLastLeaf:])
	hg.Unpin(false)
	return t, nil
}

// Close flushes and releases the index file's pool registration.
func (t *Tree) Close() error {
	if err := t.pool.FlushAll(t.fileID); err != nil {
		return err
	}
	t.pool.UnregisterFile(t.fileID)
	return t.disk.Close()
}

// Flush writes every dirty page of this tree to disk without
// unregistering it, used by internal/qm's `CREATE STATIC_CHECKPOINT`.
func (t *Tree) Flush() error { return t.pool.FlushAll(t.fileID) }

func (t *Tree) saveHeader() error {
	g, err := t.pool.Fetch(t.fileID, 0)
	if err != nil {
		return err
	}
	buf := g.Data()
	binary.LittleEndian.PutUint32(buf[fhRootPage:], t.rootPage)
	binary.LittleEndian.PutUint32(buf[fhFirstLeaf:], t.firstLeaf)
	binary.LittleEndian.PutUint32(buf[fhLastLeaf:], t.lastLeaf)
	binary.LittleEndian.PutUint32(buf[fhKeyLen:], uint32(t.keyLen))
	binary.LittleEndian.PutUint32(buf[fhMaxSize:], uint32(t.maxSize))
	binary.LittleEndian.PutUint32(buf[fhMinSize:], uint32(t.minSize))
	g.Unpin(true)
	return nil
}

// node is a scoped handle onto one B+-tree page: an in-progress
// PageGuard plus the accessors spec.md's node layout implies. Never
// stored past its Unpin.
type node struct {
	g       *bufpool.PageGuard
	buf     []byte
	pageNo  uint32
	keyLen  int
	maxSize int
}

func (t *Tree) fetchNode(pageNo uint32) (*node, error) {
	g, err := t.pool.Fetch(t.fileID, pageNo)
	if err != nil {
		return nil, err
	}
	return &node{g: g, buf: g.Data(), pageNo: pageNo, keyLen: t.keyLen, maxSize: t.maxSize}, nil
}

func (t *Tree) createNode(isLeaf bool) (*node, error) {
	g, err := t.pool.NewPage(t.fileID)
	if err != nil {
		return nil, err
	}
	pageNo := t.disk.NumPages() - 1
	n := &node{g: g, buf: g.Data(), pageNo: pageNo, keyLen: t.keyLen, maxSize: t.maxSize}
	n.setLeaf(isLeaf)
	n.setNumKeys(0)
	n.setParent(noPage)
	n.setPrevLeaf(noPage)
	n.setNextLeaf(noPage)
	return n, nil
}

func (n *node) unpin(dirty bool) { n.g.Unpin(dirty) }

func (n *node) isLeaf() bool    { return n.buf[offIsLeaf] != 0 }
func (n *node) setLeaf(v bool) {
	if v {
		n.buf[offIsLeaf] = 1
	} else {
		n.buf[offIsLeaf] = 0
	}
}
func (n *node) numKeys() int      { return int(binary.LittleEndian.Uint32(n.buf[offNumKeys:])) }
func (n *node) setNumKeys(v int)  { binary.LittleEndian.PutUint32(n.buf[offNumKeys:], uint32(v)) }
func (n *node) parent() uint32     { return binary.LittleEndian.Uint32(n.buf[offParent:]) }
func (n *node) setParent(v uint32) { binary.LittleEndian.PutUint32(n.buf[offParent:], v) }
func (n *node) prevLeaf() uint32     { return binary.LittleEndian.Uint32(n.buf[offPrevLeaf:]) }
func (n *node) setPrevLeaf(v uint32) { binary.LittleEndian.PutUint32(n.buf[offPrevLeaf:], v) }
func (n *node) nextLeaf() uint32     { return binary.LittleEndian.Uint32(n.buf[offNextLeaf:]) }
func (n *node) setNextLeaf(v uint32) { binary.LittleEndian.PutUint32(n.buf[offNextLeaf:], v) }

func (n *node) keysOffset() int   { return nodeHeaderSize }
func (n *node) valuesOffset() int { return nodeHeaderSize + n.maxSize*n.keyLen + n.keyLen /* +1 slack slot */ }

func (n *node) keyAt(i int) []byte {
	off := n.keysOffset() + i*n.keyLen
	return n.buf[off : off+n.keyLen]
}
func (n *node) setKeyAt(i int, key []byte) { copy(n.keyAt(i), key) }

func (n *node) valueAt(i int) (uint32, uint32) {
	off := n.valuesOffset() + i*valueSize
	return binary.LittleEndian.Uint32(n.buf[off:]), binary.LittleEndian.Uint32(n.buf[off+4:])
}
func (n *node) setValueAt(i int, a, b uint32) {
	off := n.valuesOffset() + i*valueSize
	binary.LittleEndian.PutUint32(n.buf[off:], a)
	binary.LittleEndian.PutUint32(n.buf[off+4:], b)
}

// childAt returns the child page number stored at internal-node slot i.
func (n *node) childAt(i int) uint32 { p, _ := n.valueAt(i); return p }

func (n *node) ridAt(i int) types.Rid {
	p, s := n.valueAt(i)
	return types.Rid{PageNo: p, SlotNo: s}
}

// insertAt shifts entries [pos, numKeys) right by one and writes
// (key, a, b) at pos.
func (n *node) insertAt(pos int, key []byte, a, b uint32) {
	nk := n.numKeys()
	for i := nk; i > pos; i-- {
		n.setKeyAt(i, n.keyAt(i-1))
		pa, pb := n.valueAt(i - 1)
		n.setValueAt(i, pa, pb)
	}
	n.setKeyAt(pos, key)
	n.setValueAt(pos, a, b)
	n.setNumKeys(nk + 1)
}

// removeAt shifts entries (pos, numKeys) left by one, dropping pos.
func (n *node) removeAt(pos int) {
	nk := n.numKeys()
	for i := pos; i < nk-1; i++ {
		n.setKeyAt(i, n.keyAt(i+1))
		pa, pb := n.valueAt(i + 1)
		n.setValueAt(i, pa, pb)
	}
	n.setNumKeys(nk - 1)
}

// lowerBound returns the first index i in [0,numKeys) with keyAt(i) >=
// target, or numKeys if none.
func (n *node) lowerBound(target []byte) int {
	lo, hi := 0, n.numKeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(n.keyAt(mid), target) >= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// upperBound returns the first index i in [0,numKeys) with keyAt(i) >
// target, or numKeys if none.
func (n *node) upperBound(target []byte) int {
	lo, hi := 0, n.numKeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(n.keyAt(mid), target) > 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// internalLookup returns the child page to descend into for key,
// clamping to child 0 when key is smaller than every key in this node
// (key(0) is the subtree's minimum under the first-key invariant, but
// during an in-flight insert of a new minimum it can transiently be
// stale — see maintainParent).
func (n *node) internalLookup(key []byte) uint32 {
	pos := n.upperBound(key)
	if pos == 0 {
		pos = 1
	}
	return n.childAt(pos - 1)
}

// findChild returns the index of childPageNo among this internal
// node's children, or -1.
func (n *node) findChild(childPageNo uint32) int {
	for i := 0; i < n.numKeys(); i++ {
		if n.childAt(i) == childPageNo {
			return i
		}
	}
	return -1
}

func (n *node) isFull() bool { return n.numKeys() > n.maxSize }

func (t *Tree) isSparse(n *node) bool {
	if n.pageNo == t.rootPage {
		return false
	}
	return n.numKeys() < t.minSize
}

// findLeaf descends from the root to the leaf that would contain key.
// Caller must Unpin the returned node.
func (t *Tree) findLeaf(key []byte) (*node, error) {
	cur, err := t.fetchNode(t.rootPage)
	if err != nil {
		return nil, err
	}
	for !cur.isLeaf() {
		childNo := cur.internalLookup(key)
		next, err := t.fetchNode(childNo)
		if err != nil {
			cur.unpin(false)
			return nil, err
		}
		cur.unpin(false)
		cur = next
	}
	return cur, nil
}

// Get returns the Rid stored for key, if present.
func (t *Tree) Get(key []byte) (types.Rid, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	leaf, err := t.findLeaf(key)
	if err != nil {
		return types.Rid{}, false, err
	}
	defer leaf.unpin(false)
	pos := leaf.lowerBound(key)
	if pos < leaf.numKeys() && bytes.Equal(leaf.keyAt(pos), key) {
		return leaf.ridAt(pos), true, nil
	}
	return types.Rid{}, false, nil
}

// Insert adds key -> rid. inserted is false if key already exists
// (spec.md's uniqueness enforcement) — not an error.
func (t *Tree) Insert(key []byte, rid types.Rid) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	leaf, err := t.findLeaf(key)
	if err != nil {
		return false, err
	}
	pos := leaf.lowerBound(key)
	if pos < leaf.numKeys() && bytes.Equal(leaf.keyAt(pos), key) {
		leaf.unpin(false)
		return false, nil
	}

	leaf.insertAt(pos, key, rid.PageNo, rid.SlotNo)
	if pos == 0 {
		if err := t.maintainParent(leaf); err != nil {
			leaf.unpin(true)
			return false, err
		}
	}

	wasRightmost := leaf.pageNo == t.lastLeaf
	if leaf.isFull() {
		sib, err := t.splitNode(leaf)
		if err != nil {
			leaf.unpin(true)
			return false, err
		}
		if wasRightmost {
			t.lastLeaf = sib.pageNo
		}
		sepKey := append([]byte(nil), sib.keyAt(0)...)
		if err := t.insertIntoParent(leaf, sepKey, sib); err != nil {
			leaf.unpin(true)
			sib.unpin(true)
			return false, err
		}
		leaf.unpin(true)
		sib.unpin(true)
	} else {
		leaf.unpin(true)
	}

	if err := t.saveHeader(); err != nil {
		return false, err
	}
	return true, nil
}

// splitNode splits node at its min size, returning the new right
// sibling. Caller retains node's pin and receives the sibling pinned.
func (t *Tree) splitNode(n *node) (*node, error) {
	sib, err := t.createNode(n.isLeaf())
	if err != nil {
		return nil, err
	}
	splitPoint := t.minSize

	if n.isLeaf() {
		sib.setPrevLeaf(n.pageNo)
		sib.setNextLeaf(n.nextLeaf())
		n.setNextLeaf(sib.pageNo)
		if sib.nextLeaf() != noPage {
			nn, err := t.fetchNode(sib.nextLeaf())
			if err != nil {
				return nil, err
			}
			nn.setPrevLeaf(sib.pageNo)
			nn.unpin(true)
		}
	}
	sib.setParent(n.parent())

	moved := n.numKeys() - splitPoint
	for i := 0; i < moved; i++ {
		a, b := n.valueAt(splitPoint + i)
		sib.insertAt(i, n.keyAt(splitPoint+i), a, b)
	}
	n.setNumKeys(splitPoint)

	if !sib.isLeaf() {
		for i := 0; i < sib.numKeys(); i++ {
			if err := t.maintainChild(sib, i); err != nil {
				return nil, err
			}
		}
	}
	return sib, nil
}

// insertIntoParent wires newNode into oldNode's parent under key
// sepKey, splitting the parent (recursively) or creating a new root as
// needed.
func (t *Tree) insertIntoParent(oldNode *node, sepKey []byte, newNode *node) error {
	if oldNode.pageNo == t.rootPage {
		newRoot, err := t.createNode(false)
		if err != nil {
			return err
		}
		newRoot.setParent(noPage)
		newRoot.insertAt(0, append([]byte(nil), oldNode.keyAt(0)...), oldNode.pageNo, noSlot)
		newRoot.insertAt(1, sepKey, newNode.pageNo, noSlot)
		oldNode.setParent(newRoot.pageNo)
		newNode.setParent(newRoot.pageNo)
		t.rootPage = newRoot.pageNo
		newRoot.unpin(true)
		return nil
	}

	parent, err := t.fetchNode(oldNode.parent())
	if err != nil {
		return err
	}
	idx := parent.findChild(oldNode.pageNo)
	if idx < 0 {
		parent.unpin(false)
		return dberr.NewInternal("ix: corrupt tree, child %d not found in parent %d", oldNode.pageNo, parent.pageNo)
	}
	parent.insertAt(idx+1, sepKey, newNode.pageNo, noSlot)
	newNode.setParent(parent.pageNo)

	if parent.isFull() {
		sib, err := t.splitNode(parent)
		if err != nil {
			parent.unpin(true)
			return err
		}
		sepKey2 := append([]byte(nil), sib.keyAt(0)...)
		if err := t.insertIntoParent(parent, sepKey2, sib); err != nil {
			parent.unpin(true)
			sib.unpin(true)
			return err
		}
		sib.unpin(true)
	}
	parent.unpin(true)
	return nil
}

// maintainChild reparents node's child_idx-th child to node.
func (t *Tree) maintainChild(n *node, childIdx int) error {
	if n.isLeaf() {
		return nil
	}
	child, err := t.fetchNode(n.childAt(childIdx))
	if err != nil {
		return err
	}
	child.setParent(n.pageNo)
	child.unpin(true)
	return nil
}

// maintainParent walks up from node reparenting the first-key slot of
// each ancestor that references it, stopping at the first ancestor
// that already agrees (spec.md's "first-key maintenance").
func (t *Tree) maintainParent(n *node) error {
	childPageNo := n.pageNo
	childKey0 := append([]byte(nil), n.keyAt(0)...)
	parentPageNo := n.parent()

	for parentPageNo != noPage {
		parent, err := t.fetchNode(parentPageNo)
		if err != nil {
			return err
		}
		idx := parent.findChild(childPageNo)
		if idx < 0 {
			parent.unpin(false)
			return dberr.NewInternal("ix: corrupt tree, child %d not found in parent %d", childPageNo, parent.pageNo)
		}
		if bytes.Equal(parent.keyAt(idx), childKey0) {
			parent.unpin(false)
			return nil
		}
		parent.setKeyAt(idx, childKey0)

		nextParent := parent.parent()
		childPageNo = parent.pageNo
		childKey0 = append([]byte(nil), parent.keyAt(0)...)
		parent.unpin(true)
		parentPageNo = nextParent
	}
	return nil
}

// Delete removes key. deleted is false if key was absent — not an
// error.
func (t *Tree) Delete(key []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	leaf, err := t.findLeaf(key)
	if err != nil {
		return false, err
	}
	pos := leaf.lowerBound(key)
	if pos >= leaf.numKeys() || !bytes.Equal(leaf.keyAt(pos), key) {
		leaf.unpin(false)
		return false, nil
	}
	leaf.removeAt(pos)
	if pos == 0 && leaf.numKeys() > 0 {
		if err := t.maintainParent(leaf); err != nil {
			leaf.unpin(true)
			return false, err
		}
	}

	if err := t.coalesceOrRedistribute(leaf); err != nil {
		leaf.unpin(true)
		return false, err
	}
	leaf.unpin(true)

	if err := t.saveHeader(); err != nil {
		return false, err
	}
	return true, nil
}

// coalesceOrRedistribute rebalances node after it lost an entry.
// Leaf relinking on merge happens inline here rather than as a
// separate post-hoc step, since which of {node, its neighbor}
// disappears depends on sibling preference and both are already
// pinned at that point.
func (t *Tree) coalesceOrRedistribute(n *node) error {
	if n.pageNo == t.rootPage {
		return t.adjustRoot(n)
	}
	if !t.isSparse(n) {
		return nil
	}

	parent, err := t.fetchNode(n.parent())
	if err != nil {
		return err
	}
	idx := parent.findChild(n.pageNo)
	if idx < 0 {
		parent.unpin(false)
		return dberr.NewInternal("ix: corrupt tree, child %d not found in parent %d", n.pageNo, parent.pageNo)
	}

	preferLeft := idx > 0
	neighborIdx := idx + 1
	if preferLeft {
		neighborIdx = idx - 1
	}
	neighbor, err := t.fetchNode(parent.childAt(neighborIdx))
	if err != nil {
		parent.unpin(false)
		return err
	}

	var opErr error
	if n.numKeys()+neighbor.numKeys() >= t.maxSize {
		t.redistribute(neighbor, n, parent, idx, preferLeft)
	} else {
		opErr = t.coalesce(neighbor, n, parent, idx, preferLeft)
	}

	parent.unpin(true)
	neighbor.unpin(true)
	return opErr
}

// adjustRoot handles the root shrinking by one level (internal root
// with one child) or staying as an empty leaf (the tree never
// disappears entirely).
func (t *Tree) adjustRoot(root *node) error {
	if !root.isLeaf() && root.numKeys() == 1 {
		childPageNo := root.childAt(0)
		child, err := t.fetchNode(childPageNo)
		if err != nil {
			return err
		}
		child.setParent(noPage)
		t.rootPage = childPageNo
		child.unpin(true)
		return nil
	}
	// Leaf root, possibly empty: stays as-is.
	return nil
}

// redistribute borrows one entry across node/neighbor to bring node
// back to a safe size, and patches the separator key in parent.
func (t *Tree) redistribute(neighbor, n, parent *node, idx int, preferLeft bool) {
	if !preferLeft {
		// neighbor is node's right sibling: borrow neighbor's first entry.
		key0 := append([]byte(nil), neighbor.keyAt(0)...)
		a, b := neighbor.valueAt(0)
		n.insertAt(n.numKeys(), key0, a, b)
		neighbor.removeAt(0)
		parent.setKeyAt(idx+1, neighbor.keyAt(0))
		if !n.isLeaf() {
			_ = t.maintainChild(n, n.numKeys()-1)
		}
		return
	}
	// neighbor is node's left sibling: borrow neighbor's last entry.
	last := neighbor.numKeys() - 1
	keyL := append([]byte(nil), neighbor.keyAt(last)...)
	a, b := neighbor.valueAt(last)
	n.insertAt(0, keyL, a, b)
	neighbor.removeAt(last)
	parent.setKeyAt(idx, n.keyAt(0))
	if !n.isLeaf() {
		_ = t.maintainChild(n, 0)
	}
}

// coalesce merges node and neighbor into a single left survivor,
// erasing the separator from parent and recursing if parent itself
// underflows or is the root (so a root left with one child collapses).
func (t *Tree) coalesce(neighbor, n, parent *node, idx int, preferLeft bool) error {
	var survivor, doomed *node
	var doomedIdx int
	if preferLeft {
		survivor, doomed, doomedIdx = neighbor, n, idx
	} else {
		survivor, doomed, doomedIdx = n, neighbor, idx+1
	}

	base := survivor.numKeys()
	for i := 0; i < doomed.numKeys(); i++ {
		a, b := doomed.valueAt(i)
		survivor.insertAt(base+i, doomed.keyAt(i), a, b)
	}
	if !doomed.isLeaf() {
		for i := 0; i < doomed.numKeys(); i++ {
			if err := t.maintainChild(survivor, base+i); err != nil {
				return err
			}
		}
	}
	if doomed.isLeaf() {
		survivor.setNextLeaf(doomed.nextLeaf())
		if doomed.nextLeaf() != noPage {
			nn, err := t.fetchNode(doomed.nextLeaf())
			if err != nil {
				return err
			}
			nn.setPrevLeaf(survivor.pageNo)
			nn.unpin(true)
		} else {
			t.lastLeaf = survivor.pageNo
		}
	}

	parent.removeAt(doomedIdx)
	if parent.pageNo == t.rootPage || t.isSparse(parent) {
		return t.coalesceOrRedistribute(parent)
	}
	return nil
}

// LowerBound returns the Iid of the first entry >= key.
func (t *Tree) LowerBound(key []byte) (types.Iid, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.boundIid(key, false)
}

// UpperBound returns the Iid of the first entry > key.
func (t *Tree) UpperBound(key []byte) (types.Iid, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.boundIid(key, true)
}

func (t *Tree) boundIid(key []byte, upper bool) (types.Iid, error) {
	leaf, err := t.findLeaf(key)
	if err != nil {
		return types.Iid{}, err
	}
	defer leaf.unpin(false)

	var pos int
	if upper {
		pos = leaf.upperBound(key)
	} else {
		pos = leaf.lowerBound(key)
	}
	if pos == leaf.numKeys() {
		if leaf.pageNo == t.lastLeaf {
			return types.Iid{PageNo: leaf.pageNo, SlotNo: uint32(pos)}, nil
		}
		return types.Iid{PageNo: leaf.nextLeaf(), SlotNo: 0}, nil
	}
	return types.Iid{PageNo: leaf.pageNo, SlotNo: uint32(pos)}, nil
}

// LeafBegin returns the position before the first entry in key order.
func (t *Tree) LeafBegin() types.Iid {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return types.Iid{PageNo: t.firstLeaf, SlotNo: 0}
}

// LeafEnd returns the position past the last entry in key order.
func (t *Tree) LeafEnd() (types.Iid, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	leaf, err := t.fetchNode(t.lastLeaf)
	if err != nil {
		return types.Iid{}, err
	}
	n := leaf.numKeys()
	leaf.unpin(false)
	return types.Iid{PageNo: t.lastLeaf, SlotNo: uint32(n)}, nil
}

// GetRid resolves an Iid to the Rid stored at that slot.
func (t *Tree) GetRid(iid types.Iid) (types.Rid, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.fetchNode(iid.PageNo)
	if err != nil {
		return types.Rid{}, err
	}
	defer n.unpin(false)
	if int(iid.SlotNo) >= n.numKeys() {
		return types.Rid{}, dberr.ErrRecordNotFound
	}
	return n.ridAt(int(iid.SlotNo)), nil
}

// Scanner is a forward leaf iterator over [lower, upper).
type Scanner struct {
	t     *Tree
	cur   types.Iid
	upper types.Iid
}

// Scan begins a forward scan from lower (inclusive) to upper
// (exclusive), holding the tree's read latch for the scan's duration.
func (t *Tree) Scan(lower, upper types.Iid) *Scanner {
	t.mu.RLock()
	return &Scanner{t: t, cur: lower, upper: upper}
}

// Close releases the tree's read latch. Must be called exactly once,
// even after Next has been exhausted.
func (s *Scanner) Close() { s.t.mu.RUnlock() }

// Next advances the scanner, returning false once the upper bound is
// reached.
func (s *Scanner) Next() (types.Rid, bool, error) {
	for {
		if s.cur.PageNo == s.upper.PageNo && s.cur.SlotNo == s.upper.SlotNo {
			return types.Rid{}, false, nil
		}
		n, err := s.t.fetchNode(s.cur.PageNo)
		if err != nil {
			return types.Rid{}, false, err
		}
		if int(s.cur.SlotNo) >= n.numKeys() {
			next := n.nextLeaf()
			n.unpin(false)
			if next == noPage {
				return types.Rid{}, false, nil
			}
			s.cur = types.Iid{PageNo: next, SlotNo: 0}
			continue
		}
		rid := n.ridAt(int(s.cur.SlotNo))
		n.unpin(false)
		s.cur.SlotNo++
		return rid, true, nil
	}
}
