package exec

import (
	"bytes"
	"sort"

	"github.com/llll-debug/rucbase-go/internal/analyze"
	"github.com/llll-debug/rucbase-go/internal/dberr"
)

func joinColumns(left, right []ColDesc) []ColDesc {
	leftLen := tupleLen(left)
	cols := make([]ColDesc, 0, len(left)+len(right))
	cols = append(cols, left...)
	for _, c := range right {
		c.Offset += leftLen
		cols = append(cols, c)
	}
	return cols
}

func concatRecords(left, right []byte) []byte {
	rec := make([]byte, 0, len(left)+len(right))
	rec = append(rec, left...)
	rec = append(rec, right...)
	return rec
}

// NestedLoopJoinExec drives the left child to completion, rewinding
// and re-scanning the right child for every left tuple, per spec.md
// §4.6. The right child is any freshly-Begin()-able Executor (a scan
// executor re-creates its own internal cursor on each Begin), so
// "rewind" is simply calling Begin again rather than a separate reset
// method.
type NestedLoopJoinExec struct {
	left, right Executor
	conds       []analyze.BoundCondition
	cols        []ColDesc
	curRec      []byte
	done        bool
}

func NewNestedLoopJoin(left, right Executor, conds []analyze.BoundCondition) *NestedLoopJoinExec {
	return &NestedLoopJoinExec{left: left, right: right, conds: conds, cols: joinColumns(left.Columns(), right.Columns())}
}

func (e *NestedLoopJoinExec) Columns() []ColDesc { return e.cols }
func (e *NestedLoopJoinExec) TupleLen() int      { return tupleLen(e.cols) }
func (e *NestedLoopJoinExec) Done() bool         { return e.done }
func (e *NestedLoopJoinExec) Current() []byte    { return e.curRec }

func (e *NestedLoopJoinExec) Close() error {
	if err := e.left.Close(); err != nil {
		return err
	}
	return e.right.Close()
}

func (e *NestedLoopJoinExec) Begin() error {
	if err := e.left.Begin(); err != nil {
		return err
	}
	if e.left.Done() {
		e.done = true
		return nil
	}
	if err := e.right.Begin(); err != nil {
		return err
	}
	return e.findMatch()
}

func (e *NestedLoopJoinExec) Next() error {
	if err := e.right.Next(); err != nil {
		return err
	}
	return e.findMatch()
}

func (e *NestedLoopJoinExec) findMatch() error {
	for {
		for !e.right.Done() {
			rec := concatRecords(e.left.Current(), e.right.Current())
			ok, err := evalAll(e.cols, rec, e.conds)
			if err != nil {
				return err
			}
			if ok {
				e.curRec = rec
				return nil
			}
			if err := e.right.Next(); err != nil {
				return err
			}
		}
		if err := e.left.Next(); err != nil {
			return err
		}
		if e.left.Done() {
			e.done = true
			e.curRec = nil
			return nil
		}
		if err := e.right.Begin(); err != nil {
			return err
		}
	}
}

// SortMergeJoinExec materializes both children, sorts each by its
// equality join columns, and merges matching key groups as their
// cross product, per spec.md §4.6. Non-equality predicates in Conds
// (there is at most a mix of one equality plus incidental extras in
// practice) are re-checked per candidate pair after the merge finds a
// matching key group.
//
// This eagerly computes every matched pair at Begin rather than
// streaming the merge lazily group-by-group — a direct, easily
// verified reading of spec.md's "materialize both inputs, sort each,
// then merge" for the query volumes this engine targets.
type SortMergeJoinExec struct {
	left, right Executor
	conds       []analyze.BoundCondition
	cols        []ColDesc

	leftRows, rightRows [][]byte
	pairs               [][2]int
	idx                 int
	curRec              []byte
	done                bool
}

func NewSortMergeJoin(left, right Executor, conds []analyze.BoundCondition) *SortMergeJoinExec {
	return &SortMergeJoinExec{left: left, right: right, conds: conds, cols: joinColumns(left.Columns(), right.Columns())}
}

func (e *SortMergeJoinExec) Columns() []ColDesc { return e.cols }
func (e *SortMergeJoinExec) TupleLen() int      { return tupleLen(e.cols) }
func (e *SortMergeJoinExec) Done() bool         { return e.done }
func (e *SortMergeJoinExec) Current() []byte    { return e.curRec }

func (e *SortMergeJoinExec) Close() error {
	if err := e.left.Close(); err != nil {
		return err
	}
	return e.right.Close()
}

// resolveSide finds ref among cols by alias+name.
func resolveSide(cols []ColDesc, ref analyze.BoundColRef) (ColDesc, bool) {
	return findCol(cols, ref.Alias, ref.Meta.Name)
}

// joinKeyParts pairs up each equality condition's columns with
// whichever side (left/right) they actually belong to — a condition's
// Left isn't guaranteed to be the join's left child, since conditions
// are written in whatever order the query used.
type joinKeyPart struct {
	left, right ColDesc
}

func (e *SortMergeJoinExec) keyParts(leftCols, rightCols []ColDesc) ([]joinKeyPart, []analyze.BoundCondition) {
	var parts []joinKeyPart
	var residual []analyze.BoundCondition
	for _, c := range e.conds {
		if c.Op != "=" || c.Right.Col == nil {
			residual = append(residual, c)
			continue
		}
		if lc, ok := resolveSide(leftCols, c.Left); ok {
			if rc, ok2 := resolveSide(rightCols, *c.Right.Col); ok2 {
				parts = append(parts, joinKeyPart{left: lc, right: rc})
				continue
			}
		}
		if lc, ok := resolveSide(rightCols, c.Left); ok {
			if rc, ok2 := resolveSide(leftCols, *c.Right.Col); ok2 {
				parts = append(parts, joinKeyPart{left: rc, right: lc})
				continue
			}
		}
		residual = append(residual, c)
	}
	return parts, residual
}

func encodeKey(rec []byte, cds []ColDesc) []byte {
	var buf []byte
	for _, p := range cds {
		buf = append(buf, rec[p.Offset:p.Offset+p.Length]...)
	}
	return buf
}

func (e *SortMergeJoinExec) Begin() error {
	if err := e.left.Begin(); err != nil {
		return err
	}
	leftCols := e.left.Columns()
	e.leftRows = nil
	for !e.left.Done() {
		e.leftRows = append(e.leftRows, append([]byte(nil), e.left.Current()...))
		if err := e.left.Next(); err != nil {
			return err
		}
	}
	if err := e.left.Close(); err != nil {
		return err
	}

	if err := e.right.Begin(); err != nil {
		return err
	}
	rightCols := e.right.Columns()
	e.rightRows = nil
	for !e.right.Done() {
		e.rightRows = append(e.rightRows, append([]byte(nil), e.right.Current()...))
		if err := e.right.Next(); err != nil {
			return err
		}
	}
	if err := e.right.Close(); err != nil {
		return err
	}

	parts, residual := e.keyParts(leftCols, rightCols)
	if len(parts) == 0 {
		return dberr.NewInternal("exec: sort-merge join requires at least one equality predicate")
	}
	leftKeyCols := make([]ColDesc, len(parts))
	rightKeyCols := make([]ColDesc, len(parts))
	for i, p := range parts {
		leftKeyCols[i] = p.left
		rightKeyCols[i] = p.right
	}

	leftKeys := make([][]byte, len(e.leftRows))
	for i, r := range e.leftRows {
		leftKeys[i] = encodeKey(r, leftKeyCols)
	}
	rightKeys := make([][]byte, len(e.rightRows))
	for i, r := range e.rightRows {
		rightKeys[i] = encodeKey(r, rightKeyCols)
	}

	leftOrder := sortIndices(len(e.leftRows), func(i, j int) bool { return bytes.Compare(leftKeys[i], leftKeys[j]) < 0 })
	rightOrder := sortIndices(len(e.rightRows), func(i, j int) bool { return bytes.Compare(rightKeys[i], rightKeys[j]) < 0 })

	e.pairs = nil
	li, ri := 0, 0
	for li < len(leftOrder) && ri < len(rightOrder) {
		lk := leftKeys[leftOrder[li]]
		rk := rightKeys[rightOrder[ri]]
		cmp := bytes.Compare(lk, rk)
		switch {
		case cmp < 0:
			li++
		case cmp > 0:
			ri++
		default:
			lj := li
			for lj < len(leftOrder) && bytes.Equal(leftKeys[leftOrder[lj]], lk) {
				lj++
			}
			rj := ri
			for rj < len(rightOrder) && bytes.Equal(rightKeys[rightOrder[rj]], rk) {
				rj++
			}
			for a := li; a < lj; a++ {
				for b := ri; b < rj; b++ {
					e.pairs = append(e.pairs, [2]int{leftOrder[a], rightOrder[b]})
				}
			}
			li, ri = lj, rj
		}
	}

	e.conds = residual
	e.idx = -1
	return e.advance()
}

func sortIndices(n int, less func(i, j int) bool) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return less(idx[a], idx[b]) })
	return idx
}

func (e *SortMergeJoinExec) Next() error { return e.advance() }

func (e *SortMergeJoinExec) advance() error {
	for {
		e.idx++
		if e.idx >= len(e.pairs) {
			e.done = true
			e.curRec = nil
			return nil
		}
		p := e.pairs[e.idx]
		rec := concatRecords(e.leftRows[p[0]], e.rightRows[p[1]])
		ok, err := evalAll(e.cols, rec, e.conds)
		if err != nil {
			return err
		}
		if ok {
			e.curRec = rec
			return nil
		}
	}
}
