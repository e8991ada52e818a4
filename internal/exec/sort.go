package exec

import (
	"sort"

	"github.com/llll-debug/rucbase-go/internal/analyze"
	"github.com/llll-debug/rucbase-go/internal/dberr"
	"github.com/llll-debug/rucbase-go/internal/types"
)

// SortExec materializes its child fully and sorts by one column
// (spec.md §4.6: no external/streaming sort, matching an in-memory
// engine's tuple volumes).
type SortExec struct {
	child Executor
	col   analyze.BoundColRef
	desc  bool

	cols []ColDesc
	rows [][]byte
	idx  int
}

func NewSort(child Executor, col analyze.BoundColRef, desc bool) *SortExec {
	return &SortExec{child: child, col: col, desc: desc}
}

func (e *SortExec) Columns() []ColDesc { return e.cols }
func (e *SortExec) TupleLen() int      { return tupleLen(e.cols) }
func (e *SortExec) Done() bool         { return e.idx >= len(e.rows) }
func (e *SortExec) Close() error       { return e.child.Close() }

func (e *SortExec) Current() []byte {
	if e.Done() {
		return nil
	}
	return e.rows[e.idx]
}

func (e *SortExec) Begin() error {
	if err := e.child.Begin(); err != nil {
		return err
	}
	e.cols = e.child.Columns()
	e.rows = nil
	for !e.child.Done() {
		e.rows = append(e.rows, append([]byte(nil), e.child.Current()...))
		if err := e.child.Next(); err != nil {
			return err
		}
	}
	if err := e.child.Close(); err != nil {
		return err
	}

	cd, ok := findCol(e.cols, e.col.Alias, e.col.Meta.Name)
	if !ok {
		return dberr.NewInternal("exec: ORDER BY column %s.%s missing from child tuple", e.col.Alias, e.col.Meta.Name)
	}
	sort.SliceStable(e.rows, func(i, j int) bool {
		vi := types.Decode(e.rows[i][cd.Offset:cd.Offset+cd.Length], cd.Type)
		vj := types.Decode(e.rows[j][cd.Offset:cd.Offset+cd.Length], cd.Type)
		cmp, _ := types.Compare(vi, vj)
		if e.desc {
			return cmp > 0
		}
		return cmp < 0
	})
	e.idx = 0
	return nil
}

func (e *SortExec) Next() error {
	e.idx++
	return nil
}
