package exec

import (
	"github.com/llll-debug/rucbase-go/internal/analyze"
	"github.com/llll-debug/rucbase-go/internal/dberr"
)

// ProjectExec copies the bound output columns into a compact record,
// per spec.md §4.6.
type ProjectExec struct {
	child   Executor
	outCols []analyze.BoundColRef
	cols    []ColDesc
	curRec  []byte
}

func NewProject(child Executor, outCols []analyze.BoundColRef) *ProjectExec {
	cols := make([]ColDesc, len(outCols))
	offset := 0
	for i, oc := range outCols {
		cols[i] = ColDesc{Alias: oc.Alias, Table: oc.Table, Name: oc.Meta.Name, Type: oc.Meta.Type, Length: oc.Meta.Length, Offset: offset}
		offset += oc.Meta.Length
	}
	return &ProjectExec{child: child, outCols: outCols, cols: cols}
}

func (e *ProjectExec) Columns() []ColDesc { return e.cols }
func (e *ProjectExec) TupleLen() int      { return tupleLen(e.cols) }
func (e *ProjectExec) Done() bool         { return e.child.Done() }
func (e *ProjectExec) Current() []byte    { return e.curRec }
func (e *ProjectExec) Close() error       { return e.child.Close() }

func (e *ProjectExec) Begin() error {
	if err := e.child.Begin(); err != nil {
		return err
	}
	return e.pull()
}

func (e *ProjectExec) Next() error {
	if err := e.child.Next(); err != nil {
		return err
	}
	return e.pull()
}

func (e *ProjectExec) pull() error {
	if e.child.Done() {
		e.curRec = nil
		return nil
	}
	childCols := e.child.Columns()
	rec := e.child.Current()
	buf := make([]byte, e.TupleLen())
	for i, oc := range e.outCols {
		cd, ok := findCol(childCols, oc.Alias, oc.Meta.Name)
		if !ok {
			return dberr.NewInternal("exec: projected column %s.%s missing from child tuple", oc.Alias, oc.Meta.Name)
		}
		copy(buf[e.cols[i].Offset:e.cols[i].Offset+e.cols[i].Length], rec[cd.Offset:cd.Offset+cd.Length])
	}
	e.curRec = buf
	return nil
}
