package exec

import (
	"github.com/llll-debug/rucbase-go/internal/analyze"
	"github.com/llll-debug/rucbase-go/internal/catalog"
	"github.com/llll-debug/rucbase-go/internal/heap"
	"github.com/llll-debug/rucbase-go/internal/ix"
	"github.com/llll-debug/rucbase-go/internal/plan"
	"github.com/llll-debug/rucbase-go/internal/types"
)

// SeqScanExec walks every live record of a table, per spec.md §4.6,
// yielding only rows that pass its residual predicates.
type SeqScanExec struct {
	table    analyze.TableBinding
	heapFile *heap.File
	residual []analyze.BoundCondition
	cols     []ColDesc

	sc     *heap.Scanner
	curRid types.Rid
	curRec []byte
	done   bool
}

func NewSeqScan(t analyze.TableBinding, h *heap.File, residual []analyze.BoundCondition) *SeqScanExec {
	return &SeqScanExec{table: t, heapFile: h, residual: residual, cols: colsFromTable(t)}
}

func (e *SeqScanExec) Columns() []ColDesc { return e.cols }
func (e *SeqScanExec) TupleLen() int      { return tupleLen(e.cols) }
func (e *SeqScanExec) Done() bool         { return e.done }
func (e *SeqScanExec) Current() []byte    { return e.curRec }
func (e *SeqScanExec) CurrentRid() types.Rid { return e.curRid }
func (e *SeqScanExec) Close() error       { return nil }

func (e *SeqScanExec) Begin() error {
	e.sc = e.heapFile.Scan()
	e.done = false
	return e.advance()
}

func (e *SeqScanExec) Next() error { return e.advance() }

func (e *SeqScanExec) advance() error {
	for {
		rid, rec, ok, err := e.sc.Next()
		if err != nil {
			return err
		}
		if !ok {
			e.done = true
			e.curRec = nil
			return nil
		}
		pass, err := evalAll(e.cols, rec, e.residual)
		if err != nil {
			return err
		}
		if pass {
			e.curRid, e.curRec = rid, rec
			return nil
		}
	}
}

// IndexScanExec walks a contiguous key range of a B+-tree index,
// derived from an equality prefix plus at most one range bound
// (spec.md §4.6), yielding rows that also pass any residual
// predicates the index couldn't absorb.
//
// The bound-construction rule below is grounded on
// _examples/original_source/src/execution/executor_index_scan.h's
// commented-out beginTuple(): build lower/upper keys from the
// equality prefix, fill trailing columns with type minima/maxima, and
// for the one range column resolve the constrained endpoint via
// LowerBound/UpperBound per its operator.
type IndexScanExec struct {
	table    analyze.TableBinding
	heapFile *heap.File
	tree     *ix.Tree
	im       catalog.IndexMeta
	eqPrefix []analyze.BoundCondition
	rangeCond *analyze.BoundCondition
	residual []analyze.BoundCondition
	cols     []ColDesc

	sc     *ix.Scanner
	curRid types.Rid
	curRec []byte
	done   bool
}

func NewIndexScan(t analyze.TableBinding, h *heap.File, tree *ix.Tree, im catalog.IndexMeta, eqPrefix []analyze.BoundCondition, rangeCond *analyze.BoundCondition, residual []analyze.BoundCondition) *IndexScanExec {
	return &IndexScanExec{
		table: t, heapFile: h, tree: tree, im: im,
		eqPrefix: eqPrefix, rangeCond: rangeCond, residual: residual,
		cols: colsFromTable(t),
	}
}

func (e *IndexScanExec) Columns() []ColDesc    { return e.cols }
func (e *IndexScanExec) TupleLen() int         { return tupleLen(e.cols) }
func (e *IndexScanExec) Done() bool            { return e.done }
func (e *IndexScanExec) Current() []byte       { return e.curRec }
func (e *IndexScanExec) CurrentRid() types.Rid { return e.curRid }

func (e *IndexScanExec) Close() error {
	if e.sc != nil {
		e.sc.Close()
		e.sc = nil
	}
	return nil
}

// buildKey concatenates the equality prefix's literal values, then
// either atVal (at column index atIdx) or a min/max filler, for every
// remaining index column in order.
func buildKey(im catalog.IndexMeta, eqPrefix []analyze.BoundCondition, atIdx int, atVal *types.Value, trailingMin bool) ([]byte, error) {
	buf := make([]byte, 0, im.TotalLen)
	for i, cm := range im.Cols {
		switch {
		case i < len(eqPrefix):
			b, err := types.Encode(*eqPrefix[i].Right.Val, cm.Type, cm.Length)
			if err != nil {
				return nil, err
			}
			buf = append(buf, b...)
		case i == atIdx && atVal != nil:
			b, err := types.Encode(*atVal, cm.Type, cm.Length)
			if err != nil {
				return nil, err
			}
			buf = append(buf, b...)
		default:
			if trailingMin {
				buf = append(buf, types.MinBytes(cm.Type, cm.Length)...)
			} else {
				buf = append(buf, types.MaxBytes(cm.Type, cm.Length)...)
			}
		}
	}
	return buf, nil
}

func computeBounds(im catalog.IndexMeta, eqPrefix []analyze.BoundCondition, rangeCond *analyze.BoundCondition, tree *ix.Tree) (types.Iid, types.Iid, error) {
	if len(eqPrefix) == 0 && rangeCond == nil {
		upper, err := tree.LeafEnd()
		if err != nil {
			return types.Iid{}, types.Iid{}, err
		}
		return tree.LeafBegin(), upper, nil
	}

	defaultLower := func() (types.Iid, error) {
		k, err := buildKey(im, eqPrefix, -1, nil, true)
		if err != nil {
			return types.Iid{}, err
		}
		return tree.LowerBound(k)
	}
	defaultUpper := func() (types.Iid, error) {
		k, err := buildKey(im, eqPrefix, -1, nil, false)
		if err != nil {
			return types.Iid{}, err
		}
		return tree.UpperBound(k)
	}

	if rangeCond == nil {
		lower, err := defaultLower()
		if err != nil {
			return types.Iid{}, types.Iid{}, err
		}
		upper, err := defaultUpper()
		if err != nil {
			return types.Iid{}, types.Iid{}, err
		}
		return lower, upper, nil
	}

	atIdx := len(eqPrefix)
	rv := *rangeCond.Right.Val
	var lower, upper types.Iid
	var err error

	switch rangeCond.Op {
	case "<":
		k, kerr := buildKey(im, eqPrefix, atIdx, &rv, true)
		if kerr != nil {
			return types.Iid{}, types.Iid{}, kerr
		}
		upper, err = tree.LowerBound(k)
		if err != nil {
			return types.Iid{}, types.Iid{}, err
		}
		lower, err = defaultLower()
	case "<=":
		k, kerr := buildKey(im, eqPrefix, atIdx, &rv, false)
		if kerr != nil {
			return types.Iid{}, types.Iid{}, kerr
		}
		upper, err = tree.UpperBound(k)
		if err != nil {
			return types.Iid{}, types.Iid{}, err
		}
		lower, err = defaultLower()
	case ">":
		k, kerr := buildKey(im, eqPrefix, atIdx, &rv, false)
		if kerr != nil {
			return types.Iid{}, types.Iid{}, kerr
		}
		lower, err = tree.UpperBound(k)
		if err != nil {
			return types.Iid{}, types.Iid{}, err
		}
		upper, err = defaultUpper()
	case ">=":
		k, kerr := buildKey(im, eqPrefix, atIdx, &rv, true)
		if kerr != nil {
			return types.Iid{}, types.Iid{}, kerr
		}
		lower, err = tree.LowerBound(k)
		if err != nil {
			return types.Iid{}, types.Iid{}, err
		}
		upper, err = defaultUpper()
	}
	if err != nil {
		return types.Iid{}, types.Iid{}, err
	}
	return lower, upper, nil
}

func (e *IndexScanExec) Begin() error {
	lower, upper, err := computeBounds(e.im, e.eqPrefix, e.rangeCond, e.tree)
	if err != nil {
		return err
	}
	e.sc = e.tree.Scan(lower, upper)
	e.done = false
	return e.advance()
}

func (e *IndexScanExec) Next() error { return e.advance() }

func (e *IndexScanExec) advance() error {
	for {
		rid, ok, err := e.sc.Next()
		if err != nil {
			return err
		}
		if !ok {
			e.done = true
			e.curRec = nil
			e.sc.Close()
			e.sc = nil
			return nil
		}
		rec, err := e.heapFile.Get(rid)
		if err != nil {
			return err
		}
		pass, err := evalAll(e.cols, rec, e.residual)
		if err != nil {
			return err
		}
		if pass {
			e.curRid, e.curRec = rid, rec
			return nil
		}
	}
}

// NewScanFromPlan builds either a SeqScanExec or an IndexScanExec from
// a plan.ScanPlan, resolving its heap file and (if used) index tree
// through ta.
func NewScanFromPlan(sp *plan.ScanPlan, ta TableAccess) (RidExecutor, error) {
	h, err := ta.Heap(sp.Table.Table)
	if err != nil {
		return nil, err
	}
	if !sp.UseIndex {
		return NewSeqScan(sp.Table, h, sp.Residual), nil
	}
	tree, err := ta.Index(sp.Table.Table, sp.IndexName)
	if err != nil {
		return nil, err
	}
	im := sp.Table.Meta.Indexes[sp.IndexName]
	return NewIndexScan(sp.Table, h, tree, im, sp.EqPrefix, sp.RangeCond, sp.Residual), nil
}
