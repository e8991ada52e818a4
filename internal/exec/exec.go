// Package exec implements spec.md §4.6's Volcano-style executor stack:
// every operator is a pull-based iterator over fixed-width tuples,
// built from an internal/plan.Node tree by Build, and driven by
// internal/qm through Begin/Next/Done/Current/Columns/TupleLen.
//
// Grounded structurally on the teacher's total absence of a separate
// executor layer (_examples/askorykh-goDB/internal/engine/engine.go
// interleaves scanning, filtering, and projection inline per
// statement); the iterator shape and the join/scan-side predicate
// contract are grounded instead on the original this spec was
// distilled from, _examples/original_source/src/execution/
// {executor_index_scan.h, executor_nestedloop_join.h}, translated into
// Go's interface-plus-struct idiom rather than the original's
// AbstractExecutor base class.
package exec

import (
	"github.com/llll-debug/rucbase-go/internal/analyze"
	"github.com/llll-debug/rucbase-go/internal/catalog"
	"github.com/llll-debug/rucbase-go/internal/dberr"
	"github.com/llll-debug/rucbase-go/internal/heap"
	"github.com/llll-debug/rucbase-go/internal/ix"
	"github.com/llll-debug/rucbase-go/internal/types"
)

// ColDesc describes one field of an executor's output tuple: its
// source table/alias and name for predicate/output lookups, plus its
// byte range within Current()'s buffer.
type ColDesc struct {
	Alias  string
	Table  string
	Name   string
	Type   types.ColType
	Length int
	Offset int
}

// Executor is spec.md §4.6's Volcano iterator: Begin positions on the
// first tuple (if any), Next advances, Done reports exhaustion, and
// Current/Columns/TupleLen describe the tuple currently positioned on.
//
// Close is not in the original's interface but every operator that
// holds a resource needing scoped release (an internal/ix.Scanner's
// read latch) must free it once driven to exhaustion or abandoned
// early; Close is idempotent and a no-op for operators with nothing to
// release.
type Executor interface {
	Begin() error
	Next() error
	Done() bool
	Current() []byte
	Columns() []ColDesc
	TupleLen() int
	Close() error
}

// RidExecutor is implemented by executors positioned directly on a
// table's heap records (SeqScanExec, IndexScanExec), letting
// UpdateExec/DeleteExec address the row they must mutate.
type RidExecutor interface {
	Executor
	CurrentRid() types.Rid
}

func tupleLen(cols []ColDesc) int {
	n := 0
	for _, c := range cols {
		n += c.Length
	}
	return n
}

func findCol(cols []ColDesc, alias, name string) (ColDesc, bool) {
	for _, c := range cols {
		if c.Alias == alias && c.Name == name {
			return c, true
		}
	}
	return ColDesc{}, false
}

func fieldValue(rec []byte, cd ColDesc) types.Value {
	return types.Decode(rec[cd.Offset:cd.Offset+cd.Length], cd.Type)
}

func colsFromTable(t analyze.TableBinding) []ColDesc {
	cols := make([]ColDesc, len(t.Meta.Cols))
	for i, cm := range t.Meta.Cols {
		cols[i] = ColDesc{Alias: t.Alias, Table: t.Table, Name: cm.Name, Type: cm.Type, Length: cm.Length, Offset: cm.Offset}
	}
	return cols
}

// evalCondition evaluates one bound condition against rec, whose
// fields are located via cols — this is spec.md §4.6's predicate
// evaluation contract: since cols already carries each field's real
// offset within rec (biased by a left join child's tuple length for a
// join's combined record), no separate offset-adjustment step is
// needed here.
func evalCondition(cols []ColDesc, rec []byte, c analyze.BoundCondition) (bool, error) {
	leftCd, ok := findCol(cols, c.Left.Alias, c.Left.Meta.Name)
	if !ok {
		return false, dberr.NewInternal("exec: column %s.%s not present in tuple", c.Left.Alias, c.Left.Meta.Name)
	}
	leftVal := fieldValue(rec, leftCd)

	var rightVal types.Value
	if c.Right.Col != nil {
		rightCd, ok := findCol(cols, c.Right.Col.Alias, c.Right.Col.Meta.Name)
		if !ok {
			return false, dberr.NewInternal("exec: column %s.%s not present in tuple", c.Right.Col.Alias, c.Right.Col.Meta.Name)
		}
		rightVal = fieldValue(rec, rightCd)
	} else {
		rightVal = *c.Right.Val
	}

	cmp, err := types.Compare(leftVal, rightVal)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case "=":
		return cmp == 0, nil
	case "<>":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case ">":
		return cmp > 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">=":
		return cmp >= 0, nil
	default:
		return false, dberr.NewInternal("exec: unknown operator %q", c.Op)
	}
}

func evalAll(cols []ColDesc, rec []byte, conds []analyze.BoundCondition) (bool, error) {
	for _, c := range conds {
		ok, err := evalCondition(cols, rec, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// buildIndexKey concatenates rec's key-column bytes in index order.
// Records store each column in Encode's order-preserving fixed-width
// form already (internal/catalog.ColMeta.Offset/Length line up with
// internal/types.FixedLength), so this is a plain byte slice, never a
// decode/re-encode round trip.
func buildIndexKey(im catalog.IndexMeta, rec []byte) []byte {
	buf := make([]byte, 0, im.TotalLen)
	for _, cm := range im.Cols {
		buf = append(buf, rec[cm.Offset:cm.Offset+cm.Length]...)
	}
	return buf
}

// coerceValue re-encodes v as ct/length, applying the same
// widening/rejection rules internal/analyze's literal coercion uses,
// for values computed at execution time (a SET clause's arithmetic
// result) rather than parsed as literals.
func coerceValue(v types.Value, ct types.ColType, length int) (types.Value, error) {
	b, err := types.Encode(v, ct, length)
	if err != nil {
		return types.Value{}, err
	}
	return types.Decode(b, ct), nil
}

// TableAccess supplies the open heap file and index trees a plan's
// table references need; internal/qm implements it against its live
// session's file handles, keeping this package storage-handle-agnostic
// beyond the *heap.File/*ix.Tree types themselves.
type TableAccess interface {
	Heap(table string) (*heap.File, error)
	Index(table, indexName string) (*ix.Tree, error)
	AllIndexes(table string) (map[string]*ix.Tree, error)
}
