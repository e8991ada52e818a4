package exec

import "github.com/llll-debug/rucbase-go/internal/analyze"

// FilterExec evaluates leftover join predicates a JoinPlan couldn't
// absorb pairwise (spec.md §4.5's defensive top-level filter case).
type FilterExec struct {
	child Executor
	conds []analyze.BoundCondition
	done  bool
}

func NewFilter(child Executor, conds []analyze.BoundCondition) *FilterExec {
	return &FilterExec{child: child, conds: conds}
}

func (e *FilterExec) Columns() []ColDesc { return e.child.Columns() }
func (e *FilterExec) TupleLen() int      { return e.child.TupleLen() }
func (e *FilterExec) Done() bool         { return e.done }
func (e *FilterExec) Current() []byte    { return e.child.Current() }
func (e *FilterExec) Close() error       { return e.child.Close() }

func (e *FilterExec) Begin() error {
	if err := e.child.Begin(); err != nil {
		return err
	}
	return e.advance()
}

func (e *FilterExec) Next() error {
	if err := e.child.Next(); err != nil {
		return err
	}
	return e.advance()
}

func (e *FilterExec) advance() error {
	for !e.child.Done() {
		ok, err := evalAll(e.child.Columns(), e.child.Current(), e.conds)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := e.child.Next(); err != nil {
			return err
		}
	}
	e.done = true
	return nil
}
