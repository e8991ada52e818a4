package exec

import (
	"github.com/llll-debug/rucbase-go/internal/dberr"
	"github.com/llll-debug/rucbase-go/internal/plan"
)

// Build converts a plan.Node tree into its Executor tree.
func Build(n plan.Node, ta TableAccess) (Executor, error) {
	switch v := n.(type) {
	case *plan.ScanPlan:
		return NewScanFromPlan(v, ta)
	case *plan.FilterPlan:
		child, err := Build(v.Child, ta)
		if err != nil {
			return nil, err
		}
		return NewFilter(child, v.Conds), nil
	case *plan.ProjectPlan:
		child, err := Build(v.Child, ta)
		if err != nil {
			return nil, err
		}
		return NewProject(child, v.Cols), nil
	case *plan.SortPlan:
		child, err := Build(v.Child, ta)
		if err != nil {
			return nil, err
		}
		return NewSort(child, v.Col, v.Desc), nil
	case *plan.JoinPlan:
		left, err := Build(v.Left, ta)
		if err != nil {
			return nil, err
		}
		right, err := Build(v.Right, ta)
		if err != nil {
			return nil, err
		}
		if v.Algorithm == "sortmerge" {
			return NewSortMergeJoin(left, right, v.Conds), nil
		}
		return NewNestedLoopJoin(left, right, v.Conds), nil
	default:
		return nil, dberr.NewInternal("exec: unknown plan node %T", n)
	}
}
