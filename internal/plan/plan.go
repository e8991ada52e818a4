// Package plan implements spec.md §4.5's rule-based optimizer: it
// turns a bound internal/analyze.BoundSelect into a physical plan
// tree of Scan/Filter/Join/Project/Sort nodes, choosing index scans
// via the index-match rule and join order via the greedy left-deep
// heuristic, and can print the resulting tree for EXPLAIN.
//
// Grounded structurally on the teacher's total absence of a planner
// (_examples/askorykh-goDB/internal/engine/engine.go executes a
// single-table AST directly against memstore with no plan
// representation at all — CREATE TABLE, SELECT, etc. are each one
// switch case that does the work inline), so this package's shape —
// a tagged-variant Plan tree separate from execution — is grounded
// instead on `_examples/original_source/src/optimizer/{planner.cpp,
// query_optimizer.cpp}`, the C++ original this spec was distilled
// from, generalized from its pointer/RTTI plan hierarchy into Go's
// tagged-struct-plus-type-switch idiom.
package plan

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/llll-debug/rucbase-go/internal/analyze"
	"github.com/llll-debug/rucbase-go/internal/catalog"
	"github.com/llll-debug/rucbase-go/internal/config"
	"github.com/llll-debug/rucbase-go/internal/dberr"
	"github.com/llll-debug/rucbase-go/internal/types"
)

// Node is the tagged-variant interface every plan node implements.
type Node interface {
	planNode()
}

// ScanPlan is either a sequential or index scan over one table,
// carrying the index-match rule's chosen equality prefix and at most
// one range bound (spec.md §4.5/§4.6).
type ScanPlan struct {
	Table     analyze.TableBinding
	UseIndex  bool
	IndexName string
	IndexCols []string
	EqPrefix  []analyze.BoundCondition // equality conditions, in index column order
	RangeCond *analyze.BoundCondition  // at most one range bound, in index column order
	Residual  []analyze.BoundCondition // conditions not absorbed into the scan key
}

// FilterPlan evaluates residual predicates over its child's tuples.
type FilterPlan struct {
	Child Node
	Conds []analyze.BoundCondition
}

// JoinPlan is a binary join; Algorithm is "nestloop" or "sortmerge".
type JoinPlan struct {
	Left, Right Node
	Algorithm   string
	Conds       []analyze.BoundCondition
}

// ProjectPlan copies the selected output columns into a compact
// record.
type ProjectPlan struct {
	Child  Node
	Cols   []analyze.BoundColRef
	IsStar bool // bare, unqualified `SELECT *`; EXPLAIN prints columns=[*]
}

// SortPlan materializes and sorts its child by one column.
type SortPlan struct {
	Child Node
	Col   analyze.BoundColRef
	Desc  bool
}

func (*ScanPlan) planNode()    {}
func (*FilterPlan) planNode()  {}
func (*JoinPlan) planNode()    {}
func (*ProjectPlan) planNode() {}
func (*SortPlan) planNode()    {}

// Cardinality estimates a table's row count for the greedy join-order
// heuristic (spec.md §4.5 step 2 permits "actual row count via a full
// scan"); internal/qm supplies this from the live heap file so this
// package stays storage-agnostic.
type Cardinality func(table string) (int, error)

// Build produces a physical plan for a bound SELECT.
func Build(bs *analyze.BoundSelect, cat *catalog.Catalog, knobs *config.Knobs, card Cardinality) (Node, error) {
	tables := append(append([]analyze.TableBinding{}, bs.Tables...), joinTables(bs.Joins)...)
	if len(tables) == 0 {
		return nil, dberr.NewInternal("plan: SELECT has no tables")
	}

	allConds := append(append([]analyze.BoundCondition{}, bs.Where...), flattenOns(bs.Joins)...)
	singleTable, joinPreds := partitionConditions(allConds)

	var root Node
	var err error
	if len(tables) == 1 {
		root, err = buildScan(tables[0], singleTable[tables[0].Alias], cat)
		if err != nil {
			return nil, err
		}
	} else {
		root, err = buildJoinTree(tables, singleTable, joinPreds, cat, knobs, card)
		if err != nil {
			return nil, err
		}
	}

	if bs.OrderBy != nil {
		root = &SortPlan{Child: root, Col: bs.OrderBy.Col, Desc: bs.OrderBy.Desc}
	}
	root = &ProjectPlan{Child: root, Cols: bs.Output, IsStar: bs.IsStar}
	return root, nil
}

func joinTables(joins []analyze.BoundJoin) []analyze.TableBinding {
	out := make([]analyze.TableBinding, len(joins))
	for i, j := range joins {
		out[i] = j.Table
	}
	return out
}

func flattenOns(joins []analyze.BoundJoin) []analyze.BoundCondition {
	var out []analyze.BoundCondition
	for _, j := range joins {
		out = append(out, j.On...)
	}
	return out
}

// partitionConditions is spec.md §4.5 step 1: split predicates into
// single-table filters (keyed by table alias) and cross-table join
// predicates.
func partitionConditions(conds []analyze.BoundCondition) (map[string][]analyze.BoundCondition, []analyze.BoundCondition) {
	single := make(map[string][]analyze.BoundCondition)
	var joins []analyze.BoundCondition
	for _, c := range conds {
		if c.Right.Col != nil && c.Right.Col.Alias != c.Left.Alias {
			joins = append(joins, c)
			continue
		}
		single[c.Left.Alias] = append(single[c.Left.Alias], c)
	}
	return single, joins
}

func isEqOp(op string) bool    { return op == "=" }
func isRangeOp(op string) bool { return op == "<" || op == ">" || op == "<=" || op == ">=" }

// BuildTableScan exposes the index-match rule for internal/exec's
// UPDATE/DELETE operators, whose single-table WHERE clause deserves
// the same index selection a SELECT's WHERE gets.
func BuildTableScan(t analyze.TableBinding, conds []analyze.BoundCondition, cat *catalog.Catalog) (*ScanPlan, error) {
	return buildScan(t, conds, cat)
}

// buildScan applies the index-match rule (spec.md §4.5 "critical"
// paragraph): pick the index maximizing (matched prefix length,
// equality count within the prefix), matched columns forming a
// prefix of the index's column list.
func buildScan(t analyze.TableBinding, conds []analyze.BoundCondition, cat *catalog.Catalog) (*ScanPlan, error) {
	byCol := make(map[string][]analyze.BoundCondition)
	for _, c := range conds {
		byCol[c.Left.Meta.Name] = append(byCol[c.Left.Meta.Name], c)
	}

	var indexNames []string
	for name := range t.Meta.Indexes {
		indexNames = append(indexNames, name)
	}
	sort.Strings(indexNames)

	var best struct {
		name      string
		meta      catalog.IndexMeta
		eqPrefix  []analyze.BoundCondition
		rangeCond *analyze.BoundCondition
		used      map[*analyze.BoundCondition]bool
		prefixLen int
		numEq     int
	}

	for _, name := range indexNames {
		im := t.Meta.Indexes[name]
		var eqPrefix []analyze.BoundCondition
		var rangeCond *analyze.BoundCondition
		numEq := 0
		for _, col := range im.ColNames() {
			candidates := byCol[col]
			eqFound := false
			for i := range candidates {
				if isEqOp(candidates[i].Op) {
					eqPrefix = append(eqPrefix, candidates[i])
					numEq++
					eqFound = true
					break
				}
			}
			if eqFound {
				continue
			}
			if rangeCond == nil {
				for i := range candidates {
					if isRangeOp(candidates[i].Op) {
						rc := candidates[i]
						rangeCond = &rc
						break
					}
				}
			}
			break // either matched a range bound (stop extending) or hit a gap
		}
		prefixLen := len(eqPrefix)
		if rangeCond != nil {
			prefixLen++
		}
		if prefixLen == 0 {
			continue
		}
		if prefixLen > best.prefixLen || (prefixLen == best.prefixLen && numEq > best.numEq) {
			best.name, best.meta, best.eqPrefix, best.rangeCond = name, im, eqPrefix, rangeCond
			best.prefixLen, best.numEq = prefixLen, numEq
		}
	}

	if best.prefixLen == 0 {
		return &ScanPlan{Table: t, Residual: conds}, nil
	}

	matched := make(map[*analyze.BoundCondition]bool)
	for i := range best.eqPrefix {
		matched[&best.eqPrefix[i]] = true
	}
	var residual []analyze.BoundCondition
	for i := range conds {
		used := false
		for _, m := range best.eqPrefix {
			if sameCondition(m, conds[i]) {
				used = true
				break
			}
		}
		if !used && best.rangeCond != nil && sameCondition(*best.rangeCond, conds[i]) {
			used = true
		}
		if !used {
			residual = append(residual, conds[i])
		}
	}

	return &ScanPlan{
		Table:     t,
		UseIndex:  true,
		IndexName: best.name,
		IndexCols: best.meta.ColNames(),
		EqPrefix:  best.eqPrefix,
		RangeCond: best.rangeCond,
		Residual:  residual,
	}, nil
}

func sameCondition(a, b analyze.BoundCondition) bool {
	return a.Left.Alias == b.Left.Alias && a.Left.Meta.Name == b.Left.Meta.Name && a.Op == b.Op &&
		fmt.Sprint(a.Right) == fmt.Sprint(b.Right)
}

// buildJoinTree implements spec.md §4.5 step 2's greedy left-deep join
// order, supplemented by original_source/planner.cpp's single-forward-
// pass rule for the Cartesian fallback (see SPEC_FULL.md §4.5).
func buildJoinTree(tables []analyze.TableBinding, singleTable map[string][]analyze.BoundCondition, joinPreds []analyze.BoundCondition, cat *catalog.Catalog, knobs *config.Knobs, card Cardinality) (Node, error) {
	order := append([]analyze.TableBinding{}, tables...)
	counts := make(map[string]int, len(order))
	for _, t := range order {
		n, err := card(t.Table)
		if err != nil {
			return nil, err
		}
		counts[t.Alias] = n
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i].Alias] < counts[order[j].Alias] })

	var root Node
	scanRoot, err := buildScan(order[0], singleTable[order[0].Alias], cat)
	if err != nil {
		return nil, err
	}
	root = scanRoot
	joined := map[string]bool{order[0].Alias: true}
	remaining := order[1:]
	used := make(map[int]bool) // index into joinPreds already applied

	algorithm := "nestloop"
	if !knobs.NestedLoop() && knobs.SortMerge() {
		algorithm = "sortmerge"
	}

	for len(remaining) > 0 {
		// Scan the remaining tail once for a table already connected
		// to the joined set; if none connects, fall through with
		// idx==0 and commit to a Cartesian join with the next
		// smallest table, without looking further ahead.
		idx := 0
		for i, t := range remaining {
			if connectsTo(t.Alias, joined, joinPreds, used) {
				idx = i
				break
			}
		}

		next := remaining[idx]
		remaining = append(append([]analyze.TableBinding{}, remaining[:idx]...), remaining[idx+1:]...)

		rightScan, err := buildScan(next, singleTable[next.Alias], cat)
		if err != nil {
			return nil, err
		}

		var edgeConds []analyze.BoundCondition
		for i, c := range joinPreds {
			if used[i] {
				continue
			}
			if connectsPair(c, next.Alias, joined) {
				edgeConds = append(edgeConds, c)
				used[i] = true
			}
		}

		root = &JoinPlan{Left: root, Right: rightScan, Algorithm: algorithm, Conds: edgeConds}
		joined[next.Alias] = true
	}

	var residual []analyze.BoundCondition
	for i, c := range joinPreds {
		if !used[i] {
			residual = append(residual, c)
		}
	}
	if len(residual) > 0 {
		root = &FilterPlan{Child: root, Conds: residual}
	}
	return root, nil
}

func connectsTo(alias string, joined map[string]bool, joinPreds []analyze.BoundCondition, used map[int]bool) bool {
	for i, c := range joinPreds {
		if used[i] {
			continue
		}
		if connectsPair(c, alias, joined) {
			return true
		}
	}
	return false
}

func connectsPair(c analyze.BoundCondition, alias string, joined map[string]bool) bool {
	if c.Right.Col == nil {
		return false
	}
	a, b := c.Left.Alias, c.Right.Col.Alias
	return (a == alias && joined[b]) || (b == alias && joined[a])
}

// Explain renders the plan's logical shape per spec.md §4.5's EXPLAIN
// path: children sorted by node kind (Filter < Join < Project < Scan)
// and, within the same kind, lexicographically by a kind-specific key.
// Explain renders spec.md §4.5/§6's printable logical tree: the
// abstract node types Scan/Filter/Project/Join only, with no physical
// detail (no index name, no join algorithm) — it is deliberately not
// a rendering of the physical Node tree Build returns, since a
// physical ScanPlan may have absorbed a predicate into an index-scan
// key bound that the logical tree must still show as a Filter.
func Explain(n Node) string {
	var sb strings.Builder
	explainLogical(&sb, toLogical(n), 0)
	return sb.String()
}

// logNode is the abstract EXPLAIN tree spec.md §4.5 names: Scan,
// Filter, Project, Join — no index/algorithm annotations.
type logNode interface {
	logRank() int
}

type logScan struct{ table string }
type logFilter struct {
	child logNode
	conds []analyze.BoundCondition
}
type logJoin struct {
	left, right logNode
	conds       []analyze.BoundCondition
}
type logProject struct {
	child  logNode
	cols   []analyze.BoundColRef
	isStar bool
}

// Printing order at each node: children sorted by node kind, Filter <
// Join < Project < Scan (spec.md §4.5).
func (*logFilter) logRank() int  { return 0 }
func (*logJoin) logRank() int    { return 1 }
func (*logProject) logRank() int { return 2 }
func (*logScan) logRank() int    { return 3 }

// toLogical converts a physical plan into the abstract EXPLAIN tree.
// A ScanPlan's absorbed index-key conditions (EqPrefix/RangeCond) are
// reunited with its Residual conditions into one Filter, since the
// logical tree predates the index-match decision that split them
// apart; a SortPlan has no logical counterpart (spec.md §4.5 names
// only Scan/Filter/Project/Join) and is skipped.
func toLogical(n Node) logNode {
	switch v := n.(type) {
	case *ScanPlan:
		scan := &logScan{table: v.Table.Alias}
		conds := make([]analyze.BoundCondition, 0, len(v.EqPrefix)+len(v.Residual)+1)
		conds = append(conds, v.EqPrefix...)
		if v.RangeCond != nil {
			conds = append(conds, *v.RangeCond)
		}
		conds = append(conds, v.Residual...)
		if len(conds) == 0 {
			return scan
		}
		return &logFilter{child: scan, conds: conds}
	case *FilterPlan:
		return &logFilter{child: toLogical(v.Child), conds: v.Conds}
	case *JoinPlan:
		return &logJoin{left: toLogical(v.Left), right: toLogical(v.Right), conds: v.Conds}
	case *ProjectPlan:
		return &logProject{child: toLogical(v.Child), cols: v.Cols, isStar: v.IsStar}
	case *SortPlan:
		return toLogical(v.Child)
	default:
		return nil
	}
}

func conditionString(c analyze.BoundCondition) string {
	rhs := "?"
	switch {
	case c.Right.Col != nil:
		rhs = c.Right.Col.Alias + "." + c.Right.Col.Meta.Name
	case c.Right.Val != nil:
		rhs = valueString(*c.Right.Val)
	}
	return fmt.Sprintf("%s.%s%s%s", c.Left.Alias, c.Left.Meta.Name, c.Op, rhs)
}

func valueString(v types.Value) string {
	switch v.Type {
	case types.TypeInt:
		return strconv.FormatInt(int64(v.I), 10)
	case types.TypeFloat:
		return strconv.FormatFloat(float64(v.F), 'f', -1, 32)
	case types.TypeChar:
		return strings.TrimRight(string(v.S), "\x00")
	default:
		return ""
	}
}

// condList renders a condition set in spec.md's always-lexicographic
// order.
func condList(conds []analyze.BoundCondition) string {
	keys := make([]string, len(conds))
	for i, c := range conds {
		keys[i] = conditionString(c)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func colList(v *logProject) string {
	if v.isStar {
		return "*"
	}
	keys := make([]string, len(v.cols))
	for i, c := range v.cols {
		keys[i] = c.Alias + "." + c.Meta.Name
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// leftmostTable is the "first-table name" tie-break key spec.md §4.5
// gives Join nodes.
func leftmostTable(n logNode) string {
	switch v := n.(type) {
	case *logScan:
		return v.table
	case *logFilter:
		return leftmostTable(v.child)
	case *logProject:
		return leftmostTable(v.child)
	case *logJoin:
		return leftmostTable(v.left)
	default:
		return ""
	}
}

// leafTables lists every base table under n, for a Join node's
// `tables=[T1,T2,…]` — all tables the join subtree covers, not just
// its two immediate operands.
func leafTables(n logNode) []string {
	var out []string
	var walk func(logNode)
	walk = func(n logNode) {
		switch v := n.(type) {
		case *logScan:
			out = append(out, v.table)
		case *logFilter:
			walk(v.child)
		case *logProject:
			walk(v.child)
		case *logJoin:
			walk(v.left)
			walk(v.right)
		}
	}
	walk(n)
	sort.Strings(out)
	return out
}

func logKindKey(n logNode) string {
	switch v := n.(type) {
	case *logScan:
		return v.table
	case *logJoin:
		return leftmostTable(v)
	case *logFilter:
		return condList(v.conds)
	case *logProject:
		return colList(v)
	default:
		return ""
	}
}

func explainLogical(sb *strings.Builder, n logNode, depth int) {
	sb.WriteString(strings.Repeat("\t", depth))
	switch v := n.(type) {
	case *logScan:
		fmt.Fprintf(sb, "Scan(table=%s)\n", v.table)
	case *logFilter:
		fmt.Fprintf(sb, "Filter(condition=[%s])\n", condList(v.conds))
		explainLogical(sb, v.child, depth+1)
	case *logProject:
		fmt.Fprintf(sb, "Project(columns=[%s])\n", colList(v))
		explainLogical(sb, v.child, depth+1)
	case *logJoin:
		fmt.Fprintf(sb, "Join(tables=[%s],condition=[%s])\n", strings.Join(leafTables(v), ","), condList(v.conds))
		children := []logNode{v.left, v.right}
		sort.SliceStable(children, func(i, j int) bool {
			ri, rj := children[i].logRank(), children[j].logRank()
			if ri != rj {
				return ri < rj
			}
			return logKindKey(children[i]) < logKindKey(children[j])
		})
		for _, c := range children {
			explainLogical(sb, c, depth+1)
		}
	}
}
