package plan

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llll-debug/rucbase-go/internal/analyze"
	"github.com/llll-debug/rucbase-go/internal/catalog"
	"github.com/llll-debug/rucbase-go/internal/config"
	"github.com/llll-debug/rucbase-go/internal/sql"
	"github.com/llll-debug/rucbase-go/internal/types"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "db")
	cat, err := catalog.CreateDB(dir, "testdb")
	require.NoError(t, err)
	require.NoError(t, cat.CreateTable("warehouse", []catalog.ColMeta{
		{Name: "id", Type: types.TypeInt},
		{Name: "name", Type: types.TypeChar, Length: 20},
		{Name: "score", Type: types.TypeFloat},
	}))
	require.NoError(t, cat.CreateTable("orders", []catalog.ColMeta{
		{Name: "id", Type: types.TypeInt},
		{Name: "wid", Type: types.TypeInt},
		{Name: "total", Type: types.TypeFloat},
	}))
	_, _, err = cat.AddIndex("warehouse", []string{"id"})
	require.NoError(t, err)
	return cat
}

func bindQuery(t *testing.T, cat *catalog.Catalog, q string) *analyze.BoundSelect {
	t.Helper()
	stmt, err := sql.Parse(q)
	require.NoError(t, err)
	b, err := analyze.Bind(stmt, cat)
	require.NoError(t, err)
	return b.(*analyze.BoundSelect)
}

func constantCardinality(counts map[string]int) Cardinality {
	return func(table string) (int, error) { return counts[table], nil }
}

func TestBuildSingleTableUsesIndexOnEquality(t *testing.T) {
	cat := newTestCatalog(t)
	bs := bindQuery(t, cat, "SELECT * FROM warehouse WHERE id = 3")
	knobs := config.NewKnobs(config.Default())
	root, err := Build(bs, cat, knobs, constantCardinality(nil))
	require.NoError(t, err)

	proj, ok := root.(*ProjectPlan)
	require.True(t, ok)
	scan, ok := proj.Child.(*ScanPlan)
	require.True(t, ok)
	require.True(t, scan.UseIndex)
	require.Equal(t, "warehouse_id", scan.IndexName)
	require.Len(t, scan.EqPrefix, 1)
	require.Empty(t, scan.Residual)
}

func TestBuildSingleTableFallsBackToSeqScan(t *testing.T) {
	cat := newTestCatalog(t)
	bs := bindQuery(t, cat, "SELECT * FROM warehouse WHERE name = 'x'")
	knobs := config.NewKnobs(config.Default())
	root, err := Build(bs, cat, knobs, constantCardinality(nil))
	require.NoError(t, err)
	proj := root.(*ProjectPlan)
	scan := proj.Child.(*ScanPlan)
	require.False(t, scan.UseIndex)
	require.Len(t, scan.Residual, 1)
}

func TestBuildJoinOrdersBySmallestCardinalityFirst(t *testing.T) {
	cat := newTestCatalog(t)
	bs := bindQuery(t, cat, "SELECT w.id, o.total FROM warehouse w JOIN orders o ON w.id = o.wid")
	knobs := config.NewKnobs(config.Default())
	card := constantCardinality(map[string]int{"warehouse": 1000, "orders": 5})
	root, err := Build(bs, cat, knobs, card)
	require.NoError(t, err)

	proj := root.(*ProjectPlan)
	join, ok := proj.Child.(*JoinPlan)
	require.True(t, ok)
	leftScan, ok := join.Left.(*ScanPlan)
	require.True(t, ok)
	require.Equal(t, "orders", leftScan.Table.Table, "smaller cardinality table should seed the left-deep tree")
	rightScan, ok := join.Right.(*ScanPlan)
	require.True(t, ok)
	require.Equal(t, "warehouse", rightScan.Table.Table)
	require.Len(t, join.Conds, 1)
}

func TestBuildJoinNestLoopWinsWhenBothKnobsOn(t *testing.T) {
	cat := newTestCatalog(t)
	bs := bindQuery(t, cat, "SELECT * FROM warehouse w JOIN orders o ON w.id = o.wid")
	f := config.Default()
	f.EnableNestedLoop, f.EnableSortMerge = true, true
	knobs := config.NewKnobs(f)
	root, err := Build(bs, cat, knobs, constantCardinality(nil))
	require.NoError(t, err)
	join := root.(*ProjectPlan).Child.(*JoinPlan)
	require.Equal(t, "nestloop", join.Algorithm)
}

func TestBuildJoinUsesSortMergeWhenNestLoopDisabled(t *testing.T) {
	cat := newTestCatalog(t)
	bs := bindQuery(t, cat, "SELECT * FROM warehouse w JOIN orders o ON w.id = o.wid")
	f := config.Default()
	f.EnableNestedLoop, f.EnableSortMerge = false, true
	knobs := config.NewKnobs(f)
	root, err := Build(bs, cat, knobs, constantCardinality(nil))
	require.NoError(t, err)
	join := root.(*ProjectPlan).Child.(*JoinPlan)
	require.Equal(t, "sortmerge", join.Algorithm)
}

func TestBuildOrderByWrapsSort(t *testing.T) {
	cat := newTestCatalog(t)
	bs := bindQuery(t, cat, "SELECT * FROM warehouse ORDER BY score DESC")
	knobs := config.NewKnobs(config.Default())
	root, err := Build(bs, cat, knobs, constantCardinality(nil))
	require.NoError(t, err)
	proj := root.(*ProjectPlan)
	sortPlan, ok := proj.Child.(*SortPlan)
	require.True(t, ok)
	require.True(t, sortPlan.Desc)
	require.Equal(t, "score", sortPlan.Col.Meta.Name)
}

func TestExplainOrdersChildrenByKind(t *testing.T) {
	cat := newTestCatalog(t)
	bs := bindQuery(t, cat, "SELECT * FROM warehouse WHERE name = 'x'")
	knobs := config.NewKnobs(config.Default())
	root, err := Build(bs, cat, knobs, constantCardinality(nil))
	require.NoError(t, err)
	out := Explain(root)
	require.Contains(t, out, "Project(columns=[*])")
	require.Contains(t, out, "Filter(condition=[warehouse.name=x])")
	require.Contains(t, out, "Scan(table=warehouse)")
	require.NotContains(t, out, "SeqScan")
}
