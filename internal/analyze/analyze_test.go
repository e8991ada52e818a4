package analyze

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llll-debug/rucbase-go/internal/catalog"
	"github.com/llll-debug/rucbase-go/internal/dberr"
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
	return cat
}

func parseAndBind(t *testing.T, cat *catalog.Catalog, q string) (any, error) {
	t.Helper()
	stmt, err := sql.Parse(q)
	require.NoError(t, err)
	return Bind(stmt, cat)
}

func TestBindSelectStarSingleTable(t *testing.T) {
	cat := newTestCatalog(t)
	b, err := parseAndBind(t, cat, "SELECT * FROM warehouse WHERE id = 1")
	require.NoError(t, err)
	sel := b.(*BoundSelect)
	require.Len(t, sel.Output, 3)
	require.Equal(t, "id", sel.Output[0].Meta.Name)
	require.Len(t, sel.Where, 1)
	require.Equal(t, "warehouse", sel.Where[0].Left.Table)
	require.Equal(t, int32(1), sel.Where[0].Right.Val.I)
}

func TestBindSelectUnknownTableFails(t *testing.T) {
	cat := newTestCatalog(t)
	_, err := parseAndBind(t, cat, "SELECT * FROM nosuch")
	require.ErrorIs(t, err, dberr.ErrTableNotFound)
}

func TestBindSelectUnknownColumnFails(t *testing.T) {
	cat := newTestCatalog(t)
	_, err := parseAndBind(t, cat, "SELECT bogus FROM warehouse")
	require.ErrorIs(t, err, dberr.ErrColumnNotFound)
}

func TestBindSelectAmbiguousColumnFails(t *testing.T) {
	cat := newTestCatalog(t)
	_, err := parseAndBind(t, cat, "SELECT id FROM warehouse, orders")
	require.ErrorIs(t, err, dberr.ErrAmbiguousColumn)
}

func TestBindSelectJoinKeepsOnSeparateFromWhere(t *testing.T) {
	cat := newTestCatalog(t)
	b, err := parseAndBind(t, cat, "SELECT w.id, o.total FROM warehouse w JOIN orders o ON w.id = o.wid WHERE o.total > 10")
	require.NoError(t, err)
	sel := b.(*BoundSelect)
	require.Len(t, sel.Joins, 1)
	require.Len(t, sel.Joins[0].On, 1)
	require.Equal(t, "warehouse", sel.Joins[0].On[0].Left.Table)
	require.Len(t, sel.Where, 1)
	require.Equal(t, "orders", sel.Where[0].Left.Table)
}

func TestBindSelectStarQualifiedByAlias(t *testing.T) {
	cat := newTestCatalog(t)
	b, err := parseAndBind(t, cat, "SELECT w.* FROM warehouse w")
	require.NoError(t, err)
	sel := b.(*BoundSelect)
	require.Len(t, sel.Output, 3)
}

func TestBindWhereTypeIncompatibleFails(t *testing.T) {
	cat := newTestCatalog(t)
	_, err := parseAndBind(t, cat, "SELECT * FROM warehouse WHERE name = 5")
	require.Error(t, err)
	var it *dberr.IncompatibleType
	require.ErrorAs(t, err, &it)
}

func TestBindWhereIntFloatWideningAllowed(t *testing.T) {
	cat := newTestCatalog(t)
	b, err := parseAndBind(t, cat, "SELECT * FROM warehouse WHERE score = 5")
	require.NoError(t, err)
	sel := b.(*BoundSelect)
	require.Len(t, sel.Where, 1)
}

func TestBindInsertCoercesIntToFloat(t *testing.T) {
	cat := newTestCatalog(t)
	b, err := parseAndBind(t, cat, "INSERT INTO warehouse VALUES (1, 'widget', 5)")
	require.NoError(t, err)
	ins := b.(*BoundInsert)
	require.Len(t, ins.Values, 3)
	require.Equal(t, types.TypeFloat, ins.Values[2].Type)
	require.Equal(t, float32(5), ins.Values[2].F)
}

func TestBindInsertFloatIntoIntFails(t *testing.T) {
	cat := newTestCatalog(t)
	_, err := parseAndBind(t, cat, "INSERT INTO warehouse VALUES (1.5, 'widget', 5)")
	require.Error(t, err)
}

func TestBindInsertWrongArityFails(t *testing.T) {
	cat := newTestCatalog(t)
	_, err := parseAndBind(t, cat, "INSERT INTO warehouse VALUES (1, 'widget')")
	require.Error(t, err)
}

func TestBindUpdateSelfArithmetic(t *testing.T) {
	cat := newTestCatalog(t)
	b, err := parseAndBind(t, cat, "UPDATE warehouse SET score = score + 1 WHERE id = 3")
	require.NoError(t, err)
	upd := b.(*BoundUpdate)
	require.Len(t, upd.Sets, 1)
	set := upd.Sets[0]
	require.Equal(t, "score", set.Col.Meta.Name)
	require.NotNil(t, set.Expr.Col)
	require.Equal(t, "score", set.Expr.Col.Meta.Name)
	require.Equal(t, "+", set.Expr.ArithOp)
	require.Equal(t, int32(1), set.Expr.ArithVal.I)
}

func TestBindUpdateArithmeticOnCharFails(t *testing.T) {
	cat := newTestCatalog(t)
	_, err := parseAndBind(t, cat, "UPDATE warehouse SET name = name + 1 WHERE id = 3")
	require.Error(t, err)
}

func TestBindDelete(t *testing.T) {
	cat := newTestCatalog(t)
	b, err := parseAndBind(t, cat, "DELETE FROM warehouse WHERE id = 7")
	require.NoError(t, err)
	del := b.(*BoundDelete)
	require.Equal(t, "warehouse", del.Table)
	require.Len(t, del.Where, 1)
}

func TestBindExplainWrapsSelect(t *testing.T) {
	cat := newTestCatalog(t)
	b, err := parseAndBind(t, cat, "EXPLAIN SELECT * FROM warehouse")
	require.NoError(t, err)
	ex := b.(*BoundExplain)
	require.NotNil(t, ex.Select)
}

func TestBindOrderBy(t *testing.T) {
	cat := newTestCatalog(t)
	b, err := parseAndBind(t, cat, "SELECT * FROM warehouse ORDER BY score DESC")
	require.NoError(t, err)
	sel := b.(*BoundSelect)
	require.NotNil(t, sel.OrderBy)
	require.True(t, sel.OrderBy.Desc)
	require.Equal(t, "score", sel.OrderBy.Col.Meta.Name)
}
