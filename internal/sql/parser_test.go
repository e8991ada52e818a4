package sql

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llll-debug/rucbase-go/internal/types"
)

func TestParseCreateTable(t *testing.T) {
	s, err := Parse("CREATE TABLE warehouse(id INT, name CHAR(20), score FLOAT)")
	require.NoError(t, err)
	ct, ok := s.(*CreateTableStmt)
	require.True(t, ok)
	require.Equal(t, "warehouse", ct.Table)
	require.Len(t, ct.Cols, 3)
	require.Equal(t, ColDef{Name: "id", Type: types.TypeInt, Length: 4}, ct.Cols[0])
	require.Equal(t, ColDef{Name: "name", Type: types.TypeChar, Length: 20}, ct.Cols[1])
	require.Equal(t, ColDef{Name: "score", Type: types.TypeFloat, Length: 4}, ct.Cols[2])
}

func TestParseDropTable(t *testing.T) {
	s, err := Parse("DROP TABLE warehouse")
	require.NoError(t, err)
	require.Equal(t, &DropTableStmt{Table: "warehouse"}, s)
}

func TestParseCreateAndDropIndex(t *testing.T) {
	s, err := Parse("CREATE INDEX warehouse(id, name)")
	require.NoError(t, err)
	require.Equal(t, &CreateIndexStmt{Table: "warehouse", Cols: []string{"id", "name"}}, s)

	s2, err := Parse("DROP INDEX warehouse(id)")
	require.NoError(t, err)
	require.Equal(t, &DropIndexStmt{Table: "warehouse", Cols: []string{"id"}}, s2)
}

func TestParseInsertMixedLiterals(t *testing.T) {
	s, err := Parse("INSERT INTO warehouse VALUES (1, 'it''s', 3.5, -2)")
	require.NoError(t, err)
	ins, ok := s.(*InsertStmt)
	require.True(t, ok)
	require.Equal(t, "warehouse", ins.Table)
	require.Len(t, ins.Values, 4)
	require.Equal(t, Literal{I: 1}, ins.Values[0])
	require.Equal(t, Literal{IsChar: true, S: "it's"}, ins.Values[1])
	require.Equal(t, Literal{IsFloat: true, F: 3.5}, ins.Values[2])
	require.Equal(t, Literal{I: -2}, ins.Values[3])
}

func TestParseDeleteWithWhere(t *testing.T) {
	s, err := Parse("DELETE FROM warehouse WHERE id = 1 AND score > 3.5")
	require.NoError(t, err)
	del, ok := s.(*DeleteStmt)
	require.True(t, ok)
	require.Equal(t, "warehouse", del.Table)
	require.Len(t, del.Where, 2)
	require.Equal(t, "id", del.Where[0].Left.Col)
	require.Equal(t, "=", del.Where[0].Op)
	require.Equal(t, int64(1), del.Where[0].Right.Lit.I)
	require.Equal(t, ">", del.Where[1].Op)
}

func TestParseUpdateWithSelfArithmeticSet(t *testing.T) {
	s, err := Parse("UPDATE warehouse SET score = score + 1 WHERE id = 3")
	require.NoError(t, err)
	upd, ok := s.(*UpdateStmt)
	require.True(t, ok)
	require.Len(t, upd.Sets, 1)
	sc := upd.Sets[0]
	require.Equal(t, "score", sc.Col)
	require.NotNil(t, sc.Expr.Col)
	require.Equal(t, "score", sc.Expr.Col.Col)
	require.Equal(t, "+", sc.Expr.ArithOp)
	require.Equal(t, int64(1), sc.Expr.ArithLit.I)
	require.Len(t, upd.Where, 1)
}

func TestParseSelectStarSingleTable(t *testing.T) {
	s, err := Parse("SELECT * FROM warehouse WHERE id = 1")
	require.NoError(t, err)
	sel, ok := s.(*SelectStmt)
	require.True(t, ok)
	require.Len(t, sel.Cols, 1)
	require.Equal(t, "*", sel.Cols[0].Col)
	require.Len(t, sel.Tables, 1)
	require.Equal(t, "warehouse", sel.Tables[0].Table)
	require.Len(t, sel.Where, 1)
}

func TestParseSelectJoinQualifiedColsOrderBy(t *testing.T) {
	s, err := Parse("SELECT w.id, o.total FROM warehouse w JOIN orders o ON w.id = o.wid WHERE o.total > 10 ORDER BY o.total DESC")
	require.NoError(t, err)
	sel, ok := s.(*SelectStmt)
	require.True(t, ok)
	require.Len(t, sel.Cols, 2)
	require.Equal(t, ColRef{Table: "w", Col: "id"}, sel.Cols[0])
	require.Equal(t, ColRef{Table: "o", Col: "total"}, sel.Cols[1])
	require.Len(t, sel.Tables, 1)
	require.Equal(t, "w", sel.Tables[0].Alias)
	require.Len(t, sel.Joins, 1)
	require.Equal(t, "o", sel.Joins[0].Table.Alias)
	require.Len(t, sel.Joins[0].On, 1)
	require.Len(t, sel.Where, 1)
	require.NotNil(t, sel.OrderBy)
	require.True(t, sel.OrderBy.Desc)
	require.Equal(t, ColRef{Table: "o", Col: "total"}, sel.OrderBy.Col)
}

func TestParseExplainWrapsSelect(t *testing.T) {
	s, err := Parse("EXPLAIN SELECT * FROM warehouse")
	require.NoError(t, err)
	ex, ok := s.(*ExplainStmt)
	require.True(t, ok)
	require.NotNil(t, ex.Inner)
	require.Equal(t, "warehouse", ex.Inner.Tables[0].Table)
}

func TestParseShowTablesShowIndexDesc(t *testing.T) {
	s1, err := Parse("SHOW TABLES")
	require.NoError(t, err)
	require.Equal(t, &ShowTablesStmt{}, s1)

	s2, err := Parse("SHOW INDEX FROM warehouse")
	require.NoError(t, err)
	require.Equal(t, &ShowIndexStmt{Table: "warehouse"}, s2)

	s3, err := Parse("DESC warehouse")
	require.NoError(t, err)
	require.Equal(t, &DescStmt{Table: "warehouse"}, s3)
}

func TestParseTxControl(t *testing.T) {
	s1, err := Parse("BEGIN")
	require.NoError(t, err)
	require.Equal(t, &BeginStmt{}, s1)

	s2, err := Parse("COMMIT")
	require.NoError(t, err)
	require.Equal(t, &CommitStmt{}, s2)

	s3, err := Parse("ROLLBACK")
	require.NoError(t, err)
	require.Equal(t, &RollbackStmt{}, s3)
}

func TestParseCreateCheckpoint(t *testing.T) {
	s, err := Parse("CREATE STATIC_CHECKPOINT")
	require.NoError(t, err)
	require.Equal(t, &CreateCheckpointStmt{}, s)
}

func TestParseSetKnob(t *testing.T) {
	s, err := Parse("SET enable_nestloop = true")
	require.NoError(t, err)
	require.Equal(t, &SetKnobStmt{Knob: "enable_nestloop", Value: true}, s)

	s2, err := Parse("SET enable_sortmerge = false")
	require.NoError(t, err)
	require.Equal(t, &SetKnobStmt{Knob: "enable_sortmerge", Value: false}, s2)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("SELECT * FROM warehouse WHERE")
	require.Error(t, err)

	_, err = Parse("")
	require.Error(t, err)

	_, err = Parse("FROBNICATE warehouse")
	require.Error(t, err)
}
