// Package sql implements spec.md §6's SQL surface: a hand-written
// tokenizer and recursive-descent parser producing tagged-variant AST
// statements (spec.md §9's "polymorphic hierarchy via runtime
// downcasts" redesign) for internal/analyze to bind.
//
// Grounded on the teacher's per-statement parser files
// (_examples/askorykh-goDB/internal/sql/parse_*.go: one file per
// statement kind, dispatched from a single Parse entrypoint), which
// this module keeps as the file layout convention while replacing the
// teacher's whitespace-splitting implementation with a real tokenizer
// (see token.go) — the teacher's approach cannot express quoted
// strings, `t.col` qualifiers, or multi-character operators like `<=`
// that spec.md's grammar requires.
package sql

import "github.com/llll-debug/rucbase-go/internal/types"

// Statement is the tagged-variant interface every parsed statement
// implements; type-switch on the concrete type, never downcast.
type Statement interface {
	stmtNode()
}

// ColDef is one column in a CREATE TABLE column list.
type ColDef struct {
	Name   string
	Type   types.ColType
	Length int // only meaningful for CHAR
}

// CreateTableStmt is `CREATE TABLE t(col type [, ...])`.
type CreateTableStmt struct {
	Table string
	Cols  []ColDef
}

// DropTableStmt is `DROP TABLE t`.
type DropTableStmt struct {
	Table string
}

// CreateIndexStmt is `CREATE INDEX t(col [, ...])`.
type CreateIndexStmt struct {
	Table string
	Cols  []string
}

// DropIndexStmt is `DROP INDEX t(col [, ...])`.
type DropIndexStmt struct {
	Table string
	Cols  []string
}

// Literal is a parsed constant, still untyped-checked against any
// column (internal/analyze does the widening/coercion).
type Literal struct {
	IsFloat bool
	IsChar  bool
	I       int64
	F       float64
	S       string
}

// InsertStmt is `INSERT INTO t VALUES (v1, v2, ...)`.
type InsertStmt struct {
	Table  string
	Values []Literal
}

// ColRef is a (possibly unqualified) column reference, `t.col` or
// `col`, or `*` when Col == "*".
type ColRef struct {
	Table string // empty if unqualified
	Col   string
}

// ValueExpr is the RHS of a SET clause or condition: either a column
// reference, a literal, or (only for SET) a `col op literal`
// arithmetic expression — spec.md §8 S6 requires `SET v = v + 1`.
type ValueExpr struct {
	Col     *ColRef
	Lit     *Literal
	ArithOp string // "+"/"-" when both Col and an added Lit are set; "" otherwise
	ArithLit *Literal
}

// SetClause is one `col = expr` in an UPDATE statement.
type SetClause struct {
	Col  string
	Expr ValueExpr
}

// Condition is spec.md's `col op {col|value}`.
type Condition struct {
	Left  ColRef
	Op    string // one of = <> < > <= >=
	Right ValueExpr
}

// InsertStmt/DeleteStmt/UpdateStmt.

// DeleteStmt is `DELETE FROM t [WHERE ...]`.
type DeleteStmt struct {
	Table string
	Where []Condition
}

// UpdateStmt is `UPDATE t SET c = v [, ...] [WHERE ...]`.
type UpdateStmt struct {
	Table string
	Sets  []SetClause
	Where []Condition
}

// TableRef is one entry of a SELECT's FROM/JOIN list.
type TableRef struct {
	Table string
	Alias string
}

// JoinClause is one `JOIN t ON cond [AND cond ...]`.
type JoinClause struct {
	Table TableRef
	On    []Condition
}

// OrderBy is `ORDER BY col [ASC|DESC]`.
type OrderBy struct {
	Col  ColRef
	Desc bool
}

// SelectStmt is spec.md's full SELECT grammar.
type SelectStmt struct {
	Cols    []ColRef // Col == "*" with empty Table means bare "*"
	Tables  []TableRef
	Joins   []JoinClause
	Where   []Condition
	OrderBy *OrderBy
}

// ExplainStmt is `EXPLAIN select_stmt`.
type ExplainStmt struct {
	Inner *SelectStmt
}

// ShowTablesStmt is `SHOW TABLES`.
type ShowTablesStmt struct{}

// ShowIndexStmt is `SHOW INDEX FROM t`.
type ShowIndexStmt struct {
	Table string
}

// DescStmt is `DESC t`.
type DescStmt struct {
	Table string
}

// BeginStmt/CommitStmt/RollbackStmt bracket a lightweight transaction.
type BeginStmt struct{}
type CommitStmt struct{}
type RollbackStmt struct{}

// CreateCheckpointStmt is `CREATE STATIC_CHECKPOINT`.
type CreateCheckpointStmt struct{}

// SetKnobStmt is `SET knob = {true|false}`.
type SetKnobStmt struct {
	Knob  string
	Value bool
}

func (*CreateTableStmt) stmtNode()      {}
func (*DropTableStmt) stmtNode()        {}
func (*CreateIndexStmt) stmtNode()      {}
func (*DropIndexStmt) stmtNode()        {}
func (*InsertStmt) stmtNode()           {}
func (*DeleteStmt) stmtNode()           {}
func (*UpdateStmt) stmtNode()           {}
func (*SelectStmt) stmtNode()           {}
func (*ExplainStmt) stmtNode()          {}
func (*ShowTablesStmt) stmtNode()       {}
func (*ShowIndexStmt) stmtNode()        {}
func (*DescStmt) stmtNode()             {}
func (*BeginStmt) stmtNode()            {}
func (*CommitStmt) stmtNode()           {}
func (*RollbackStmt) stmtNode()         {}
func (*CreateCheckpointStmt) stmtNode() {}
func (*SetKnobStmt) stmtNode()          {}
