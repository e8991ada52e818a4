// Package analyze implements spec.md §4.4's binder: it turns a raw
// internal/sql.Statement into a bound statement that resolves every
// name against internal/catalog and checks type compatibility, so
// internal/plan and internal/exec never have to look a name up again.
//
// Grounded on the teacher's inline name resolution
// (_examples/askorykh-goDB/internal/engine/engine.go binds column
// names against its in-memory schema right before executing, with no
// separate binder stage or alias support), generalized into its own
// package because spec.md's grammar adds table aliases, multi-table
// JOINs, and a WHERE/JOIN-ON split the teacher's single-table engine
// never had to represent.
package analyze

import (
	"github.com/llll-debug/rucbase-go/internal/catalog"
	"github.com/llll-debug/rucbase-go/internal/dberr"
	"github.com/llll-debug/rucbase-go/internal/sql"
	"github.com/llll-debug/rucbase-go/internal/types"
)

// BoundColRef is a column reference resolved to its owning table and
// full metadata; Alias is the display name it was reached through
// (equal to Table when the query used no alias), per spec.md §4.4
// step 3: "replace aliases with real table names but preserve the
// alias for display".
type BoundColRef struct {
	Table string
	Alias string
	Meta  catalog.ColMeta
}

// BoundValueExpr is a condition's or SET clause's right-hand side
// after binding: either a column reference or a literal value in its
// own natural type, optionally combined with one more literal via
// ArithOp for the `SET col = col + literal` form (spec.md §8 S6).
type BoundValueExpr struct {
	Col      *BoundColRef
	Val      *types.Value
	ArithOp  string
	ArithVal *types.Value
}

// BoundCondition is spec.md's `col op {col|value}` after binding and
// type-compatibility checking.
type BoundCondition struct {
	Left  BoundColRef
	Op    string
	Right BoundValueExpr
}

// TableBinding is one FROM/JOIN entry resolved against the catalog.
type TableBinding struct {
	Table string
	Alias string
	Meta  catalog.TabMeta
}

// BoundJoin is one JOIN...ON clause, its ON conditions kept separate
// from WHERE per spec.md §4.4 step 6.
type BoundJoin struct {
	Table TableBinding
	On    []BoundCondition
}

// BoundOrderBy is `ORDER BY col [ASC|DESC]` after binding.
type BoundOrderBy struct {
	Col  BoundColRef
	Desc bool
}

// BoundSelect is spec.md §4.4's fully bound `Query` for a SELECT.
type BoundSelect struct {
	Tables  []TableBinding
	Joins   []BoundJoin
	Output  []BoundColRef
	IsStar  bool // true for a bare, unqualified `SELECT *`, for EXPLAIN's Project(columns=[*])
	Where   []BoundCondition
	OrderBy *BoundOrderBy
}

// BoundExplain wraps a bound SELECT for EXPLAIN.
type BoundExplain struct {
	Select *BoundSelect
}

// BoundInsert is INSERT after coercing every literal to its target
// column's type (spec.md §4.4 step 5).
type BoundInsert struct {
	Table  string
	Meta   catalog.TabMeta
	Values []types.Value // one per column, in declared order
}

// BoundSetClause is one UPDATE `col = expr` after binding.
type BoundSetClause struct {
	Col  BoundColRef
	Expr BoundValueExpr
}

// BoundUpdate is UPDATE after binding.
type BoundUpdate struct {
	Table string
	Meta  catalog.TabMeta
	Sets  []BoundSetClause
	Where []BoundCondition
}

// BoundDelete is DELETE after binding.
type BoundDelete struct {
	Table string
	Meta  catalog.TabMeta
	Where []BoundCondition
}

// Bind converts stmt into its bound form. Only SELECT/EXPLAIN/INSERT/
// UPDATE/DELETE go through the binder; DDL, introspection, transaction
// control, and SET-knob statements carry no names to resolve and are
// dispatched straight from internal/qm against the catalog.
func Bind(stmt sql.Statement, cat *catalog.Catalog) (any, error) {
	switch s := stmt.(type) {
	case *sql.SelectStmt:
		return bindSelect(s, cat)
	case *sql.ExplainStmt:
		bs, err := bindSelect(s.Inner, cat)
		if err != nil {
			return nil, err
		}
		return &BoundExplain{Select: bs}, nil
	case *sql.InsertStmt:
		return bindInsert(s, cat)
	case *sql.UpdateStmt:
		return bindUpdate(s, cat)
	case *sql.DeleteStmt:
		return bindDelete(s, cat)
	default:
		return nil, dberr.NewInternal("analyze: %T is not a bindable statement", stmt)
	}
}

// tableScope carries the alias/table maps built in step 2, and every
// bound TableBinding, to resolve later ColRefs against.
type tableScope struct {
	bindings []TableBinding
	byAlias  map[string]*TableBinding
}

func newScope() *tableScope {
	return &tableScope{byAlias: make(map[string]*TableBinding)}
}

func (sc *tableScope) add(cat *catalog.Catalog, table, alias string) error {
	if !cat.TableExists(table) {
		return dberr.ErrTableNotFound
	}
	meta, err := cat.GetTable(table)
	if err != nil {
		return err
	}
	if alias == "" {
		alias = table
	}
	if _, dup := sc.byAlias[alias]; dup {
		return dberr.NewInternal("analyze: duplicate table alias %q", alias)
	}
	sc.bindings = append(sc.bindings, TableBinding{Table: table, Alias: alias, Meta: meta})
	sc.byAlias[alias] = &sc.bindings[len(sc.bindings)-1]
	return nil
}

// resolve implements step 3/4's column binding: if ref.Table is set,
// it must name a known alias; otherwise search every bound table's
// columns for exactly one match.
func (sc *tableScope) resolve(ref sql.ColRef) (BoundColRef, error) {
	if ref.Table != "" {
		tb, ok := sc.byAlias[ref.Table]
		if !ok {
			return BoundColRef{}, dberr.ErrTableNotFound
		}
		cm, ok := tb.Meta.ColByName(ref.Col)
		if !ok {
			return BoundColRef{}, dberr.ErrColumnNotFound
		}
		return BoundColRef{Table: tb.Table, Alias: tb.Alias, Meta: cm}, nil
	}
	var found *BoundColRef
	for i := range sc.bindings {
		tb := &sc.bindings[i]
		if cm, ok := tb.Meta.ColByName(ref.Col); ok {
			if found != nil {
				return BoundColRef{}, dberr.ErrAmbiguousColumn
			}
			found = &BoundColRef{Table: tb.Table, Alias: tb.Alias, Meta: cm}
		}
	}
	if found == nil {
		return BoundColRef{}, dberr.ErrColumnNotFound
	}
	return *found, nil
}

// expandStar returns every column of every bound table, in table-list
// order, qualified by alias (spec.md §4.4 step 3: "expand `*` to
// every column of every listed table").
func (sc *tableScope) expandStar() []BoundColRef {
	var out []BoundColRef
	for _, tb := range sc.bindings {
		for _, cm := range tb.Meta.Cols {
			out = append(out, BoundColRef{Table: tb.Table, Alias: tb.Alias, Meta: cm})
		}
	}
	return out
}

func (sc *tableScope) expandTableStar(alias string) ([]BoundColRef, error) {
	tb, ok := sc.byAlias[alias]
	if !ok {
		return nil, dberr.ErrTableNotFound
	}
	out := make([]BoundColRef, len(tb.Meta.Cols))
	for i, cm := range tb.Meta.Cols {
		out[i] = BoundColRef{Table: tb.Table, Alias: tb.Alias, Meta: cm}
	}
	return out, nil
}

// literalNaturalType is the ColType a bare literal carries before it
// meets any particular column (used for WHERE/ON comparability
// checks, spec.md §4.4 step 4).
func literalNaturalType(lit sql.Literal) types.ColType {
	switch {
	case lit.IsChar:
		return types.TypeChar
	case lit.IsFloat:
		return types.TypeFloat
	default:
		return types.TypeInt
	}
}

func literalValue(lit sql.Literal) types.Value {
	switch {
	case lit.IsChar:
		return types.CharValue([]byte(lit.S))
	case lit.IsFloat:
		return types.FloatValue(float32(lit.F))
	default:
		return types.IntValue(int32(lit.I))
	}
}

// bindValueExpr binds a condition's RHS against leftType for the
// comparability check spec.md §4.4 step 4 requires.
func bindValueExpr(sc *tableScope, expr sql.ValueExpr, leftType types.ColType) (BoundValueExpr, error) {
	if expr.Col != nil {
		bc, err := sc.resolve(*expr.Col)
		if err != nil {
			return BoundValueExpr{}, err
		}
		if !types.Comparable(leftType, bc.Meta.Type) {
			return BoundValueExpr{}, dberr.NewIncompatibleType(bc.Meta.Type.String(), leftType.String())
		}
		return BoundValueExpr{Col: &bc}, nil
	}
	lit := *expr.Lit
	lt := literalNaturalType(lit)
	if !types.Comparable(leftType, lt) {
		return BoundValueExpr{}, dberr.NewIncompatibleType(lt.String(), leftType.String())
	}
	v := literalValue(lit)
	return BoundValueExpr{Val: &v}, nil
}

func bindCondition(sc *tableScope, c sql.Condition) (BoundCondition, error) {
	left, err := sc.resolve(c.Left)
	if err != nil {
		return BoundCondition{}, err
	}
	right, err := bindValueExpr(sc, c.Right, left.Meta.Type)
	if err != nil {
		return BoundCondition{}, err
	}
	return BoundCondition{Left: left, Op: c.Op, Right: right}, nil
}

func bindConditions(sc *tableScope, conds []sql.Condition) ([]BoundCondition, error) {
	out := make([]BoundCondition, 0, len(conds))
	for _, c := range conds {
		bc, err := bindCondition(sc, c)
		if err != nil {
			return nil, err
		}
		out = append(out, bc)
	}
	return out, nil
}

func bindSelect(s *sql.SelectStmt, cat *catalog.Catalog) (*BoundSelect, error) {
	sc := newScope()
	for _, tr := range s.Tables {
		if err := sc.add(cat, tr.Table, tr.Alias); err != nil {
			return nil, err
		}
	}
	var joins []BoundJoin
	for _, j := range s.Joins {
		if err := sc.add(cat, j.Table.Table, j.Table.Alias); err != nil {
			return nil, err
		}
		alias := j.Table.Alias
		if alias == "" {
			alias = j.Table.Table
		}
		on, err := bindConditions(sc, j.On)
		if err != nil {
			return nil, err
		}
		joins = append(joins, BoundJoin{
			Table: *sc.byAlias[alias],
			On:    on,
		})
	}

	isStar := len(s.Cols) == 1 && s.Cols[0].Col == "*" && s.Cols[0].Table == ""

	var output []BoundColRef
	for _, cr := range s.Cols {
		switch {
		case cr.Col == "*" && cr.Table == "":
			output = append(output, sc.expandStar()...)
		case cr.Col == "*":
			cols, err := sc.expandTableStar(cr.Table)
			if err != nil {
				return nil, err
			}
			output = append(output, cols...)
		default:
			bc, err := sc.resolve(cr)
			if err != nil {
				return nil, err
			}
			output = append(output, bc)
		}
	}

	where, err := bindConditions(sc, s.Where)
	if err != nil {
		return nil, err
	}

	var orderBy *BoundOrderBy
	if s.OrderBy != nil {
		bc, err := sc.resolve(s.OrderBy.Col)
		if err != nil {
			return nil, err
		}
		orderBy = &BoundOrderBy{Col: bc, Desc: s.OrderBy.Desc}
	}

	return &BoundSelect{Tables: sc.bindings[:len(s.Tables)], Joins: joins, Output: output, IsStar: isStar, Where: where, OrderBy: orderBy}, nil
}

// coerceLiteral implements step 5: coerce a literal to a target
// column's type, widening INT to FLOAT only, never narrowing.
func coerceLiteral(lit sql.Literal, ct types.ColType, length int) (types.Value, error) {
	switch ct {
	case types.TypeInt:
		if lit.IsChar || lit.IsFloat {
			return types.Value{}, dberr.NewIncompatibleType(literalNaturalType(lit).String(), ct.String())
		}
		return types.IntValue(int32(lit.I)), nil
	case types.TypeFloat:
		if lit.IsChar {
			return types.Value{}, dberr.NewIncompatibleType(literalNaturalType(lit).String(), ct.String())
		}
		if lit.IsFloat {
			return types.FloatValue(float32(lit.F)), nil
		}
		return types.FloatValue(float32(lit.I)), nil // INT -> FLOAT widening
	case types.TypeChar:
		if !lit.IsChar {
			return types.Value{}, dberr.NewIncompatibleType(literalNaturalType(lit).String(), ct.String())
		}
		if len(lit.S) > length {
			return types.Value{}, dberr.NewInternal("analyze: CHAR literal %q exceeds column length %d", lit.S, length)
		}
		return types.CharValue([]byte(lit.S)), nil
	default:
		return types.Value{}, dberr.NewInternal("analyze: unknown column type %d", ct)
	}
}

func bindInsert(s *sql.InsertStmt, cat *catalog.Catalog) (*BoundInsert, error) {
	if !cat.TableExists(s.Table) {
		return nil, dberr.ErrTableNotFound
	}
	meta, err := cat.GetTable(s.Table)
	if err != nil {
		return nil, err
	}
	if len(s.Values) != len(meta.Cols) {
		return nil, dberr.NewInternal("analyze: INSERT has %d values for table %q with %d columns", len(s.Values), s.Table, len(meta.Cols))
	}
	vals := make([]types.Value, len(s.Values))
	for i, lit := range s.Values {
		v, err := coerceLiteral(lit, meta.Cols[i].Type, meta.Cols[i].Length)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return &BoundInsert{Table: s.Table, Meta: meta, Values: vals}, nil
}

// bindSetExpr binds an UPDATE SET's RHS: a bare literal/column is
// coerced to the target column's type; the `col op literal`
// arithmetic form (spec.md §8 S6) requires the referenced column and
// the literal both be numeric — the actual arithmetic runs per-row in
// internal/exec, since it depends on each row's current value.
func bindSetExpr(sc *tableScope, expr sql.ValueExpr, target catalog.ColMeta) (BoundValueExpr, error) {
	var out BoundValueExpr
	switch {
	case expr.Col != nil:
		bc, err := sc.resolve(*expr.Col)
		if err != nil {
			return BoundValueExpr{}, err
		}
		if !types.Comparable(target.Type, bc.Meta.Type) {
			return BoundValueExpr{}, dberr.NewIncompatibleType(bc.Meta.Type.String(), target.Type.String())
		}
		out.Col = &bc
	case expr.Lit != nil:
		v, err := coerceLiteral(*expr.Lit, target.Type, target.Length)
		if err != nil {
			return BoundValueExpr{}, err
		}
		out.Val = &v
	}
	if expr.ArithOp != "" {
		if target.Type == types.TypeChar {
			return BoundValueExpr{}, dberr.NewIncompatibleType("CHAR", "arithmetic")
		}
		if expr.ArithLit.IsChar {
			return BoundValueExpr{}, dberr.NewIncompatibleType("CHAR", "arithmetic")
		}
		av := literalValue(*expr.ArithLit)
		out.ArithOp = expr.ArithOp
		out.ArithVal = &av
	}
	return out, nil
}

func bindUpdate(s *sql.UpdateStmt, cat *catalog.Catalog) (*BoundUpdate, error) {
	sc := newScope()
	if err := sc.add(cat, s.Table, ""); err != nil {
		return nil, err
	}
	meta := sc.bindings[0].Meta

	sets := make([]BoundSetClause, 0, len(s.Sets))
	for _, sc2 := range s.Sets {
		cm, ok := meta.ColByName(sc2.Col)
		if !ok {
			return nil, dberr.ErrColumnNotFound
		}
		expr, err := bindSetExpr(sc, sc2.Expr, cm)
		if err != nil {
			return nil, err
		}
		sets = append(sets, BoundSetClause{Col: BoundColRef{Table: s.Table, Alias: s.Table, Meta: cm}, Expr: expr})
	}

	where, err := bindConditions(sc, s.Where)
	if err != nil {
		return nil, err
	}
	return &BoundUpdate{Table: s.Table, Meta: meta, Sets: sets, Where: where}, nil
}

func bindDelete(s *sql.DeleteStmt, cat *catalog.Catalog) (*BoundDelete, error) {
	sc := newScope()
	if err := sc.add(cat, s.Table, ""); err != nil {
		return nil, err
	}
	where, err := bindConditions(sc, s.Where)
	if err != nil {
		return nil, err
	}
	return &BoundDelete{Table: s.Table, Meta: sc.bindings[0].Meta, Where: where}, nil
}
