package sql

import (
	"fmt"

	"github.com/llll-debug/rucbase-go/internal/types"
)

// parser is a recursive-descent parser over the token slice tokenize
// produces. One statement per Parse call, matching spec.md §6's model
// of one `;`-terminated statement submitted at a time — grounded on
// the teacher's per-statement dispatch shape
// (_examples/askorykh-goDB/internal/sql/parser.go's uppercase-keyword
// switch) but replacing its ad hoc string splitting with real
// lookahead over tokens.
type parser struct {
	toks []token
	pos  int
}

// Parse parses one SQL statement (without the trailing `;`, which the
// caller — cmd/rucbase's statement reader — is responsible for stripping).
func Parse(stmt string) (Statement, error) {
	toks, err := tokenize(stmt)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.atEnd() {
		return nil, fmt.Errorf("sql: empty statement")
	}
	kw := p.peekUpper()
	switch kw {
	case "CREATE":
		return p.parseCreate()
	case "DROP":
		return p.parseDrop()
	case "INSERT":
		return p.parseInsert()
	case "DELETE":
		return p.parseDelete()
	case "UPDATE":
		return p.parseUpdate()
	case "SELECT":
		s, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		return s, p.expectEnd()
	case "EXPLAIN":
		p.advance()
		inner, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		return &ExplainStmt{Inner: inner}, p.expectEnd()
	case "SHOW":
		return p.parseShow()
	case "DESC":
		p.advance()
		table, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &DescStmt{Table: table}, p.expectEnd()
	case "BEGIN":
		p.advance()
		return &BeginStmt{}, p.expectEnd()
	case "COMMIT":
		p.advance()
		return &CommitStmt{}, p.expectEnd()
	case "ROLLBACK":
		p.advance()
		return &RollbackStmt{}, p.expectEnd()
	case "SET":
		return p.parseSetKnob()
	default:
		return nil, fmt.Errorf("sql: unexpected keyword %q", kw)
	}
}

// --- token cursor helpers ---

func (p *parser) atEnd() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token {
	if p.atEnd() {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *parser) peekUpper() string {
	if p.atEnd() {
		return ""
	}
	return p.toks[p.pos].text
}

func (p *parser) advance() token {
	t := p.peek()
	if !p.atEnd() {
		p.pos++
	}
	return t
}

func (p *parser) expectEnd() error {
	if !p.atEnd() {
		return fmt.Errorf("sql: unexpected trailing token %q", p.peek().raw)
	}
	return nil
}

func (p *parser) expectPunct(s string) error {
	t := p.peek()
	if t.kind != tokPunct || t.text != s {
		return fmt.Errorf("sql: expected %q, got %q", s, t.raw)
	}
	p.advance()
	return nil
}

func (p *parser) expectKeyword(s string) error {
	t := p.peek()
	if t.kind != tokIdent || t.text != s {
		return fmt.Errorf("sql: expected keyword %q, got %q", s, t.raw)
	}
	p.advance()
	return nil
}

func (p *parser) expectIdent() (string, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return "", fmt.Errorf("sql: expected identifier, got %q", t.raw)
	}
	p.advance()
	return t.raw, nil
}

func isPunct(t token, s string) bool { return t.kind == tokPunct && t.text == s }

// --- CREATE / DROP ---

func (p *parser) parseCreate() (Statement, error) {
	p.advance() // CREATE
	switch p.peekUpper() {
	case "TABLE":
		p.advance()
		return p.parseCreateTable()
	case "INDEX":
		p.advance()
		table, cols, err := p.parseTableColsList()
		if err != nil {
			return nil, err
		}
		return &CreateIndexStmt{Table: table, Cols: cols}, p.expectEnd()
	case "STATIC_CHECKPOINT":
		p.advance()
		return &CreateCheckpointStmt{}, p.expectEnd()
	default:
		return nil, fmt.Errorf("sql: expected TABLE, INDEX or STATIC_CHECKPOINT after CREATE, got %q", p.peek().raw)
	}
}

func (p *parser) parseDrop() (Statement, error) {
	p.advance() // DROP
	switch p.peekUpper() {
	case "TABLE":
		p.advance()
		table, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &DropTableStmt{Table: table}, p.expectEnd()
	case "INDEX":
		p.advance()
		table, cols, err := p.parseTableColsList()
		if err != nil {
			return nil, err
		}
		return &DropIndexStmt{Table: table, Cols: cols}, p.expectEnd()
	default:
		return nil, fmt.Errorf("sql: expected TABLE or INDEX after DROP, got %q", p.peek().raw)
	}
}

// parseTableColsList parses `t(col [, col ...])`, shared by CREATE
// INDEX / DROP INDEX.
func (p *parser) parseTableColsList() (string, []string, error) {
	table, err := p.expectIdent()
	if err != nil {
		return "", nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return "", nil, err
	}
	var cols []string
	for {
		col, err := p.expectIdent()
		if err != nil {
			return "", nil, err
		}
		cols = append(cols, col)
		if isPunct(p.peek(), ",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return "", nil, err
	}
	return table, cols, nil
}

func (p *parser) parseCreateTable() (Statement, error) {
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var cols []ColDef
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		typeName := p.peekUpper()
		var ct types.ColType
		var length int
		switch typeName {
		case "INT":
			p.advance()
			ct, length = types.TypeInt, 4
		case "FLOAT":
			p.advance()
			ct, length = types.TypeFloat, 4
		case "CHAR", "VARCHAR":
			p.advance()
			if err := p.expectPunct("("); err != nil {
				return nil, err
			}
			nt := p.peek()
			if nt.kind != tokNumber {
				return nil, fmt.Errorf("sql: expected CHAR length, got %q", nt.raw)
			}
			p.advance()
			_, n, _, err := parseNumberLiteral(nt.text)
			if err != nil {
				return nil, err
			}
			length = int(n)
			ct = types.TypeChar
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("sql: unknown column type %q", typeName)
		}
		cols = append(cols, ColDef{Name: name, Type: ct, Length: length})
		if isPunct(p.peek(), ",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &CreateTableStmt{Table: table, Cols: cols}, p.expectEnd()
}

// --- literals ---

func (p *parser) parseLiteral() (Literal, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.advance()
		isFloat, i, f, err := parseNumberLiteral(t.text)
		if err != nil {
			return Literal{}, err
		}
		return Literal{IsFloat: isFloat, I: i, F: f}, nil
	case tokString:
		p.advance()
		return Literal{IsChar: true, S: t.raw}, nil
	case tokPunct:
		if t.text == "+" || t.text == "-" {
			// unary sign on a numeric literal
			p.advance()
			nt := p.peek()
			if nt.kind != tokNumber {
				return Literal{}, fmt.Errorf("sql: expected number after %q", t.text)
			}
			p.advance()
			isFloat, i, f, err := parseNumberLiteral(nt.text)
			if err != nil {
				return Literal{}, err
			}
			if t.text == "-" {
				i, f = -i, -f
			}
			return Literal{IsFloat: isFloat, I: i, F: f}, nil
		}
	case tokIdent:
		switch t.text {
		case "TRUE":
			p.advance()
			return Literal{I: 1}, nil
		case "FALSE":
			p.advance()
			return Literal{I: 0}, nil
		}
	}
	return Literal{}, fmt.Errorf("sql: expected literal, got %q", t.raw)
}

// --- INSERT ---

func (p *parser) parseInsert() (Statement, error) {
	p.advance() // INSERT
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var vals []Literal
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		vals = append(vals, lit)
		if isPunct(p.peek(), ",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &InsertStmt{Table: table, Values: vals}, p.expectEnd()
}

// --- column / value-expr / condition parsing shared by DELETE/UPDATE/SELECT ---

func (p *parser) parseColRef() (ColRef, error) {
	t := p.peek()
	if t.kind == tokPunct && t.text == "*" {
		p.advance()
		return ColRef{Col: "*"}, nil
	}
	first, err := p.expectIdent()
	if err != nil {
		return ColRef{}, err
	}
	if isPunct(p.peek(), ".") {
		p.advance()
		if isPunct(p.peek(), "*") {
			p.advance()
			return ColRef{Table: first, Col: "*"}, nil
		}
		second, err := p.expectIdent()
		if err != nil {
			return ColRef{}, err
		}
		return ColRef{Table: first, Col: second}, nil
	}
	return ColRef{Col: first}, nil
}

func isCmpOp(t token) bool {
	if t.kind != tokPunct {
		return false
	}
	switch t.text {
	case "=", "<>", "<", ">", "<=", ">=":
		return true
	}
	return false
}

// parseValueExpr parses a condition's or SET clause's RHS: a column
// reference or a literal.
func (p *parser) parseValueExpr() (ValueExpr, error) {
	t := p.peek()
	if t.kind == tokIdent && t.text != "TRUE" && t.text != "FALSE" {
		col, err := p.parseColRef()
		if err != nil {
			return ValueExpr{}, err
		}
		return ValueExpr{Col: &col}, nil
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return ValueExpr{}, err
	}
	return ValueExpr{Lit: &lit}, nil
}

func (p *parser) parseCondition() (Condition, error) {
	left, err := p.parseColRef()
	if err != nil {
		return Condition{}, err
	}
	opTok := p.peek()
	if !isCmpOp(opTok) {
		return Condition{}, fmt.Errorf("sql: expected comparison operator, got %q", opTok.raw)
	}
	p.advance()
	right, err := p.parseValueExpr()
	if err != nil {
		return Condition{}, err
	}
	return Condition{Left: left, Op: opTok.text, Right: right}, nil
}

func (p *parser) parseConditionList() ([]Condition, error) {
	var conds []Condition
	for {
		c, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
		if p.peekUpper() == "AND" {
			p.advance()
			continue
		}
		break
	}
	return conds, nil
}

func (p *parser) parseOptionalWhere() ([]Condition, error) {
	if p.peekUpper() != "WHERE" {
		return nil, nil
	}
	p.advance()
	return p.parseConditionList()
}

// --- DELETE ---

func (p *parser) parseDelete() (Statement, error) {
	p.advance() // DELETE
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}
	return &DeleteStmt{Table: table, Where: where}, p.expectEnd()
}

// --- UPDATE ---

func (p *parser) parseUpdate() (Statement, error) {
	p.advance() // UPDATE
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	var sets []SetClause
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		expr, err := p.parseSetExpr(col)
		if err != nil {
			return nil, err
		}
		sets = append(sets, SetClause{Col: col, Expr: expr})
		if isPunct(p.peek(), ",") {
			p.advance()
			continue
		}
		break
	}
	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}
	return &UpdateStmt{Table: table, Sets: sets, Where: where}, p.expectEnd()
}

// parseSetExpr handles both `col = value` and the self-referential
// `col = col + literal` arithmetic form spec.md §8 scenario S6 needs.
func (p *parser) parseSetExpr(setCol string) (ValueExpr, error) {
	expr, err := p.parseValueExpr()
	if err != nil {
		return ValueExpr{}, err
	}
	t := p.peek()
	if t.kind == tokPunct && (t.text == "+" || t.text == "-") {
		p.advance()
		rhs, err := p.parseLiteral()
		if err != nil {
			return ValueExpr{}, err
		}
		expr.ArithOp = t.text
		expr.ArithLit = &rhs
	}
	return expr, nil
}

// --- SELECT ---

func (p *parser) parseSelect() (*SelectStmt, error) {
	p.advance() // SELECT
	var cols []ColRef
	for {
		c, err := p.parseColRef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
		if isPunct(p.peek(), ",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	var tables []TableRef
	for {
		tr, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		tables = append(tables, tr)
		if isPunct(p.peek(), ",") {
			p.advance()
			continue
		}
		break
	}
	var joins []JoinClause
	for p.peekUpper() == "JOIN" {
		p.advance()
		tr, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("ON"); err != nil {
			return nil, err
		}
		conds, err := p.parseConditionList()
		if err != nil {
			return nil, err
		}
		joins = append(joins, JoinClause{Table: tr, On: conds})
	}
	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}
	var orderBy *OrderBy
	if p.peekUpper() == "ORDER" {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		col, err := p.parseColRef()
		if err != nil {
			return nil, err
		}
		desc := false
		switch p.peekUpper() {
		case "ASC":
			p.advance()
		case "DESC":
			p.advance()
			desc = true
		}
		orderBy = &OrderBy{Col: col, Desc: desc}
	}
	return &SelectStmt{Cols: cols, Tables: tables, Joins: joins, Where: where, OrderBy: orderBy}, nil
}

func (p *parser) parseTableRef() (TableRef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return TableRef{}, err
	}
	alias := ""
	if p.peekUpper() == "AS" {
		p.advance()
		alias, err = p.expectIdent()
		if err != nil {
			return TableRef{}, err
		}
	} else if p.peek().kind == tokIdent && !isReservedWord(p.peekUpper()) {
		alias, err = p.expectIdent()
		if err != nil {
			return TableRef{}, err
		}
	}
	return TableRef{Table: name, Alias: alias}, nil
}

func isReservedWord(s string) bool {
	switch s {
	case "WHERE", "JOIN", "ORDER", "GROUP", "AND", "ON":
		return true
	}
	return false
}

// --- SHOW / SET ---

func (p *parser) parseShow() (Statement, error) {
	p.advance() // SHOW
	switch p.peekUpper() {
	case "TABLES":
		p.advance()
		return &ShowTablesStmt{}, p.expectEnd()
	case "INDEX":
		p.advance()
		if err := p.expectKeyword("FROM"); err != nil {
			return nil, err
		}
		table, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &ShowIndexStmt{Table: table}, p.expectEnd()
	default:
		return nil, fmt.Errorf("sql: expected TABLES or INDEX after SHOW, got %q", p.peek().raw)
	}
}

func (p *parser) parseSetKnob() (Statement, error) {
	p.advance() // SET
	knob, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokIdent || (t.text != "TRUE" && t.text != "FALSE") {
		return nil, fmt.Errorf("sql: expected true/false, got %q", t.raw)
	}
	p.advance()
	return &SetKnobStmt{Knob: knob, Value: t.text == "TRUE"}, p.expectEnd()
}
