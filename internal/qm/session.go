// Session dispatch: the statement-kind switch spec.md §2/§9 draws as
// internal/qm's job, grounded on the teacher's internal/engine/engine.go
// (one struct, one switch on the parsed statement's concrete type,
// executing each kind directly against its store). This module keeps
// that shape but routes SELECT/INSERT/UPDATE/DELETE/EXPLAIN through
// internal/analyze -> internal/plan -> internal/exec instead of
// interpreting the AST inline, and dispatches DDL, introspection,
// transaction control, and SET-knob statements straight against
// internal/catalog/internal/config, per internal/analyze's own package
// doc.
package qm

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llll-debug/rucbase-go/internal/analyze"
	"github.com/llll-debug/rucbase-go/internal/catalog"
	"github.com/llll-debug/rucbase-go/internal/dberr"
	"github.com/llll-debug/rucbase-go/internal/exec"
	"github.com/llll-debug/rucbase-go/internal/plan"
	"github.com/llll-debug/rucbase-go/internal/sql"
)

// Session is one client connection's dispatch context: a session id
// for log lines and SHOW PROCESSLIST-style diagnostics (SPEC_FULL.md
// §7), a reference to the shared Engine, and a lightweight
// transaction-bracket flag (spec.md's BEGIN/COMMIT/ROLLBACK are
// advisory bookkeeping only — there is no undo log to roll back
// against, matching spec.md §9's "transaction control is dispatched,
// not enforced").
type Session struct {
	ID     string
	engine *Engine
	log    *zap.SugaredLogger
	inTxn  bool
}

// NewSession opens a session against engine.
func NewSession(engine *Engine) *Session {
	id := uuid.NewString()
	return &Session{
		ID:     id,
		engine: engine,
		log:    engine.log.With("session", id[:8]),
	}
}

// Execute parses and dispatches one ';'-stripped statement, returning
// the client-facing text spec.md §6 describes: framed tables for
// query-shaped results, or a short status line for DDL/tx-control/
// SET-knob statements. Output is mirrored to output.txt when
// enable_output_file is set.
func (s *Session) Execute(raw string) (string, error) {
	start := time.Now()
	stmt, err := sql.Parse(raw)
	if err != nil {
		s.log.Infow("parse error", "stmt", raw, "err", err)
		return "", err
	}

	text, err := s.dispatch(stmt)
	dur := time.Since(start)
	if err != nil {
		s.log.Infow("statement failed", "kind", fmt.Sprintf("%T", stmt), "dur", dur, "err", err)
		return "", err
	}
	s.log.Infow("statement ok", "kind", fmt.Sprintf("%T", stmt), "dur", dur)
	if s.engine.Knobs.OutputFile() {
		_ = s.engine.mirrorOutput(text)
	}
	return text, nil
}

func (s *Session) dispatch(stmt sql.Statement) (string, error) {
	switch st := stmt.(type) {
	case *sql.CreateTableStmt:
		return s.createTable(st)
	case *sql.DropTableStmt:
		if err := s.engine.DropTable(st.Table); err != nil {
			return "", err
		}
		return "DROP TABLE OK\n", nil
	case *sql.CreateIndexStmt:
		if err := s.engine.CreateIndex(st.Table, st.Cols); err != nil {
			return "", err
		}
		return "CREATE INDEX OK\n", nil
	case *sql.DropIndexStmt:
		if err := s.engine.DropIndex(st.Table, st.Cols); err != nil {
			return "", err
		}
		return "DROP INDEX OK\n", nil
	case *sql.ShowTablesStmt:
		names := s.engine.ShowTables()
		rows := make([][]string, len(names))
		for i, n := range names {
			rows[i] = []string{n}
		}
		return formatRows([]string{"Tables"}, rows), nil
	case *sql.DescStmt:
		cols, err := s.engine.DescTable(st.Table)
		if err != nil {
			return "", err
		}
		rows := make([][]string, len(cols))
		for i, c := range cols {
			rows[i] = []string{c.Field, c.Type, fmt.Sprintf("%d", c.Length)}
		}
		return formatRows([]string{"Field", "Type", "Length"}, rows), nil
	case *sql.ShowIndexStmt:
		idx, err := s.engine.ShowIndex(st.Table)
		if err != nil {
			return "", err
		}
		rows := make([][]string, len(idx))
		for i, d := range idx {
			rows[i] = []string{d.Table, fmt.Sprintf("%v", d.Unique), joinCols(d.Columns)}
		}
		return formatRows([]string{"Table", "Unique", "Column"}, rows), nil
	case *sql.BeginStmt:
		s.inTxn = true
		return "BEGIN\n", nil
	case *sql.CommitStmt:
		s.inTxn = false
		return "COMMIT\n", nil
	case *sql.RollbackStmt:
		s.inTxn = false
		return "ROLLBACK\n", nil
	case *sql.CreateCheckpointStmt:
		if err := s.engine.StaticCheckpoint(); err != nil {
			return "", err
		}
		return "STATIC_CHECKPOINT OK\n", nil
	case *sql.SetKnobStmt:
		return s.setKnob(st)
	case *sql.InsertStmt:
		return s.runInsert(st)
	case *sql.DeleteStmt:
		return s.runDelete(st)
	case *sql.UpdateStmt:
		return s.runUpdate(st)
	case *sql.SelectStmt:
		return s.runSelect(st)
	case *sql.ExplainStmt:
		return s.runExplain(st)
	default:
		return "", dberr.NewInternal("qm: unhandled statement %T", stmt)
	}
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ","
		}
		out += c
	}
	return out
}

func (s *Session) createTable(st *sql.CreateTableStmt) (string, error) {
	cols := make([]catalog.ColMeta, len(st.Cols))
	for i, cd := range st.Cols {
		cols[i] = catalog.ColMeta{Name: cd.Name, Type: cd.Type, Length: cd.Length}
	}
	if err := s.engine.CreateTable(st.Table, cols); err != nil {
		return "", err
	}
	return "CREATE TABLE OK\n", nil
}

// setKnob wires a parsed SET statement to config.Knobs.Set (spec.md
// §6, SPEC_FULL.md §9); when the knob is enable_output_file it also
// flips the live output.txt handle rather than only the flag.
func (s *Session) setKnob(st *sql.SetKnobStmt) (string, error) {
	if !s.engine.Knobs.Set(st.Knob, st.Value) {
		return "", dberr.NewInternal("qm: unknown knob %q", st.Knob)
	}
	if st.Knob == "enable_output_file" {
		if err := s.engine.setOutputFile(st.Value); err != nil {
			return "", err
		}
	}
	return "SET OK\n", nil
}

func (s *Session) runInsert(st *sql.InsertStmt) (string, error) {
	bound, err := analyze.Bind(st, s.engine.Catalog())
	if err != nil {
		return "", err
	}
	ie, err := exec.NewInsert(bound.(*analyze.BoundInsert), s.engine)
	if err != nil {
		return "", err
	}
	n, err := ie.Run()
	if err != nil {
		return "", err
	}
	_ = s.engine.wal.Append("INSERT", st.Table)
	return fmt.Sprintf("Total record(s): %d\n", n), nil
}

func (s *Session) runDelete(st *sql.DeleteStmt) (string, error) {
	bound, err := analyze.Bind(st, s.engine.Catalog())
	if err != nil {
		return "", err
	}
	bd := bound.(*analyze.BoundDelete)
	de, err := exec.NewDelete(bd, s.engine.Catalog(), s.engine)
	if err != nil {
		return "", err
	}
	n, err := de.Run()
	if err != nil {
		return "", err
	}
	_ = s.engine.wal.Append("DELETE", st.Table)
	return fmt.Sprintf("Total record(s): %d\n", n), nil
}

func (s *Session) runUpdate(st *sql.UpdateStmt) (string, error) {
	bound, err := analyze.Bind(st, s.engine.Catalog())
	if err != nil {
		return "", err
	}
	bu := bound.(*analyze.BoundUpdate)
	ue, err := exec.NewUpdate(bu, s.engine.Catalog(), s.engine)
	if err != nil {
		return "", err
	}
	n, err := ue.Run()
	if err != nil {
		return "", err
	}
	_ = s.engine.wal.Append("UPDATE", st.Table)
	return fmt.Sprintf("Total record(s): %d\n", n), nil
}

func (s *Session) runSelect(st *sql.SelectStmt) (string, error) {
	bound, err := analyze.Bind(st, s.engine.Catalog())
	if err != nil {
		return "", err
	}
	bs := bound.(*analyze.BoundSelect)
	node, err := plan.Build(bs, s.engine.Catalog(), s.engine.Knobs, s.engine.Cardinality)
	if err != nil {
		return "", err
	}
	ex, err := exec.Build(node, s.engine)
	if err != nil {
		return "", err
	}
	cols, rows, err := drain(ex)
	if err != nil {
		return "", err
	}
	return formatTable(cols, rows), nil
}

// runExplain returns internal/plan.Explain's logical tree text as-is:
// Build already computes the physical plan Explain renders down into
// spec.md §6's abstract Scan/Filter/Project/Join format, so there is
// nothing left for this boundary to reformat.
func (s *Session) runExplain(st *sql.ExplainStmt) (string, error) {
	bound, err := analyze.Bind(st, s.engine.Catalog())
	if err != nil {
		return "", err
	}
	be := bound.(*analyze.BoundExplain)
	node, err := plan.Build(be.Select, s.engine.Catalog(), s.engine.Knobs, s.engine.Cardinality)
	if err != nil {
		return "", err
	}
	return plan.Explain(node), nil
}

// drain pulls every tuple out of ex via the Volcano Begin/Next/Done
// protocol (spec.md §4.6).
func drain(ex exec.Executor) ([]exec.ColDesc, [][]byte, error) {
	if err := ex.Begin(); err != nil {
		return nil, nil, err
	}
	defer ex.Close()
	cols := ex.Columns()
	var rows [][]byte
	for !ex.Done() {
		rec := ex.Current()
		row := make([]byte, len(rec))
		copy(row, rec)
		rows = append(rows, row)
		if err := ex.Next(); err != nil {
			return nil, nil, err
		}
	}
	return cols, rows, nil
}
