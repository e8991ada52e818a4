// Package catalog implements spec.md §3's schema metadata
// (ColMeta/TabMeta/IndexMeta/DbMeta) and §4.3's storage manager DDL
// surface (create/drop db/table/index, show/desc, flush_meta).
//
// Grounded on the teacher's in-memory table registry
// (_examples/askorykh-goDB/internal/storage/memstore/memstore.go
// stores schema+rows per table under one mutex) generalized to the
// spec's richer metadata (multi-index tables, deterministic index
// naming, atomic whole-file catalog persistence) and separated from
// row storage entirely, since spec.md draws the catalog and the
// record heap as distinct components (§2 rows 2 and 4).
package catalog

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/llll-debug/rucbase-go/internal/dberr"
	"github.com/llll-debug/rucbase-go/internal/types"
)

// ColMeta is spec.md §3's column metadata.
type ColMeta struct {
	TableName string
	Name      string
	Type      types.ColType
	Length    int // declared length; for INT/FLOAT this is always 4
	Offset    int // byte position within a record
	HasIndex  bool
}

// IndexMeta is spec.md §3's index metadata: a table plus an ordered
// list of key columns.
type IndexMeta struct {
	TableName  string
	Cols       []ColMeta
	TotalLen   int
}

// ColNames returns the index's key columns' names in key order.
func (im IndexMeta) ColNames() []string {
	names := make([]string, len(im.Cols))
	for i, c := range im.Cols {
		names[i] = c.Name
	}
	return names
}

// IndexName is a deterministic function of (table, ordered column
// names), per spec.md §3.
func IndexName(table string, cols []string) string {
	return table + "_" + strings.Join(cols, "_")
}

// TabMeta is spec.md §3's table metadata.
type TabMeta struct {
	Name    string
	Cols    []ColMeta
	Indexes map[string]IndexMeta // index name -> meta
}

// RecordLength is the sum of the table's column lengths (spec.md §3's
// "Record" fixed-width buffer length).
func (tm TabMeta) RecordLength() int {
	n := 0
	for _, c := range tm.Cols {
		n += c.Length
	}
	return n
}

// ColByName looks up a column by name; ok is false if absent.
func (tm TabMeta) ColByName(name string) (ColMeta, bool) {
	for _, c := range tm.Cols {
		if c.Name == name {
			return c, true
		}
	}
	return ColMeta{}, false
}

// IndexesContaining returns the names of every index that has col
// among its key columns, in any position (used by DML operators to know which indexes
// they must touch when col changes — see internal/exec).
func (tm TabMeta) IndexesContaining(col string) []string {
	var names []string
	for name, im := range tm.Indexes {
		for _, c := range im.Cols {
			if c.Name == col {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

// DbMeta is spec.md §3's database metadata: name plus table registry.
type DbMeta struct {
	Name   string
	Tables map[string]TabMeta
}

// Catalog guards a DbMeta with a single lock (spec.md §5: "Catalog is
// guarded by a single lock; all DDL runs serially") and persists it
// as one gob-encoded blob (spec.md §4.3's flush_meta), overwritten
// atomically via a temp-file-then-rename.
//
// gob is used instead of the teacher's hand-rolled binary framing
// (_examples/askorykh-goDB/internal/storage/filestore/format.go)
// because the catalog is a pure in-memory Go struct tree with no
// cross-language or streaming requirement — gob is the standard-
// library serializer for exactly this shape, and no example repo in
// the pack reaches for a schema/metadata serialization library for
// an internal-only blob like this (see DESIGN.md).
type Catalog struct {
	mu   sync.Mutex
	dir  string
	meta DbMeta
}

func metaPath(dir string) string { return filepath.Join(dir, "db.meta") }

// CreateDB initializes a new database directory and an empty catalog.
func CreateDB(dir, name string) (*Catalog, error) {
	if _, err := os.Stat(dir); err == nil {
		return nil, dberr.ErrDatabaseExists
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dberr.NewUnixError("mkdir "+dir, err)
	}
	c := &Catalog{
		dir:  dir,
		meta: DbMeta{Name: name, Tables: make(map[string]TabMeta)},
	}
	if err := c.flushLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

// OpenDB loads an existing database's catalog from disk.
func OpenDB(dir string) (*Catalog, error) {
	b, err := os.ReadFile(metaPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dberr.ErrDatabaseNotFound
		}
		return nil, dberr.NewUnixError("read catalog", err)
	}
	var meta DbMeta
	dec := gob.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&meta); err != nil {
		return nil, dberr.NewInternal("catalog: corrupt db.meta: %v", err)
	}
	return &Catalog{dir: dir, meta: meta}, nil
}

// DropDB removes a database directory wholesale. Callers must have
// closed all table/index files first.
func DropDB(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return dberr.ErrDatabaseNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return dberr.NewUnixError("rmdir "+dir, err)
	}
	return nil
}

// Dir returns the database directory.
func (c *Catalog) Dir() string { return c.dir }

// flushLocked overwrites db.meta atomically. Caller must hold c.mu.
// spec.md §4.3: "All DDL calls end with a flush_meta" and §7: "any
// error before flush_meta leaves the persisted catalog unchanged" —
// guaranteed here because the temp file is only renamed over the
// real one after a fully successful encode+write.
func (c *Catalog) flushLocked() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c.meta); err != nil {
		return dberr.NewInternal("catalog: encode: %v", err)
	}
	tmp := metaPath(c.dir) + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return dberr.NewUnixError("write catalog tmp", err)
	}
	if err := os.Rename(tmp, metaPath(c.dir)); err != nil {
		return dberr.NewUnixError("rename catalog", err)
	}
	return nil
}

// FlushMeta persists the catalog now.
func (c *Catalog) FlushMeta() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

// Snapshot returns a defensive shallow copy of the in-memory DbMeta.
// Table/column slices are not aliased with internal state.
func (c *Catalog) Snapshot() DbMeta {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := DbMeta{Name: c.meta.Name, Tables: make(map[string]TabMeta, len(c.meta.Tables))}
	for k, v := range c.meta.Tables {
		out.Tables[k] = v
	}
	return out
}

// TableExists reports whether table exists.
func (c *Catalog) TableExists(table string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.meta.Tables[table]
	return ok
}

// GetTable returns the table's metadata.
func (c *Catalog) GetTable(table string) (TabMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tm, ok := c.meta.Tables[table]
	if !ok {
		return TabMeta{}, dberr.ErrTableNotFound
	}
	return tm, nil
}

// ListTables returns table names, sorted, for SHOW TABLES.
func (c *Catalog) ListTables() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.meta.Tables))
	for n := range c.meta.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CreateTable registers a new table with the given columns (already
// typed/lengthed by the caller). Offsets are computed here.
func (c *Catalog) CreateTable(table string, cols []ColMeta) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.meta.Tables[table]; exists {
		return dberr.ErrTableExists
	}
	seen := make(map[string]bool, len(cols))
	offset := 0
	final := make([]ColMeta, len(cols))
	for i, cm := range cols {
		if seen[cm.Name] {
			return dberr.NewInternal("catalog: duplicate column %q in CREATE TABLE", cm.Name)
		}
		seen[cm.Name] = true
		cm.TableName = table
		cm.Offset = offset
		cm.Length = types.FixedLength(cm.Type, cm.Length)
		offset += cm.Length
		final[i] = cm
	}

	c.meta.Tables[table] = TabMeta{Name: table, Cols: final, Indexes: make(map[string]IndexMeta)}
	return c.flushLocked()
}

// DropTable removes a table's metadata. The caller is responsible for
// deleting its heap/index files before or after this call.
func (c *Catalog) DropTable(table string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.meta.Tables[table]; !ok {
		return dberr.ErrTableNotFound
	}
	delete(c.meta.Tables, table)
	return c.flushLocked()
}

// AddIndex registers a new index on table over cols (already resolved
// to ColMeta by the caller) in memory only — unlike the catalog's
// other DDL methods it does NOT flush. Building an index also means
// backfilling every existing row, which happens outside this package
// (internal/qm scans the heap file and inserts into the new B+-tree);
// flushing here, before that backfill runs, would let a duplicate key
// found mid-backfill leave a phantom index durably persisted, in
// violation of spec.md §4.3's "any duplicate aborts the operation and
// destroys the partial index" and §7's "any error before flush_meta
// leaves the persisted catalog unchanged". Callers must call FlushMeta
// once backfill fully succeeds, or RemoveIndex to undo this
// registration on any backfill failure.
func (c *Catalog) AddIndex(table string, cols []string) (string, IndexMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tm, ok := c.meta.Tables[table]
	if !ok {
		return "", IndexMeta{}, dberr.ErrTableNotFound
	}
	name := IndexName(table, cols)
	if _, exists := tm.Indexes[name]; exists {
		return "", IndexMeta{}, dberr.ErrIndexExists
	}

	var keyCols []ColMeta
	total := 0
	for _, cn := range cols {
		cm, ok := tm.ColByName(cn)
		if !ok {
			return "", IndexMeta{}, dberr.ErrColumnNotFound
		}
		keyCols = append(keyCols, cm)
		total += cm.Length
	}

	im := IndexMeta{TableName: table, Cols: keyCols, TotalLen: total}
	tm.Indexes[name] = im
	c.meta.Tables[table] = recomputeHasIndex(tm)
	return name, im, nil
}

// RemoveIndex undoes an AddIndex registration that was never flushed —
// it does not touch disk. Used to abort a CreateIndex whose backfill
// failed partway through.
func (c *Catalog) RemoveIndex(table, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tm, ok := c.meta.Tables[table]
	if !ok {
		return
	}
	delete(tm.Indexes, name)
	c.meta.Tables[table] = recomputeHasIndex(tm)
}

// recomputeHasIndex refreshes ColMeta.HasIndex for every column of tm
// from its current Indexes set (the leftmost key column of each index
// counts as indexed, per spec.md).
func recomputeHasIndex(tm TabMeta) TabMeta {
	stillIndexed := make(map[string]bool)
	for _, im := range tm.Indexes {
		stillIndexed[im.Cols[0].Name] = true
	}
	for i, cm := range tm.Cols {
		tm.Cols[i].HasIndex = stillIndexed[cm.Name]
	}
	return tm
}

// DropIndex removes an index's metadata.
func (c *Catalog) DropIndex(table string, cols []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tm, ok := c.meta.Tables[table]
	if !ok {
		return "", dberr.ErrTableNotFound
	}
	name := IndexName(table, cols)
	if _, exists := tm.Indexes[name]; !exists {
		return "", dberr.ErrIndexNotFound
	}
	delete(tm.Indexes, name)
	tm = recomputeHasIndex(tm)

	c.meta.Tables[table] = tm
	if err := c.flushLocked(); err != nil {
		return "", err
	}
	return name, nil
}

// FindIndex returns the IndexMeta for an exact column-list match, if
// registered.
func (c *Catalog) FindIndex(table string, cols []string) (string, IndexMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tm, ok := c.meta.Tables[table]
	if !ok {
		return "", IndexMeta{}, false
	}
	name := IndexName(table, cols)
	im, ok := tm.Indexes[name]
	return name, im, ok
}

// ColDesc is one row of `DESC table`'s output, matching
// sm_manager.cpp's (Field, Type, Length) columns.
type ColDesc struct {
	Field  string
	Type   string
	Length int
}

// DescTable returns table's columns in declaration order for `DESC
// table` (spec.md §6, supplemented from sm_manager.cpp — see
// DESIGN.md). internal/qm formats this into the framed output table;
// this package only hands up the structured rows.
func (c *Catalog) DescTable(table string) ([]ColDesc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tm, ok := c.meta.Tables[table]
	if !ok {
		return nil, dberr.ErrTableNotFound
	}
	out := make([]ColDesc, len(tm.Cols))
	for i, cm := range tm.Cols {
		out[i] = ColDesc{Field: cm.Name, Type: cm.Type.String(), Length: cm.Length}
	}
	return out, nil
}

// IndexDesc is one row of `SHOW INDEX FROM table`'s output, matching
// sm_manager.cpp's (table, unique, column names) columns. Every index
// this catalog can build is unique (spec.md §4.2's duplicate-key
// rejection), so Unique is always true.
type IndexDesc struct {
	Table   string
	Unique  bool
	Columns []string
}

// ShowIndex returns table's indexes for `SHOW INDEX FROM table`,
// sorted by index name for deterministic output.
func (c *Catalog) ShowIndex(table string) ([]IndexDesc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tm, ok := c.meta.Tables[table]
	if !ok {
		return nil, dberr.ErrTableNotFound
	}
	names := make([]string, 0, len(tm.Indexes))
	for name := range tm.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]IndexDesc, len(names))
	for i, name := range names {
		im := tm.Indexes[name]
		out[i] = IndexDesc{Table: table, Unique: true, Columns: im.ColNames()}
	}
	return out, nil
}
