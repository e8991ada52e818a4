package exec

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llll-debug/rucbase-go/internal/analyze"
	"github.com/llll-debug/rucbase-go/internal/bufpool"
	"github.com/llll-debug/rucbase-go/internal/catalog"
	"github.com/llll-debug/rucbase-go/internal/config"
	"github.com/llll-debug/rucbase-go/internal/dberr"
	"github.com/llll-debug/rucbase-go/internal/heap"
	"github.com/llll-debug/rucbase-go/internal/ix"
	"github.com/llll-debug/rucbase-go/internal/plan"
	"github.com/llll-debug/rucbase-go/internal/sql"
	"github.com/llll-debug/rucbase-go/internal/types"
)

// testDB wires a catalog plus live heap/index files together and
// implements TableAccess, mirroring the surface internal/qm supplies
// in the real engine.
type testDB struct {
	t     *testing.T
	dir   string
	pool  *bufpool.Pool
	cat   *catalog.Catalog
	heaps map[string]*heap.File
	trees map[string]*ix.Tree
}

func newTestDB(t *testing.T) *testDB {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "db")
	cat, err := catalog.CreateDB(dir, "testdb")
	require.NoError(t, err)
	return &testDB{
		t: t, dir: dir, pool: bufpool.New(64), cat: cat,
		heaps: make(map[string]*heap.File),
		trees: make(map[string]*ix.Tree),
	}
}

func (db *testDB) createTable(table string, cols []catalog.ColMeta) {
	db.t.Helper()
	require.NoError(db.t, db.cat.CreateTable(table, cols))
	meta, err := db.cat.GetTable(table)
	require.NoError(db.t, err)
	h, err := heap.Open(db.pool, filepath.Join(db.dir, table+".rec"), meta.RecordLength())
	require.NoError(db.t, err)
	db.heaps[table] = h
}

func (db *testDB) createIndex(table string, cols []string) {
	db.t.Helper()
	name, im, err := db.cat.AddIndex(table, cols)
	require.NoError(db.t, err)
	tree, err := ix.Create(db.pool, filepath.Join(db.dir, name+".idx"), im.TotalLen)
	require.NoError(db.t, err)
	db.trees[name] = tree
}

func (db *testDB) Heap(table string) (*heap.File, error) { return db.heaps[table], nil }
func (db *testDB) Index(table, name string) (*ix.Tree, error) { return db.trees[name], nil }
func (db *testDB) AllIndexes(table string) (map[string]*ix.Tree, error) {
	meta, err := db.cat.GetTable(table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*ix.Tree, len(meta.Indexes))
	for name := range meta.Indexes {
		out[name] = db.trees[name]
	}
	return out, nil
}

func (db *testDB) insert(t *testing.T, q string) {
	t.Helper()
	stmt, err := sql.Parse(q)
	require.NoError(t, err)
	bi, err := analyze.Bind(stmt, db.cat)
	require.NoError(t, err)
	ie, err := NewInsert(bi.(*analyze.BoundInsert), db)
	require.NoError(t, err)
	n, err := ie.Run()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func setupWarehouse(t *testing.T) *testDB {
	db := newTestDB(t)
	db.createTable("warehouse", []catalog.ColMeta{
		{Name: "id", Type: types.TypeInt},
		{Name: "name", Type: types.TypeChar, Length: 20},
		{Name: "score", Type: types.TypeFloat},
	})
	db.createIndex("warehouse", []string{"id"})
	for i := 1; i <= 5; i++ {
		db.insert(t, "INSERT INTO warehouse VALUES ("+itoa(i)+", 'row', "+itoa(i*10)+")")
	}
	return db
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

func planFor(t *testing.T, db *testDB, q string) plan.Node {
	t.Helper()
	stmt, err := sql.Parse(q)
	require.NoError(t, err)
	b, err := analyze.Bind(stmt, db.cat)
	require.NoError(t, err)
	knobs := config.NewKnobs(config.Default())
	card := func(table string) (int, error) {
		var n int
		h := db.heaps[table]
		sc := h.Scan()
		for {
			_, _, ok, err := sc.Next()
			if err != nil || !ok {
				break
			}
			n++
		}
		return n, nil
	}
	node, err := plan.Build(b.(*analyze.BoundSelect), db.cat, knobs, card)
	require.NoError(t, err)
	return node
}

func drain(t *testing.T, ex Executor) [][]byte {
	t.Helper()
	require.NoError(t, ex.Begin())
	var out [][]byte
	for !ex.Done() {
		out = append(out, append([]byte(nil), ex.Current()...))
		require.NoError(t, ex.Next())
	}
	require.NoError(t, ex.Close())
	return out
}

func TestIndexScanEqualityFindsSingleRow(t *testing.T) {
	db := setupWarehouse(t)
	node := planFor(t, db, "SELECT id, score FROM warehouse WHERE id = 3")
	ex, err := Build(node, db)
	require.NoError(t, err)
	rows := drain(t, ex)
	require.Len(t, rows, 1)
}

func TestIndexScanRangeLessThan(t *testing.T) {
	db := setupWarehouse(t)
	node := planFor(t, db, "SELECT id FROM warehouse WHERE id < 3")
	ex, err := Build(node, db)
	require.NoError(t, err)
	rows := drain(t, ex)
	require.Len(t, rows, 2) // ids 1,2
}

func TestIndexScanRangeGreaterEqual(t *testing.T) {
	db := setupWarehouse(t)
	node := planFor(t, db, "SELECT id FROM warehouse WHERE id >= 3")
	ex, err := Build(node, db)
	require.NoError(t, err)
	rows := drain(t, ex)
	require.Len(t, rows, 3) // ids 3,4,5
}

func TestSeqScanFallbackFiltersResidual(t *testing.T) {
	db := setupWarehouse(t)
	node := planFor(t, db, "SELECT id FROM warehouse WHERE score = 30")
	ex, err := Build(node, db)
	require.NoError(t, err)
	rows := drain(t, ex)
	require.Len(t, rows, 1)
}

func TestSortDescOrdersRows(t *testing.T) {
	db := setupWarehouse(t)
	node := planFor(t, db, "SELECT id FROM warehouse ORDER BY id DESC")
	ex, err := Build(node, db)
	require.NoError(t, err)
	rows := drain(t, ex)
	require.Len(t, rows, 5)
	first := types.Decode(rows[0], types.TypeInt)
	last := types.Decode(rows[len(rows)-1], types.TypeInt)
	require.Equal(t, int32(5), first.I)
	require.Equal(t, int32(1), last.I)
}

func TestNestedLoopJoinMatchesOnEquality(t *testing.T) {
	db := setupWarehouse(t)
	db.createTable("orders", []catalog.ColMeta{
		{Name: "id", Type: types.TypeInt},
		{Name: "wid", Type: types.TypeInt},
		{Name: "total", Type: types.TypeFloat},
	})
	db.insert(t, "INSERT INTO orders VALUES (1, 3, 100)")
	db.insert(t, "INSERT INTO orders VALUES (2, 9, 200)")

	node := planFor(t, db, "SELECT w.id, o.total FROM warehouse w JOIN orders o ON w.id = o.wid")
	ex, err := Build(node, db)
	require.NoError(t, err)
	rows := drain(t, ex)
	require.Len(t, rows, 1) // only wid=3 matches an existing warehouse id
}

func TestSortMergeJoinMatchesOnEquality(t *testing.T) {
	db := setupWarehouse(t)
	db.createTable("orders", []catalog.ColMeta{
		{Name: "id", Type: types.TypeInt},
		{Name: "wid", Type: types.TypeInt},
		{Name: "total", Type: types.TypeFloat},
	})
	db.insert(t, "INSERT INTO orders VALUES (1, 3, 100)")
	db.insert(t, "INSERT INTO orders VALUES (2, 4, 200)")

	f := config.Default()
	f.EnableNestedLoop, f.EnableSortMerge = false, true
	stmt, err := sql.Parse("SELECT w.id, o.total FROM warehouse w JOIN orders o ON w.id = o.wid")
	require.NoError(t, err)
	b, err := analyze.Bind(stmt, db.cat)
	require.NoError(t, err)
	knobs := config.NewKnobs(f)
	card := func(table string) (int, error) { return 5, nil }
	node, err := plan.Build(b.(*analyze.BoundSelect), db.cat, knobs, card)
	require.NoError(t, err)

	ex, err := Build(node, db)
	require.NoError(t, err)
	rows := drain(t, ex)
	require.Len(t, rows, 2)
}

func TestUpdateSelfArithmeticAndIndexMaintenance(t *testing.T) {
	db := setupWarehouse(t)
	stmt, err := sql.Parse("UPDATE warehouse SET id = id + 100 WHERE id = 3")
	require.NoError(t, err)
	bu, err := analyze.Bind(stmt, db.cat)
	require.NoError(t, err)
	ue, err := NewUpdate(bu.(*analyze.BoundUpdate), db.cat, db)
	require.NoError(t, err)
	n, err := ue.Run()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// old key gone, new key present
	meta, err := db.cat.GetTable("warehouse")
	require.NoError(t, err)
	im := meta.Indexes["warehouse_id"]
	oldKey, err := types.Encode(types.IntValue(3), types.TypeInt, 4)
	require.NoError(t, err)
	_, found, err := db.trees["warehouse_id"].Get(oldKey)
	require.NoError(t, err)
	require.False(t, found)

	newKey, err := types.Encode(types.IntValue(103), types.TypeInt, 4)
	require.NoError(t, err)
	_, found, err = db.trees["warehouse_id"].Get(newKey)
	require.NoError(t, err)
	require.True(t, found)
	_ = im
}

func TestDeleteRemovesRowAndIndexEntry(t *testing.T) {
	db := setupWarehouse(t)
	stmt, err := sql.Parse("DELETE FROM warehouse WHERE id = 2")
	require.NoError(t, err)
	bd, err := analyze.Bind(stmt, db.cat)
	require.NoError(t, err)
	de, err := NewDelete(bd.(*analyze.BoundDelete), db.cat, db)
	require.NoError(t, err)
	n, err := de.Run()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	key, err := types.Encode(types.IntValue(2), types.TypeInt, 4)
	require.NoError(t, err)
	_, found, err := db.trees["warehouse_id"].Get(key)
	require.NoError(t, err)
	require.False(t, found)
}

func TestInsertRejectsDuplicateIndexKey(t *testing.T) {
	db := setupWarehouse(t)
	stmt, err := sql.Parse("INSERT INTO warehouse VALUES (3, 'dup', 1)")
	require.NoError(t, err)
	bi, err := analyze.Bind(stmt, db.cat)
	require.NoError(t, err)
	ie, err := NewInsert(bi.(*analyze.BoundInsert), db)
	require.NoError(t, err)
	_, err = ie.Run()
	require.ErrorIs(t, err, dberr.ErrDuplicateKey)
}
