package bufpool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llll-debug/rucbase-go/internal/diskmgr"
)

func openTestFile(t *testing.T) *diskmgr.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.dat")
	f, err := diskmgr.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestNewPageFetchRoundTrip(t *testing.T) {
	pool := New(4)
	fileID := pool.RegisterFile(openTestFile(t))

	g, err := pool.NewPage(fileID)
	require.NoError(t, err)
	copy(g.Data(), []byte("hello"))
	g.MarkDirty()
	g.Unpin(true)

	require.NoError(t, pool.FlushAll(fileID))

	g2, err := pool.Fetch(fileID, 0)
	require.NoError(t, err)
	defer g2.Unpin(false)
	require.Equal(t, byte('h'), g2.Data()[0])
}

func TestEvictionRespectsPins(t *testing.T) {
	pool := New(1)
	fileID := pool.RegisterFile(openTestFile(t))

	g0, err := pool.NewPage(fileID)
	require.NoError(t, err)
	// pool capacity is 1 and g0 stays pinned; allocating a second page
	// must fail since nothing can be evicted.
	_, err = pool.NewPage(fileID)
	require.Error(t, err)

	g0.Unpin(false)

	g1, err := pool.NewPage(fileID)
	require.NoError(t, err)
	g1.Unpin(false)
}

func TestDirtyPageFlushedOnEviction(t *testing.T) {
	pool := New(1)
	fileID := pool.RegisterFile(openTestFile(t))

	g0, err := pool.NewPage(fileID)
	require.NoError(t, err)
	copy(g0.Data(), []byte("dirty"))
	g0.Unpin(true)

	// Evict page 0 by loading a new page into the single-slot pool.
	g1, err := pool.NewPage(fileID)
	require.NoError(t, err)
	g1.Unpin(false)

	g0again, err := pool.Fetch(fileID, 0)
	require.NoError(t, err)
	defer g0again.Unpin(false)
	require.Equal(t, byte('d'), g0again.Data()[0])
}
