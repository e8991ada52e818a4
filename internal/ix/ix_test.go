package ix

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llll-debug/rucbase-go/internal/bufpool"
	"github.com/llll-debug/rucbase-go/internal/types"
)

const testKeyLen = 4

func openTestTree(t *testing.T) *Tree {
	t.Helper()
	pool := bufpool.New(256)
	path := filepath.Join(t.TempDir(), "t.idx")
	tr, err := Create(pool, path, testKeyLen)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func encKey(t *testing.T, v int32) []byte {
	t.Helper()
	b, err := types.Encode(types.IntValue(v), types.TypeInt, 4)
	require.NoError(t, err)
	return b
}

func TestInsertGetRoundTrip(t *testing.T) {
	tr := openTestTree(t)
	key := encKey(t, 42)
	ok, err := tr.Insert(key, types.Rid{PageNo: 1, SlotNo: 2})
	require.NoError(t, err)
	require.True(t, ok)

	rid, found, err := tr.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.Rid{PageNo: 1, SlotNo: 2}, rid)
}

func TestInsertDuplicateRejected(t *testing.T) {
	tr := openTestTree(t)
	key := encKey(t, 1)
	ok, err := tr.Insert(key, types.Rid{PageNo: 1, SlotNo: 1})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tr.Insert(key, types.Rid{PageNo: 9, SlotNo: 9})
	require.NoError(t, err)
	require.False(t, ok)

	rid, found, err := tr.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.Rid{PageNo: 1, SlotNo: 1}, rid)
}

func TestDeleteMissingKeyReportsFalse(t *testing.T) {
	tr := openTestTree(t)
	deleted, err := tr.Delete(encKey(t, 7))
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestManyInsertsForceSplitsAndRemainSorted(t *testing.T) {
	tr := openTestTree(t)
	n := 500
	for i := 0; i < n; i++ {
		ok, err := tr.Insert(encKey(t, int32(i)), types.Rid{PageNo: uint32(i), SlotNo: 0})
		require.NoError(t, err)
		require.True(t, ok, "insert %d", i)
	}

	for i := 0; i < n; i++ {
		rid, found, err := tr.Get(encKey(t, int32(i)))
		require.NoError(t, err)
		require.True(t, found, "missing key %d", i)
		require.Equal(t, uint32(i), rid.PageNo)
	}

	// Forward scan over the whole tree must be sorted and complete.
	begin := tr.LeafBegin()
	end, err := tr.LeafEnd()
	require.NoError(t, err)

	sc := tr.Scan(begin, end)
	defer sc.Close()
	count := 0
	var prev uint32
	for {
		rid, ok, err := sc.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		if count > 0 {
			require.Less(t, prev, rid.PageNo)
		}
		prev = rid.PageNo
		count++
	}
	require.Equal(t, n, count)
}

func TestDeleteAllKeysShrinksTreeCleanly(t *testing.T) {
	tr := openTestTree(t)
	n := 300
	for i := 0; i < n; i++ {
		_, err := tr.Insert(encKey(t, int32(i)), types.Rid{PageNo: uint32(i)})
		require.NoError(t, err)
	}
	// Delete in a different order than insertion to exercise both
	// left- and right-sibling coalesce/redistribute paths.
	order := rand.New(rand.NewSource(1)).Perm(n)
	for _, i := range order {
		deleted, err := tr.Delete(encKey(t, int32(i)))
		require.NoError(t, err)
		require.True(t, deleted, "delete %d", i)
	}

	for i := 0; i < n; i++ {
		_, found, err := tr.Get(encKey(t, int32(i)))
		require.NoError(t, err)
		require.False(t, found, "key %d should be gone", i)
	}

	// Tree must still function for fresh inserts after being drained.
	ok, err := tr.Insert(encKey(t, 999), types.Rid{PageNo: 999})
	require.NoError(t, err)
	require.True(t, ok)
	rid, found, err := tr.Get(encKey(t, 999))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(999), rid.PageNo)
}

func TestLowerUpperBoundCrossLeafBoundary(t *testing.T) {
	tr := openTestTree(t)
	n := 400
	for i := 0; i < n; i++ {
		_, err := tr.Insert(encKey(t, int32(i*2)), types.Rid{PageNo: uint32(i)})
		require.NoError(t, err)
	}

	// Odd values are absent; lower/upper bound on an absent key must
	// both land on the same next-present entry. The first leaf splits at
	// min size and keeps i=0..168 (keys 0..336), so 337 lies past its
	// last key and both bounds move on to slot 0 of the next leaf.
	target := encKey(t, 337) // between 336 and 338
	lb, err := tr.LowerBound(target)
	require.NoError(t, err)
	ub, err := tr.UpperBound(target)
	require.NoError(t, err)
	require.Equal(t, lb, ub)

	rid, err := tr.GetRid(lb)
	require.NoError(t, err)
	require.Equal(t, uint32(169), rid.PageNo) // key 338 -> i=169
}

func TestScanRespectsUpperBoundExclusive(t *testing.T) {
	tr := openTestTree(t)
	for i := 0; i < 50; i++ {
		_, err := tr.Insert(encKey(t, int32(i)), types.Rid{PageNo: uint32(i)})
		require.NoError(t, err)
	}

	lo, err := tr.LowerBound(encKey(t, 10))
	require.NoError(t, err)
	hi, err := tr.LowerBound(encKey(t, 20))
	require.NoError(t, err)

	sc := tr.Scan(lo, hi)
	defer sc.Close()
	var got []uint32
	for {
		rid, ok, err := sc.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, rid.PageNo)
	}
	require.Equal(t, 10, len(got))
	require.Equal(t, uint32(10), got[0])
	require.Equal(t, uint32(19), got[len(got)-1])
}

func TestReopenPersistsTree(t *testing.T) {
	pool := bufpool.New(256)
	path := filepath.Join(t.TempDir(), "t.idx")
	tr, err := Create(pool, path, testKeyLen)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		_, err := tr.Insert(encKey(t, int32(i)), types.Rid{PageNo: uint32(i)})
		require.NoError(t, err)
	}
	require.NoError(t, tr.Close())

	pool2 := bufpool.New(256)
	tr2, err := Open(pool2, path, testKeyLen)
	require.NoError(t, err)
	defer tr2.Close()

	for i := 0; i < 100; i++ {
		rid, found, err := tr2.Get(encKey(t, int32(i)))
		require.NoError(t, err)
		require.True(t, found, fmt.Sprintf("key %d", i))
		require.Equal(t, uint32(i), rid.PageNo)
	}
}
