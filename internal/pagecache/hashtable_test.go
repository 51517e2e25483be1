package pagecache

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func identityHash(k uint64) uint64 { return k }

func TestHashTableFindInsertRemove(t *testing.T) {
	h := NewHashTable[uint64, string](4, identityHash)

	_, ok := h.Find(7)
	require.False(t, ok)

	h.Insert(7, "seven")
	v, ok := h.Find(7)
	require.True(t, ok)
	require.Equal(t, "seven", v)

	require.True(t, h.Remove(7))
	require.False(t, h.Remove(7))
	_, ok = h.Find(7)
	require.False(t, ok)
}

func TestHashTableInsertOverwritesExisting(t *testing.T) {
	h := NewHashTable[uint64, string](4, identityHash)
	h.Insert(1, "a")
	h.Insert(1, "b")
	v, ok := h.Find(1)
	require.True(t, ok)
	require.Equal(t, "b", v)
}

func TestHashTableSplitsOnOverflow(t *testing.T) {
	// bucket size 2; keys 0b00, 0b01, 0b11, 0b10, 0b110. The third insert
	// splits the root and doubles the directory to depth 1, the fourth fits
	// in the even bucket, and the fifth splits that bucket and doubles the
	// directory to depth 2, leaving three buckets.
	h := NewHashTable[uint64, int](2, identityHash)

	keys := []uint64{0b00, 0b01, 0b11, 0b10, 0b110}
	for i, k := range keys {
		h.Insert(k, i)
	}

	for i, k := range keys {
		v, ok := h.Find(k)
		require.True(t, ok, "key %b missing", k)
		require.Equal(t, i, v)
	}

	require.Equal(t, 2, h.GetGlobalDepth())
	require.Equal(t, 3, h.GetNumBuckets())
}

func TestHashTableGetLocalDepthReportsMinusOneForEmptyBucket(t *testing.T) {
	h := NewHashTable[uint64, int](2, identityHash)
	// A freshly constructed table has one bucket, empty, at slot 0.
	require.Equal(t, -1, h.GetLocalDepth(0))

	h.Insert(1, 1)
	require.Equal(t, 0, h.GetLocalDepth(0))
}

func TestHashTableConcurrentInsertAndFind(t *testing.T) {
	h := NewHashTable[uint64, int](4, identityHash)
	var wg sync.WaitGroup
	const n = 500
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(k uint64) {
			defer wg.Done()
			h.Insert(k, int(k))
		}(uint64(i))
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		v, ok := h.Find(uint64(i))
		require.True(t, ok, "key %d missing", i)
		require.Equal(t, i, v)
	}
}

func TestHashTableStringKeys(t *testing.T) {
	hash := func(s string) uint64 {
		var h uint64 = 14695981039346656037
		for i := 0; i < len(s); i++ {
			h ^= uint64(s[i])
			h *= 1099511628211
		}
		return h
	}
	ht := NewHashTable[string, int](3, hash)
	for i := 0; i < 50; i++ {
		ht.Insert("key-"+strconv.Itoa(i), i)
	}
	for i := 0; i < 50; i++ {
		v, ok := ht.Find("key-" + strconv.Itoa(i))
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestNewHashTablePanicsOnInvalidArgs(t *testing.T) {
	require.Panics(t, func() { NewHashTable[uint64, int](0, identityHash) })
	require.Panics(t, func() { NewHashTable[uint64, int](1, nil) })
}
