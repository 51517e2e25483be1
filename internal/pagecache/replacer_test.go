package pagecache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplacerVictimOrdersByInsertion(t *testing.T) {
	r := NewReplacer[int]()
	r.Insert(1)
	r.Insert(2)
	r.Insert(3)
	require.Equal(t, 3, r.Size())

	v, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, 2, v)

	v, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, 3, v)

	_, ok = r.Victim()
	require.False(t, ok)
	require.Equal(t, 0, r.Size())
}

func TestReplacerReInsertMovesToMostRecent(t *testing.T) {
	r := NewReplacer[int]()
	r.Insert(1)
	r.Insert(2)
	r.Insert(3)

	// Re-inserting 1 should push it behind 2 and 3 in eviction order.
	r.Insert(1)

	v, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, 2, v)

	v, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, 3, v)

	v, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestReplacerErase(t *testing.T) {
	r := NewReplacer[int]()
	r.Insert(1)
	r.Insert(2)
	r.Insert(3)

	require.True(t, r.Erase(2))
	require.False(t, r.Erase(2))
	require.Equal(t, 2, r.Size())

	v, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestReplacerEraseAbsentIsNoop(t *testing.T) {
	r := NewReplacer[int]()
	require.False(t, r.Erase(42))
	require.Equal(t, 0, r.Size())
}

func TestReplacerReusesFreedSlots(t *testing.T) {
	r := NewReplacer[int]()
	for i := 0; i < 100; i++ {
		r.Insert(i)
		_, ok := r.Victim()
		require.True(t, ok)
	}
	// Every insert/victim pair should have recycled the same handful of slots
	// rather than growing the arena unboundedly.
	require.LessOrEqual(t, len(r.nodes), 4)
}

func TestReplacerConcurrentInsertAndVictim(t *testing.T) {
	r := NewReplacer[int]()
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			r.Insert(v)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 200, r.Size())

	seen := make(map[int]bool)
	for {
		v, ok := r.Victim()
		if !ok {
			break
		}
		require.False(t, seen[v], "victim %d returned twice", v)
		seen[v] = true
	}
	require.Len(t, seen, 200)
}
