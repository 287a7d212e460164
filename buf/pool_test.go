package buf

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/wilhasse/innodb-mtr/fil"
	"github.com/wilhasse/innodb-mtr/mach"
)

func TestPoolFetchHitMiss(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 2})

	page, err := pool.Fetch(PageID{Space: 1, PageNo: 1})
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	page.Unfix()

	page2, err := pool.Fetch(PageID{Space: 1, PageNo: 1})
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if page2 != page {
		t.Fatalf("expected hit on second fetch")
	}
	page2.Unfix()

	stats := pool.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPoolInitializesHeader(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 1, PageSize: 1024})
	block, err := pool.Fetch(PageID{Space: 7, PageNo: 42})
	require.NoError(t, err)
	defer block.Unfix()
	require.Len(t, block.Frame(), 1024)
	require.Equal(t, uint32(42), mach.ReadFrom4(block.Frame()[fil.PageOffset:]))
	require.Equal(t, uint32(7), mach.ReadFrom4(block.Frame()[fil.PageArchLogNoOrSpaceID:]))
}

func TestPoolEvictionBumpsGeneration(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 1})

	pageA, err := pool.Fetch(PageID{Space: 1, PageNo: 1})
	require.NoError(t, err)
	gen := pageA.Generation()

	_, err = pool.Fetch(PageID{Space: 1, PageNo: 2})
	require.True(t, errors.Is(err, ErrNoFreeFrame), "fixed page must not be evicted")

	pageA.Unfix()
	pageB, err := pool.Fetch(PageID{Space: 1, PageNo: 2})
	require.NoError(t, err)
	pageB.Unfix()
	require.NotEqual(t, gen, pageA.Generation())
	require.Nil(t, pool.Lookup(PageID{Space: 1, PageNo: 1}))
	require.Equal(t, uint64(1), pool.Stats().Evictions)
}

func TestDirtyPageIsNotEvicted(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 1})
	block, err := pool.Fetch(PageID{Space: 1, PageNo: 1})
	require.NoError(t, err)
	require.True(t, block.NoteModification(9000, 9010))
	block.Unfix()

	_, err = pool.Fetch(PageID{Space: 1, PageNo: 2})
	require.True(t, errors.Is(err, ErrNoFreeFrame))
}

func TestNoteModification(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 4})
	block, err := pool.Fetch(PageID{Space: 1, PageNo: 3})
	require.NoError(t, err)
	defer block.Unfix()

	require.False(t, block.IsDirty())
	require.True(t, block.NoteModification(100, 120))
	require.False(t, block.NoteModification(130, 150))
	require.Equal(t, uint64(100), block.OldestModification())
	require.Equal(t, uint64(150), block.NewestModification())
	require.Equal(t, uint64(100), pool.OldestModification())
	require.Equal(t, 1, pool.Stats().Dirty)
}

func TestFlushListHonoursDurableLSN(t *testing.T) {
	store := NewMemStore()
	pool := NewPool(PoolConfig{Capacity: 4, PageSize: 256, Store: store})
	obs := &CountingObserver{}

	a, err := pool.Fetch(PageID{Space: 1, PageNo: 1})
	require.NoError(t, err)
	b, err := pool.Fetch(PageID{Space: 1, PageNo: 2})
	require.NoError(t, err)
	a.NoteModification(200, 210)
	b.NoteModification(100, 110)
	b.SetFlushObserver(obs)
	a.Frame()[100] = 0xAB
	a.Unfix()
	b.Unfix()

	require.Equal(t, []PageID{{1, 2}, {1, 1}}, pool.DirtyPages())

	n, err := pool.FlushList(0, 150)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []PageID{{1, 2}}, obs.Flushed())
	require.Equal(t, uint64(200), pool.OldestModification())

	n, err = pool.FlushList(0, 210)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Zero(t, pool.OldestModification())

	img, ok := store.Page(PageID{Space: 1, PageNo: 1})
	require.True(t, ok)
	require.Equal(t, byte(0xAB), img[100])
	require.Equal(t, uint64(210), mach.ReadFrom8(img[fil.PageLSN:]))
	require.Equal(t, 2, store.Writes())
}

func TestFetchReadsFromStore(t *testing.T) {
	store := NewMemStore()
	frame := make([]byte, 128)
	frame[50] = 9
	require.NoError(t, store.WritePage(PageID{Space: 2, PageNo: 5}, frame))

	pool := NewPool(PoolConfig{Capacity: 2, PageSize: 128, Store: store})
	block, err := pool.Fetch(PageID{Space: 2, PageNo: 5})
	require.NoError(t, err)
	defer block.Unfix()
	require.Equal(t, byte(9), block.Frame()[50])

	other := NewPool(PoolConfig{Capacity: 2, PageSize: 64, Store: store})
	_, err = other.Fetch(PageID{Space: 2, PageNo: 5})
	require.True(t, errors.Is(err, ErrShortFrame))
}

func TestUnfixUnderflowPanics(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 1})
	block, err := pool.Fetch(PageID{Space: 1, PageNo: 1})
	require.NoError(t, err)
	block.Unfix()
	require.Panics(t, func() { block.Unfix() })
}
