package buf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(dir, 512, false)
	require.NoError(t, err)

	frame := make([]byte, 512)
	found, err := s.ReadPage(PageID{Space: 3, PageNo: 2}, frame)
	require.NoError(t, err)
	require.False(t, found)

	for i := range frame {
		frame[i] = byte(i)
	}
	require.NoError(t, s.WritePage(PageID{Space: 3, PageNo: 2}, frame))
	require.NoError(t, s.Close())

	s, err = OpenFileStore(dir, 512, false)
	require.NoError(t, err)
	defer s.Close()
	got := make([]byte, 512)
	found, err = s.ReadPage(PageID{Space: 3, PageNo: 2}, got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, frame, got)

	// The hole before page 2 reads back as zeros.
	found, err = s.ReadPage(PageID{Space: 3, PageNo: 0}, got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, make([]byte, 512), got)

	require.ErrorIs(t, s.WritePage(PageID{Space: 3}, make([]byte, 10)), ErrShortFrame)
}

func TestFileStoreBacksPool(t *testing.T) {
	s, err := OpenFileStore(t.TempDir(), 1024, false)
	require.NoError(t, err)
	defer s.Close()
	pool := NewPool(PoolConfig{Capacity: 1, PageSize: 1024, Store: s})

	b, err := pool.Fetch(PageID{Space: 1, PageNo: 7})
	require.NoError(t, err)
	b.Frame()[100] = 0x42
	b.NoteModification(10, 20)
	b.Unfix()
	n, err := pool.FlushList(0, 20)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Evict it and read it back from the file.
	other, err := pool.Fetch(PageID{Space: 1, PageNo: 8})
	require.NoError(t, err)
	other.Unfix()
	b, err = pool.Fetch(PageID{Space: 1, PageNo: 7})
	require.NoError(t, err)
	defer b.Unfix()
	require.Equal(t, byte(0x42), b.Frame()[100])
}

func TestFileStoreDirectNeedsAlignedPages(t *testing.T) {
	_, err := OpenFileStore(t.TempDir(), 1000, true)
	require.Error(t, err)
}
