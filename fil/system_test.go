package fil

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestSystemCreateAndGet(t *testing.T) {
	sys := NewSystem()
	require.NotNil(t, sys.SysSpace())

	space, err := sys.Create("t1", 5, SpaceTablespace)
	require.NoError(t, err)
	got, err := sys.Get(5)
	require.NoError(t, err)
	require.Same(t, space, got)

	_, err = sys.Create("t1", 6, SpaceTablespace)
	require.True(t, errors.Is(err, ErrSpaceExists))
	_, err = sys.Create("t2", 5, SpaceTablespace)
	require.True(t, errors.Is(err, ErrSpaceExists))
	_, err = sys.Get(99)
	require.True(t, errors.Is(err, ErrSpaceNotFound))
}

func TestNoteModifiedOncePerCheckpoint(t *testing.T) {
	sys := NewSystem()
	space, err := sys.Create("t1", 3, SpaceTablespace)
	require.NoError(t, err)

	require.True(t, sys.NoteModified(space, 9000))
	require.False(t, sys.NoteModified(space, 9100))
	require.Equal(t, uint64(9000), space.MaxLSN())
	require.Equal(t, []*Space{space}, sys.NamedSpaces())

	sys.ClearNamed(8000)
	require.Len(t, sys.NamedSpaces(), 1)

	sys.ClearNamed(9500)
	require.Empty(t, sys.NamedSpaces())
	require.Zero(t, space.MaxLSN())
	require.True(t, sys.NoteModified(space, 9600))
}

func TestTemporarySpaceNeverNamed(t *testing.T) {
	sys := NewSystem()
	tmp, err := sys.Create("tmp", 7, SpaceTemporary)
	require.NoError(t, err)
	require.True(t, tmp.IsTemporary())
	require.False(t, sys.NoteModified(tmp, 9000))
	require.Empty(t, sys.NamedSpaces())
}
