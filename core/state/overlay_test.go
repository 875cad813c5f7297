package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketvault/storage"
)

func TestOverlayStagesWrites(t *testing.T) {
	db := storage.NewMemDB()
	require.NoError(t, db.Put([]byte("kept"), []byte("v0")))

	overlay := NewOverlay(db)
	require.NoError(t, overlay.Put([]byte("new"), []byte("v1")))
	require.NoError(t, overlay.Delete([]byte("kept")))

	// The overlay sees its own staging.
	value, err := overlay.Get([]byte("new"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)
	ok, err := overlay.Has([]byte("kept"))
	require.NoError(t, err)
	require.False(t, ok)

	// The database does not, until commit.
	_, err = db.Get([]byte("new"))
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
	value, err = db.Get([]byte("kept"))
	require.NoError(t, err)
	require.Equal(t, []byte("v0"), value)

	require.NoError(t, overlay.Commit())

	value, err = db.Get([]byte("new"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)
	_, err = db.Get([]byte("kept"))
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestOverlayDiscard(t *testing.T) {
	db := storage.NewMemDB()
	overlay := NewOverlay(db)

	require.NoError(t, overlay.Put([]byte("a"), []byte("1")))
	require.NoError(t, overlay.Delete([]byte("b")))
	require.Equal(t, 2, overlay.Pending())

	overlay.Discard()
	require.Zero(t, overlay.Pending())

	require.NoError(t, overlay.Commit())
	_, err := db.Get([]byte("a"))
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestOverlayPutAfterDelete(t *testing.T) {
	db := storage.NewMemDB()
	require.NoError(t, db.Put([]byte("k"), []byte("v0")))

	overlay := NewOverlay(db)
	require.NoError(t, overlay.Delete([]byte("k")))
	require.NoError(t, overlay.Put([]byte("k"), []byte("v1")))

	value, err := overlay.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)

	require.NoError(t, overlay.Commit())
	value, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)
}
