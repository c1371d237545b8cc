package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store BlobStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "dogs/rex/1.jpg", []byte("rex-1")))
	require.NoError(t, store.Put(ctx, "dogs/bella/1.jpg", []byte("bella-1")))
	require.NoError(t, store.Put(ctx, "snapshots/catalog.paw", []byte("snapshot")))

	names, err := store.List(ctx, "dogs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"dogs/bella/1.jpg", "dogs/rex/1.jpg"}, names)

	data, err := ReadAll(ctx, store, "dogs/rex/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "rex-1", string(data))

	b, err := store.Open(ctx, "snapshots/catalog.paw")
	require.NoError(t, err)
	buf := make([]byte, 4)
	n, err := b.ReadAt(ctx, buf, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "shot", string(buf))
	require.NoError(t, b.Close())

	require.NoError(t, store.Put(ctx, "snapshots/catalog.paw", []byte("replaced")))
	data, err = ReadAll(ctx, store, "snapshots/catalog.paw")
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))

	require.NoError(t, store.Delete(ctx, "dogs/rex/1.jpg"))
	require.NoError(t, store.Delete(ctx, "dogs/rex/1.jpg"))
	_, err = store.Open(ctx, "dogs/rex/1.jpg")
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	testStore(t, NewLocalStore(t.TempDir()))
}

func TestLocalStoreListMissingRoot(t *testing.T) {
	names, err := NewLocalStore(t.TempDir()+"/missing").List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
