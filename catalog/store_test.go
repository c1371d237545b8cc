package catalog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pawprint/blobstore"
	"github.com/hupe1980/pawprint/dataset"
	"github.com/hupe1980/pawprint/testutil"
)

func ptr(s string) *string { return &s }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, r := range []Record{
		{ID: "rex", Name: "Rex", Category: "dog", Sector: ptr("A"), Pen: ptr("3"), Status: "available", PhotoPath: "rex.png"},
		{ID: "bella", Name: "Bella", Category: "dog", Sector: ptr("B"), Status: "adopted", PhotoPath: "bella.png"},
		{ID: "max", Name: "Max", Category: "dog", Status: "available"},
		{ID: "luna", Name: "Luna", Category: "dog", Pen: ptr("7"), PhotoPath: "luna.png"},
	} {
		require.NoError(t, s.Put(ctx, &r))
	}
}

func TestPutGet(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	rex, err := s.Get(ctx, "rex")
	require.NoError(t, err)
	assert.Equal(t, "Rex", rex.Name)
	require.NotNil(t, rex.Sector)
	assert.Equal(t, "A", *rex.Sector)
	assert.Equal(t, "sector A, pen 3", rex.Location())

	bella, err := s.Get(ctx, "bella")
	require.NoError(t, err)
	assert.Nil(t, bella.Pen)
	assert.Equal(t, "sector B", bella.Location())

	maxRec, err := s.Get(ctx, "max")
	require.NoError(t, err)
	assert.Nil(t, maxRec.Sector)
	assert.Nil(t, maxRec.Pen)
	assert.Equal(t, "", maxRec.Location())

	_, err = s.Get(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Put(ctx, &Record{Name: "anon"}), ErrEmptyID)
}

func TestUpsertKeepsEmbedding(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.SetEmbedding(ctx, "rex", []float32{1, 2, 3}, "m1"))
	require.NoError(t, s.Put(ctx, &Record{ID: "rex", Name: "Rex II", PhotoPath: "rex.png"}))

	r, err := s.Get(ctx, "rex")
	require.NoError(t, err)
	assert.Equal(t, "Rex II", r.Name)
	assert.Nil(t, r.Sector)

	vec, model, err := s.Embedding(ctx, "rex")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Equal(t, "m1", model)
}

func TestListAndSector(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bella", "luna", "max", "rex"}, IDs(all))

	inA, err := s.InSector(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"rex"}, IDs(inA))

	require.NoError(t, s.Delete(ctx, "max"))
	require.NoError(t, s.Delete(ctx, "max"))
	all, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestEmbeddingRoundTrip(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	vec, _, err := s.Embedding(ctx, "rex")
	require.NoError(t, err)
	assert.Nil(t, vec)

	want := testutil.NewRNG(1).UnitVectors(1, 64)[0]
	require.NoError(t, s.SetEmbedding(ctx, "rex", want, "grid-v1"))
	got, model, err := s.Embedding(ctx, "rex")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "grid-v1", model)

	assert.ErrorIs(t, s.SetEmbedding(ctx, "ghost", want, "grid-v1"), ErrNotFound)

	total, embedded, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, 1, embedded)

	require.NoError(t, s.ClearEmbeddings(ctx))
	_, embedded, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, embedded)
}

func TestMigrateExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE dogs (
		id TEXT PRIMARY KEY, name TEXT NOT NULL, category TEXT NOT NULL DEFAULT '',
		sector TEXT, pen TEXT, status TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '', photo_path TEXT NOT NULL DEFAULT '',
		embedding BLOB, created_at DATETIME, updated_at DATETIME)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO dogs (id, name) VALUES ('old', 'Old Timer')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.True(t, s.columnExists("dogs", "embedding_model"))

	r, err := s.Get(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "Old Timer", r.Name)

	// Opening again is a no-op.
	require.NoError(t, s.migrate())
}

func writePhotos(t *testing.T, dir string) {
	t.Helper()
	for i, name := range []string{"rex.png", "bella.png", "luna.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), testutil.PNG(i), 0o644))
	}
}

func TestSourceAndPending(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()
	root := t.TempDir()
	writePhotos(t, root)

	src := s.Source(func(o *SourceOptions) { o.PhotoRoot = root })
	var ids []string
	for p, err := range src.Pairs(ctx) {
		require.NoError(t, err)
		ids = append(ids, p.IdentityID)
		data, err := p.Open(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}
	// max has no photo.
	assert.Equal(t, []string{"bella", "luna", "rex"}, ids)

	pending := s.Pending(func(o *SourceOptions) {
		o.PhotoRoot = root
		o.ModelVersion = "quadrant-v1"
	})
	var acker dataset.Acker = pending
	for p, err := range pending.Pairs(ctx) {
		require.NoError(t, err)
		if p.IdentityID == "luna" {
			require.NoError(t, acker.Ack(ctx, []dataset.Embedded{{Pair: p, Vector: []float32{0.5, 0.5}}}))
		}
	}

	ids = ids[:0]
	for p, err := range pending.Pairs(ctx) {
		require.NoError(t, err)
		ids = append(ids, p.IdentityID)
	}
	assert.Equal(t, []string{"bella", "rex"}, ids)

	_, model, err := s.Embedding(ctx, "luna")
	require.NoError(t, err)
	assert.Equal(t, "quadrant-v1", model)
}

func TestSetEmbeddingsIsAtomic(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	err := s.SetEmbeddings(ctx, []Embedding{
		{ID: "rex", Vector: []float32{1, 0}},
		{ID: "nobody", Vector: []float32{0, 1}},
	}, "v1")
	require.ErrorIs(t, err, ErrNotFound)

	vec, _, err := s.Embedding(ctx, "rex")
	require.NoError(t, err)
	assert.Nil(t, vec)

	require.NoError(t, s.SetEmbeddings(ctx, []Embedding{
		{ID: "rex", Vector: []float32{1, 0}},
		{ID: "bella", Vector: []float32{0, 1}},
	}, "v1"))
	_, embedded, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, embedded)
}

func TestSourceFromBlobStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &Record{ID: "rex", Name: "Rex", PhotoPath: "photos/rex.png"}))

	photos := blobstore.NewMemoryStore()
	require.NoError(t, photos.Put(ctx, "photos/rex.png", testutil.PNG(1)))

	for p, err := range s.Source(func(o *SourceOptions) { o.Photos = photos }).Pairs(ctx) {
		require.NoError(t, err)
		data, err := p.Open(ctx)
		require.NoError(t, err)
		assert.Equal(t, testutil.PNG(1), data)
	}
}
