package pawprint_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pawprint"
	"github.com/hupe1980/pawprint/blobstore"
	"github.com/hupe1980/pawprint/codec"
	"github.com/hupe1980/pawprint/dataset"
	"github.com/hupe1980/pawprint/index"
	"github.com/hupe1980/pawprint/persistence"
	"github.com/hupe1980/pawprint/testutil"
)

func writePhoto(t *testing.T, root, id, name string, data []byte) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func assertAligned(t *testing.T, snap *persistence.Snapshot, info persistence.Info) {
	t.Helper()
	assert.Len(t, snap.Entries, info.Vectors)
	assert.Len(t, index.Collection(snap.Entries).IdentitySet(), info.Identities)
	for _, e := range snap.Entries {
		assert.Len(t, e.Vector, snap.Config.Dimension)
		assert.NotEmpty(t, e.IdentityID)
	}
}

// Dogs A (two photos), B and C (one photo each).
func TestScenario_ThreeDogs(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writePhoto(t, root, "A", "1.jpg", testutil.JPEG(0))
	writePhoto(t, root, "A", "2.jpg", testutil.JPEG(1))
	writePhoto(t, root, "B", "1.jpg", testutil.JPEG(2))
	writePhoto(t, root, "C", "1.png", testutil.PNG(4))
	writePhoto(t, root, "C", "notes.txt", []byte("good boy"))

	ex := newExtractor(t, &testutil.QuadrantModel{})
	target := persistence.NewLocalTarget(filepath.Join(t.TempDir(), "dogs.paw"))

	b, err := pawprint.NewBuilder(ex, target)
	require.NoError(t, err)
	res, err := b.Build(ctx, dataset.Dir(root))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Count)
	assert.Zero(t, res.Skipped)
	assertAligned(t, res.Snapshot, res.Info)

	// Photo 5 scores 0.94 against B, so only a strict threshold rejects it.
	// TestScenario_DefaultPolicy covers the default threshold.
	eng, err := pawprint.Open(ctx, ex, target,
		pawprint.WithPolicy(pawprint.Policy{MinSimilarity: 0.97, Candidates: 3}),
	)
	require.NoError(t, err)
	assert.Equal(t, 4, eng.Len())

	for _, tc := range []struct {
		photo []byte
		want  string
	}{
		{testutil.JPEG(0), "A"},
		{testutil.JPEG(1), "A"},
		{testutil.JPEG(2), "B"},
		{testutil.PNG(4), "C"},
	} {
		m, err := eng.MatchByImage(ctx, tc.photo)
		require.NoError(t, err)
		assert.Equal(t, tc.want, m.IdentityID)
		assert.InDelta(t, 1.0, m.Score, 1e-4)
		assert.Len(t, m.Candidates, 3)
	}

	// An unknown dog resembles B but stays below the threshold.
	m, err := eng.MatchByImage(ctx, testutil.JPEG(5))
	require.NoError(t, err)
	assert.Equal(t, pawprint.NoMatch, m)

	top, err := eng.SearchByImage(ctx, testutil.JPEG(5), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "B", top[0].IdentityID)
	assert.Less(t, top[0].Score, float32(0.97))

	// Update with a fourth dog, then serve it.
	writePhoto(t, root, "D", "1.jpg", testutil.JPEG(5))
	upd, err := b.Update(ctx, res.Snapshot, dataset.Dir(root))
	require.NoError(t, err)
	assert.Equal(t, 1, upd.Count)
	assert.Equal(t, 4, upd.Existing)
	assertAligned(t, upd.Snapshot, upd.Info)

	require.NoError(t, eng.Reload(ctx))
	assert.Equal(t, 5, eng.Len())

	m, err = eng.MatchByImage(ctx, testutil.JPEG(5))
	require.NoError(t, err)
	assert.Equal(t, "D", m.IdentityID)

	loaded, info, err := target.Load(ctx)
	require.NoError(t, err)
	assertAligned(t, loaded, info)
	assert.Equal(t, upd.Snapshot.Entries, loaded.Entries)
}

// Unrelated photos fall below the default threshold, close ones clear it.
func TestScenario_DefaultPolicy(t *testing.T) {
	ctx := context.Background()
	ex := newExtractor(t, &testutil.QuadrantModel{})
	target := persistence.NewLocalTarget(filepath.Join(t.TempDir(), "dogs.paw"))

	b, err := pawprint.NewBuilder(ex, target)
	require.NoError(t, err)
	_, err = b.Build(ctx, dataset.Slice(
		dataset.Bytes("A", "A/1.jpg", testutil.JPEG(0)),
		dataset.Bytes("B", "B/1.jpg", testutil.JPEG(2)),
	))
	require.NoError(t, err)

	eng, err := pawprint.Open(ctx, ex, target, pawprint.WithPolicy(pawprint.DefaultPolicy()))
	require.NoError(t, err)

	// Photo 1 is at most 0.74 similar to either dog.
	m, err := eng.MatchByImage(ctx, testutil.JPEG(1))
	require.NoError(t, err)
	assert.Equal(t, pawprint.NoMatch, m)

	// Photo 3 is 0.92 similar to A.
	m, err = eng.MatchByImage(ctx, testutil.JPEG(3))
	require.NoError(t, err)
	assert.Equal(t, "A", m.IdentityID)
	assert.GreaterOrEqual(t, m.Score, float32(pawprint.DefaultMinSimilarity))
	assert.Less(t, m.Score, float32(0.97))
}

// Five photos, the third one unreadable.
func TestScenario_CorruptThirdPhoto(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writePhoto(t, root, "dog-1", "a.png", testutil.PNG(0))
	writePhoto(t, root, "dog-2", "a.png", testutil.PNG(1))
	writePhoto(t, root, "dog-3", "a.jpg", testutil.CorruptImage())
	writePhoto(t, root, "dog-4", "a.png", testutil.PNG(2))
	writePhoto(t, root, "dog-5", "a.png", testutil.PNG(3))

	ex := newExtractor(t, &testutil.QuadrantModel{})
	target := persistence.NewLocalTarget(filepath.Join(t.TempDir(), "dogs.paw"))
	b, err := pawprint.NewBuilder(ex, target, pawprint.WithWorkers(3))
	require.NoError(t, err)

	res, err := b.Build(ctx, dataset.Dir(root))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Count)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "dog-3/a.jpg", res.Failures[0].Key)

	loaded, info, err := target.Load(ctx)
	require.NoError(t, err)
	assertAligned(t, loaded, info)
	assert.Equal(t, []string{"dog-1", "dog-2", "dog-4", "dog-5"}, identities(loaded.Entries))
}

// A snapshot published to a blob store serves the same answers after a
// fetch to local disk.
func TestScenario_PublishAndFetch(t *testing.T) {
	ctx := context.Background()
	ex := newExtractor(t, &testutil.QuadrantModel{})
	store := blobstore.NewMemoryStore()
	remote := persistence.NewBlobTarget(store, "snapshots/dogs.paw")

	b, err := pawprint.NewBuilder(ex, remote, pawprint.WithWriteOptions(
		persistence.WithCompression(persistence.CompressionZSTD),
		persistence.WithCodec(codec.Msgpack{}),
	))
	require.NoError(t, err)
	res, err := b.Build(ctx, dataset.Slice(
		dataset.Bytes("A", "A/1.png", testutil.PNG(0)),
		dataset.Bytes("B", "B/1.png", testutil.PNG(2)),
	))
	require.NoError(t, err)
	assert.Equal(t, persistence.CompressionZSTD, res.Info.Compression)
	assert.Equal(t, "msgpack", res.Info.Codec)

	local := persistence.NewLocalTarget(filepath.Join(t.TempDir(), "dogs.paw"))
	_, err = persistence.Fetch(ctx, remote, local)
	require.NoError(t, err)

	for _, target := range []persistence.Target{remote, local} {
		eng, err := pawprint.Open(ctx, ex, target)
		require.NoError(t, err, target.String())

		m, err := eng.MatchByImage(ctx, testutil.PNG(2))
		require.NoError(t, err)
		assert.Equal(t, "B", m.IdentityID)

		info, _ := eng.Info()
		assert.Equal(t, res.BuildID, info.BuildID)
	}
}
