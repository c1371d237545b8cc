package identity

import (
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pawprint/distance"
	"github.com/hupe1980/pawprint/index"
	"github.com/hupe1980/pawprint/index/flat"
	"github.com/hupe1980/pawprint/testutil"
)

func newStore(t *testing.T, cfg index.Config) *Store {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestBestOfNotAverage(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, index.Config{Dimension: 2, Metric: distance.MetricL2})

	// "a" has one perfect photo and one far-off photo; its average would
	// lose to "b", its best must win.
	require.NoError(t, s.Add([]float32{10, 10}, "a"))
	require.NoError(t, s.Add([]float32{0, 0}, "a"))
	require.NoError(t, s.Add([]float32{1, 0}, "b"))

	res, err := s.Search(ctx, []float32{0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].IdentityID)
	assert.Equal(t, float32(0), res[0].Score)
	assert.Equal(t, uint32(1), res[0].Position)
	assert.Equal(t, "b", res[1].IdentityID)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 2, s.Identities())
}

func TestTieBreakFirstInsertedIdentity(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, index.Config{Dimension: 2, Metric: distance.MetricDot})

	require.NoError(t, s.Add([]float32{0, 1}, "first"))
	require.NoError(t, s.Add([]float32{0, 1}, "second"))
	// A later vector of "first" must not push it behind "second".
	require.NoError(t, s.Add([]float32{1, 0}, "first"))

	res, err := s.Search(ctx, []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "first", res[0].IdentityID)
	assert.Equal(t, "second", res[1].IdentityID)
	assert.Equal(t, res[0].Score, res[1].Score)
}

func TestUniformContractWithFlat(t *testing.T) {
	ctx := context.Background()
	cfg := index.Config{Dimension: 16, Metric: distance.MetricDot, Normalized: true}
	rng := testutil.NewRNG(7)
	vectors := rng.UnitVectors(40, 16)

	f, err := flat.New(cfg)
	require.NoError(t, err)
	s := newStore(t, cfg)
	for i, v := range vectors {
		id := string(rune('A' + i)) // one vector per identity
		require.NoError(t, f.Add(v, id))
		require.NoError(t, s.Add(v, id))
	}

	for _, q := range rng.UnitVectors(5, 16) {
		want, err := f.Search(ctx, q, 5)
		require.NoError(t, err)
		got, err := s.Search(ctx, q, 5)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAllow(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, index.Config{Dimension: 2, Metric: distance.MetricL2})
	require.NoError(t, s.Add([]float32{0, 0}, "a"))
	require.NoError(t, s.Add([]float32{3, 3}, "b"))
	require.NoError(t, s.Add([]float32{9, 9}, "b"))

	res, err := s.Search(ctx, []float32{0, 0}, 5, index.WithAllow(roaring.BitmapOf(2)))
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].IdentityID)
	assert.Equal(t, uint32(2), res[0].Position)
}

func TestLoadRoundTrip(t *testing.T) {
	cfg := index.Config{Dimension: 2, Metric: distance.MetricL2}
	s := newStore(t, cfg)
	require.NoError(t, s.Add([]float32{1, 2}, "a"))
	require.NoError(t, s.Add([]float32{3, 4}, "b"))
	require.NoError(t, s.Add([]float32{5, 6}, "a"))

	loaded, err := Load(cfg, s.Entries())
	require.NoError(t, err)
	assert.Equal(t, s.Entries(), loaded.Entries())
	assert.Equal(t, 2, loaded.Identities())
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, index.Config{Dimension: 2, Metric: distance.MetricL2})

	_, err := s.Search(ctx, []float32{0, 0}, -1)
	assert.ErrorIs(t, err, index.ErrInvalidK)

	assert.ErrorIs(t, s.Add([]float32{1, 1}, ""), index.ErrEmptyIdentity)

	var dimErr *index.ErrDimensionMismatch
	assert.ErrorAs(t, s.Add([]float32{1, 1, 1}, "a"), &dimErr)

	res, err := s.Search(ctx, []float32{0, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSearchMatchesExactBestPerIdentity(t *testing.T) {
	ctx := context.Background()
	cfg := index.Config{Dimension: 16, Metric: distance.MetricL2}
	rng := testutil.NewRNG(11)
	vectors := rng.UniformVectors(200, cfg.Dimension)

	ids := make([]string, len(vectors))
	entries := make([]index.Entry, len(vectors))
	for i, v := range vectors {
		ids[i] = string(rune('a' + i%13))
		entries[i] = index.Entry{Vector: v, IdentityID: ids[i]}
	}
	s, err := Load(cfg, entries)
	require.NoError(t, err)

	for _, q := range rng.UniformVectors(20, cfg.Dimension) {
		// The identity order is the order in which identities first
		// appear in the exact full ranking.
		var want []string
		seen := make(map[string]bool)
		for _, pos := range testutil.ExactTopK(q, vectors, len(vectors)) {
			if !seen[ids[pos]] {
				seen[ids[pos]] = true
				want = append(want, ids[pos])
			}
		}

		res, err := s.Search(ctx, q, 5)
		require.NoError(t, err)
		got := make([]string, len(res))
		for i, r := range res {
			got[i] = r.IdentityID
		}
		assert.Equal(t, want[:5], got)
	}
}
