package extract

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pawprint/testutil"
)

// gateModel blocks every Embed until release is closed.
type gateModel struct {
	testutil.QuadrantModel
	release chan struct{}
	active  atomic.Int64
	peak    atomic.Int64
}

func (m *gateModel) Embed(ctx context.Context, img *image.RGBA) ([]float32, error) {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-m.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.QuadrantModel.Embed(ctx, img)
}

type shortModel struct{ testutil.QuadrantModel }

func (m *shortModel) Embed(context.Context, *image.RGBA) ([]float32, error) {
	return []float32{1, 2}, nil
}

func TestExtractDeterministicAndCached(t *testing.T) {
	model := &testutil.QuadrantModel{}
	e := NewExtractor(NewModelHandle(model))

	a, err := e.Extract(context.Background(), testutil.PNG(1))
	require.NoError(t, err)
	require.Len(t, a, 12)

	b, err := e.Extract(context.Background(), testutil.PNG(1))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, int64(1), model.Calls())

	// Callers own the returned slice.
	a[0] = 42
	c, err := e.Extract(context.Background(), testutil.PNG(1))
	require.NoError(t, err)
	assert.NotEqual(t, float32(42), c[0])

	other, err := e.Extract(context.Background(), testutil.PNG(2))
	require.NoError(t, err)
	assert.NotEqual(t, b, other)
	assert.Equal(t, int64(2), model.Calls())
}

func TestExtractWithoutCache(t *testing.T) {
	model := &testutil.QuadrantModel{}
	e := NewExtractor(NewModelHandle(model), WithoutCache())

	for range 3 {
		_, err := e.Extract(context.Background(), testutil.PNG(1))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), model.Calls())
	assert.Equal(t, int64(3), e.Inferences())
}

func TestExtractCacheIsPerModelVersion(t *testing.T) {
	v1 := &testutil.QuadrantModel{Tag: "v1"}
	h := NewModelHandle(v1)
	e := NewExtractor(h)

	_, err := e.Extract(context.Background(), testutil.PNG(1))
	require.NoError(t, err)

	v2 := &testutil.QuadrantModel{Tag: "v2"}
	_, err = h.Swap(v2)
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), testutil.PNG(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1.Calls())
	assert.Equal(t, int64(1), v2.Calls())
	assert.NotEqual(t, Key("v1", testutil.PNG(1)), Key("v2", testutil.PNG(1)))
}

func TestExtractErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewExtractor(NewModelHandle(nil)).Extract(ctx, testutil.PNG(1))
	assert.ErrorIs(t, err, ErrNoModel)

	e := NewExtractor(NewModelHandle(&testutil.QuadrantModel{}))
	_, err = e.Extract(ctx, testutil.CorruptImage())
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))
	assert.True(t, IsDecodeError(err))

	failing := NewExtractor(NewModelHandle(&testutil.FailingModel{Dim: 12}))
	_, err = failing.Extract(ctx, testutil.PNG(1))
	assert.True(t, IsExtractionError(err))
	assert.ErrorIs(t, err, testutil.ErrModelFailure)

	short := NewExtractor(NewModelHandle(&shortModel{}))
	_, err = short.Extract(ctx, testutil.PNG(1))
	assert.True(t, IsExtractionError(err))
	assert.ErrorIs(t, err, ErrBadEmbedding)
}

func TestExtractCanceledIsNotExtractionError(t *testing.T) {
	model := &gateModel{release: make(chan struct{})}
	e := NewExtractor(NewModelHandle(model))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Extract(ctx, testutil.PNG(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsExtractionError(err))
}

func TestExtractSingleFlight(t *testing.T) {
	model := &gateModel{release: make(chan struct{})}
	e := NewExtractor(NewModelHandle(model))
	data := testutil.PNG(5)

	var wg sync.WaitGroup
	results := make([][]float32, 8)
	start := func(i int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := e.Extract(context.Background(), data)
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	start(0)
	require.Eventually(t, func() bool { return model.active.Load() == 1 }, time.Second, time.Millisecond)
	for i := 1; i < len(results); i++ {
		start(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(model.release)
	wg.Wait()

	assert.Equal(t, int64(1), model.Calls())
	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
}

func TestExtractConcurrencyBound(t *testing.T) {
	model := &gateModel{release: make(chan struct{})}
	e := NewExtractor(NewModelHandle(model), WithMaxConcurrentInference(1), WithoutCache())

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Extract(context.Background(), testutil.PNG(i))
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return model.active.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(model.release)
	wg.Wait()

	assert.Equal(t, int64(1), model.peak.Load())
	assert.Equal(t, int64(4), model.Calls())
}

func TestEmbedImage(t *testing.T) {
	e := NewExtractor(NewModelHandle(&testutil.QuadrantModel{}))
	v, err := e.EmbedImage(context.Background(), testutil.PatternImage(1, 8, 8))
	require.NoError(t, err)
	assert.Len(t, v, e.Dimension())
	assert.Equal(t, "quadrant-v1", e.ModelVersion())
}
