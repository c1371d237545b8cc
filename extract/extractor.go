package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheTTL        = 15 * time.Minute
	defaultCleanupInterval = 30 * time.Minute
)

// Options configures an Extractor.
type Options struct {
	// MaxConcurrentInference bounds parallel Embed calls. 1 serializes
	// inference for models that are not safe for concurrent use.
	// Zero means unbounded.
	MaxConcurrentInference int

	// CacheTTL is how long embeddings stay cached. Zero means the default;
	// negative disables the cache.
	CacheTTL time.Duration

	// Decoder overrides the default decoder.
	Decoder *Decoder
}

// WithMaxConcurrentInference sets Options.MaxConcurrentInference.
func WithMaxConcurrentInference(n int) func(*Options) {
	return func(o *Options) { o.MaxConcurrentInference = n }
}

// WithCacheTTL sets Options.CacheTTL.
func WithCacheTTL(ttl time.Duration) func(*Options) {
	return func(o *Options) { o.CacheTTL = ttl }
}

// WithoutCache disables the embedding cache.
func WithoutCache() func(*Options) {
	return func(o *Options) { o.CacheTTL = -1 }
}

// Extractor decodes images and runs the current model on them.
type Extractor struct {
	handle  *ModelHandle
	decoder *Decoder
	sem     *semaphore.Weighted // nil if unbounded
	group   singleflight.Group
	cache   *cache.Cache // nil if disabled

	inferences atomic.Int64
}

// NewExtractor creates an extractor over handle.
func NewExtractor(handle *ModelHandle, optFns ...func(*Options)) *Extractor {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Extractor{
		handle:  handle,
		decoder: opts.Decoder,
	}
	if e.decoder == nil {
		e.decoder = NewDecoder()
	}
	if opts.MaxConcurrentInference > 0 {
		e.sem = semaphore.NewWeighted(int64(opts.MaxConcurrentInference))
	}
	switch {
	case opts.CacheTTL == 0:
		e.cache = cache.New(defaultCacheTTL, defaultCleanupInterval)
	case opts.CacheTTL > 0:
		e.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return e
}

// Handle returns the model handle.
func (e *Extractor) Handle() *ModelHandle { return e.handle }

// Dimension returns the current model's embedding length, or 0.
func (e *Extractor) Dimension() int {
	if m := e.handle.Current(); m != nil {
		return m.Dimension()
	}
	return 0
}

// ModelVersion returns the current model version.
func (e *Extractor) ModelVersion() string { return e.handle.Version() }

// Inferences returns how many model forward passes ran.
func (e *Extractor) Inferences() int64 { return e.inferences.Load() }

// Key identifies an image under a model version.
func Key(modelVersion string, data []byte) string {
	return modelVersion + ":" + strconv.FormatUint(xxhash.Sum64(data), 16)
}

// Extract decodes data and embeds it with the current model. Failures to
// decode or embed are *ExtractionError; context errors are returned as is.
// The returned slice is owned by the caller.
func (e *Extractor) Extract(ctx context.Context, data []byte) ([]float32, error) {
	model := e.handle.Current()
	if model == nil {
		return nil, ErrNoModel
	}
	key := Key(model.Version(), data)

	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return cloneVector(v.([]float32)), nil
		}
	}

	for {
		ch := e.group.DoChan(key, func() (any, error) {
			return e.extract(ctx, model, key, data)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// The leader was canceled while this caller is still live.
				if isContextErr(res.Err) && ctx.Err() == nil && res.Shared {
					continue
				}
				return nil, res.Err
			}
			return cloneVector(res.Val.([]float32)), nil
		}
	}
}

func (e *Extractor) extract(ctx context.Context, model Model, key string, data []byte) ([]float32, error) {
	img, err := e.decoder.Decode(data)
	if err != nil {
		return nil, &ExtractionError{ModelVersion: model.Version(), Err: err}
	}

	vec, err := e.embed(ctx, model, img)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.SetDefault(key, vec)
	}
	return vec, nil
}

// EmbedImage runs the current model on an already decoded image. It is not
// cached.
func (e *Extractor) EmbedImage(ctx context.Context, img *image.RGBA) ([]float32, error) {
	model := e.handle.Current()
	if model == nil {
		return nil, ErrNoModel
	}
	return e.embed(ctx, model, img)
}

func (e *Extractor) embed(ctx context.Context, model Model, img *image.RGBA) ([]float32, error) {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer e.sem.Release(1)
	}

	e.inferences.Add(1)
	vec, err := model.Embed(ctx, img)
	if err != nil {
		if isContextErr(err) && ctx.Err() != nil {
			return nil, err
		}
		return nil, &ExtractionError{ModelVersion: model.Version(), Err: err}
	}
	if err := validateEmbedding(vec, model.Dimension()); err != nil {
		return nil, &ExtractionError{ModelVersion: model.Version(), Err: err}
	}
	return vec, nil
}

// Purge drops every cached embedding.
func (e *Extractor) Purge() {
	if e.cache != nil {
		e.cache.Flush()
	}
}

func validateEmbedding(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: length %d, want %d", ErrBadEmbedding, len(vec), dim)
	}
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: non-finite value at %d", ErrBadEmbedding, i)
		}
	}
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
