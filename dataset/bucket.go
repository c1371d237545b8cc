package dataset

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hupe1980/pawprint/blobstore"
	"github.com/hupe1980/pawprint/resource"
)

// BucketOptions configures a bucket source.
type BucketOptions struct {
	Extensions []string

	// Controller throttles downloads. Nil means unlimited.
	Controller *resource.Controller

	// MaxRetries bounds download retries per object.
	MaxRetries uint64
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration
}

// BucketSource lists objects under a prefix of a blob store. The first
// path segment below the prefix is the identity id:
// <prefix>/<identity>/<image>.
type BucketSource struct {
	store   blobstore.BlobStore
	prefix  string
	include func(string) bool
	opts    BucketOptions
}

// Bucket returns a source over store objects under prefix.
func Bucket(store blobstore.BlobStore, prefix string, optFns ...func(o *BucketOptions)) *BucketSource {
	opts := BucketOptions{
		Extensions:      DefaultExtensions,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &BucketSource{
		store:   store,
		prefix:  prefix,
		include: extensionFilter(opts.Extensions),
		opts:    opts,
	}
}

// Pairs implements Source.
func (b *BucketSource) Pairs(ctx context.Context) iter.Seq2[Pair, error] {
	return func(yield func(Pair, error) bool) {
		names, err := b.store.List(ctx, b.prefix)
		if err != nil {
			yield(Pair{}, fmt.Errorf("dataset: list %q: %w", b.prefix, err))
			return
		}

		for _, name := range names {
			rel := strings.TrimPrefix(name, b.prefix)
			identity, file, ok := strings.Cut(rel, "/")
			if !ok || identity == "" || strings.Contains(file, "/") || !b.include(file) {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield(Pair{}, err)
				return
			}
			pair := Pair{
				IdentityID: identity,
				Key:        name,
				Open: func(ctx context.Context) ([]byte, error) {
					return b.download(ctx, name)
				},
			}
			if !yield(pair, nil) {
				return
			}
		}
	}
}

func (b *BucketSource) download(ctx context.Context, name string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.opts.InitialInterval

	var data []byte
	operation := func() error {
		var err error
		data, err = b.fetch(ctx, name)
		if err != nil && (blobstore.IsNotFound(err) || ctx.Err() != nil) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, b.opts.MaxRetries), ctx)); err != nil {
		return nil, fmt.Errorf("dataset: download %s: %w", name, err)
	}
	return data, nil
}

func (b *BucketSource) fetch(ctx context.Context, name string) ([]byte, error) {
	blob, err := b.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	size := blob.Size()
	rc, err := blob.ReadRange(ctx, 0, size)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(resource.NewRateLimitedReader(ctx, rc, b.opts.Controller))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("short read: got %d bytes, want %d", len(data), size)
	}
	return data, nil
}
