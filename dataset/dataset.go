// Package dataset provides ordered (identity, image) pair sources for
// index builds: local directory trees, blob store buckets and in-memory
// slices. The relational catalog source lives in package catalog.
package dataset

import (
	"context"
	"iter"
	"path"
	"strings"
)

// Pair is one (identity, image) input. Open loads the image bytes lazily so
// workers can fetch in parallel.
type Pair struct {
	IdentityID string
	// Key identifies the image within its source (relative path, object
	// name or row id). Used in logs and failure reports.
	Key  string
	Open func(ctx context.Context) ([]byte, error)
}

// Source yields pairs in a stable order. A non-nil error aborts the build;
// an image that later fails to load or decode is only skipped.
type Source interface {
	Pairs(ctx context.Context) iter.Seq2[Pair, error]
}

// Embedded is a pair together with the vector stored for it.
type Embedded struct {
	Pair   Pair
	Vector []float32
}

// Acker is implemented by sources that want to learn which pairs made it
// into a saved snapshot, e.g. to store the vector next to the record.
// Ack is called once per build, in source order, and only after the
// snapshot was written to its target. A failed or cancelled build never
// acks.
type Acker interface {
	Ack(ctx context.Context, embedded []Embedded) error
}

// DefaultExtensions are the image file extensions picked up by Dir and
// Bucket.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp", ".gif"}

// Bytes wraps in-memory data as a Pair.
func Bytes(identityID, key string, data []byte) Pair {
	return Pair{
		IdentityID: identityID,
		Key:        key,
		Open: func(context.Context) ([]byte, error) {
			return data, nil
		},
	}
}

// SliceSource yields a fixed list of pairs.
type SliceSource []Pair

// Slice returns a source over pairs, in order.
func Slice(pairs ...Pair) SliceSource {
	return SliceSource(pairs)
}

// Pairs implements Source.
func (s SliceSource) Pairs(ctx context.Context) iter.Seq2[Pair, error] {
	return func(yield func(Pair, error) bool) {
		for _, p := range s {
			if err := ctx.Err(); err != nil {
				yield(Pair{}, err)
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

func extensionFilter(exts []string) func(name string) bool {
	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = struct{}{}
	}
	return func(name string) bool {
		base := path.Base(name)
		if strings.HasPrefix(base, ".") {
			return false
		}
		_, ok := allowed[strings.ToLower(path.Ext(base))]
		return ok
	}
}
