package catalog

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/hupe1980/pawprint/blobstore"
	"github.com/hupe1980/pawprint/dataset"
)

// SourceOptions configures where photos are read from.
type SourceOptions struct {
	// PhotoRoot is joined with relative photo paths for local reads.
	PhotoRoot string

	// Photos, when set, resolves photo paths as blob names instead of
	// local files.
	Photos blobstore.BlobStore

	// ModelVersion is recorded next to acknowledged embeddings.
	ModelVersion string
}

// RowSource yields one pair per catalog row that has a photo. It acks a
// saved build by storing each embedding on its row.
type RowSource struct {
	store   *Store
	pending bool
	opts    SourceOptions
}

var (
	_ dataset.Source = (*RowSource)(nil)
	_ dataset.Acker  = (*RowSource)(nil)
)

// Source returns a source over every row with a photo, ordered by id.
func (s *Store) Source(optFns ...func(o *SourceOptions)) *RowSource {
	return s.newSource(false, optFns)
}

// Pending returns a source over rows that have a photo but no embedding.
func (s *Store) Pending(optFns ...func(o *SourceOptions)) *RowSource {
	return s.newSource(true, optFns)
}

func (s *Store) newSource(pending bool, optFns []func(o *SourceOptions)) *RowSource {
	opts := SourceOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RowSource{store: s, pending: pending, opts: opts}
}

type photoRow struct {
	id   string
	path string
}

// Pairs implements dataset.Source. Rows are read up front so that Ack can
// write while the caller is still iterating.
func (rs *RowSource) Pairs(ctx context.Context) iter.Seq2[dataset.Pair, error] {
	return func(yield func(dataset.Pair, error) bool) {
		rows, err := rs.rows(ctx)
		if err != nil {
			yield(dataset.Pair{}, err)
			return
		}
		for _, r := range rows {
			if err := ctx.Err(); err != nil {
				yield(dataset.Pair{}, err)
				return
			}
			if !yield(dataset.Pair{IdentityID: r.id, Key: r.path, Open: rs.opener(r.path)}, nil) {
				return
			}
		}
	}
}

func (rs *RowSource) rows(ctx context.Context) ([]photoRow, error) {
	q := queryPhotos
	if rs.pending {
		q = queryPendingPhotos
	}
	res, err := rs.store.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("catalog: scan photos: %w", err)
	}
	defer res.Close()

	var out []photoRow
	for res.Next() {
		var r photoRow
		if err := res.Scan(&r.id, &r.path); err != nil {
			return nil, fmt.Errorf("catalog: scan photos: %w", err)
		}
		out = append(out, r)
	}
	return out, res.Err()
}

func (rs *RowSource) opener(photoPath string) func(ctx context.Context) ([]byte, error) {
	if rs.opts.Photos != nil {
		return func(ctx context.Context) ([]byte, error) {
			return blobstore.ReadAll(ctx, rs.opts.Photos, photoPath)
		}
	}
	return func(context.Context) ([]byte, error) {
		p := photoPath
		if !filepath.IsAbs(p) && rs.opts.PhotoRoot != "" {
			p = filepath.Join(rs.opts.PhotoRoot, p)
		}
		return os.ReadFile(p)
	}
}

// Ack implements dataset.Acker. All rows are written in one transaction.
func (rs *RowSource) Ack(ctx context.Context, embedded []dataset.Embedded) error {
	embeddings := make([]Embedding, len(embedded))
	for i, e := range embedded {
		embeddings[i] = Embedding{ID: e.Pair.IdentityID, Vector: e.Vector}
	}
	return rs.store.SetEmbeddings(ctx, embeddings, rs.opts.ModelVersion)
}
