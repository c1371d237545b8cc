package persistence

import (
	"context"
	"fmt"

	"github.com/hupe1980/pawprint/blobstore"
	"github.com/hupe1980/pawprint/codec"
)

// Target is where a snapshot is saved and loaded from.
type Target interface {
	// Save persists snap atomically. On error the previous artifact, if
	// any, is left untouched.
	Save(ctx context.Context, snap *Snapshot, optFns ...func(*WriteOptions)) (Info, error)

	// Load reads and validates the snapshot.
	Load(ctx context.Context) (*Snapshot, Info, error)

	// String describes the location for logs.
	String() string
}

// LocalTarget stores the snapshot in a single local file.
type LocalTarget struct {
	Path string
}

// NewLocalTarget returns a target for path.
func NewLocalTarget(path string) *LocalTarget {
	return &LocalTarget{Path: path}
}

// Save writes a temp file, fsyncs it and renames it over Path.
func (t *LocalTarget) Save(ctx context.Context, snap *Snapshot, optFns ...func(*WriteOptions)) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	return WriteFile(t.Path, snap, optFns...)
}

// Load memory-maps Path and decodes it.
func (t *LocalTarget) Load(ctx context.Context) (*Snapshot, Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, Info{}, err
	}
	return LoadFile(t.Path)
}

func (t *LocalTarget) String() string { return "file://" + t.Path }

// BlobTarget stores the snapshot as a single object in a blob store.
type BlobTarget struct {
	Store blobstore.BlobStore
	Name  string
}

// NewBlobTarget returns a target for name in store.
func NewBlobTarget(store blobstore.BlobStore, name string) *BlobTarget {
	return &BlobTarget{Store: store, Name: name}
}

// Save encodes the snapshot in memory and uploads it with one Put.
func (t *BlobTarget) Save(ctx context.Context, snap *Snapshot, optFns ...func(*WriteOptions)) (Info, error) {
	data, info, err := Encode(snap, optFns...)
	if err != nil {
		return Info{}, err
	}
	if err := t.Store.Put(ctx, t.Name, data); err != nil {
		return Info{}, fmt.Errorf("persistence: upload %s: %w", t.Name, err)
	}
	return info, nil
}

// Load downloads and decodes the snapshot.
func (t *BlobTarget) Load(ctx context.Context) (*Snapshot, Info, error) {
	data, err := blobstore.ReadAll(ctx, t.Store, t.Name)
	if err != nil {
		if blobstore.IsNotFound(err) {
			return nil, Info{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, t.Name)
		}
		return nil, Info{}, fmt.Errorf("persistence: download %s: %w", t.Name, err)
	}
	return Decode(data)
}

func (t *BlobTarget) String() string { return "blob://" + t.Name }

// Publish loads the snapshot from src and saves it unchanged to dst,
// e.g. to push a locally built artifact to object storage.
func Publish(ctx context.Context, src, dst Target, optFns ...func(*WriteOptions)) (Info, error) {
	snap, _, err := src.Load(ctx)
	if err != nil {
		return Info{}, err
	}
	return dst.Save(ctx, snap, optFns...)
}

// Fetch copies the snapshot at src into a local file so later loads can
// be memory-mapped.
func Fetch(ctx context.Context, src Target, dst *LocalTarget) (Info, error) {
	snap, info, err := src.Load(ctx)
	if err != nil {
		return Info{}, err
	}
	var opts []func(*WriteOptions)
	if c, ok := codec.ByName(info.Codec); ok {
		opts = append(opts, WithCodec(c))
	}
	opts = append(opts, WithCompression(info.Compression))
	return dst.Save(ctx, snap, opts...)
}
