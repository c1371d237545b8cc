// Package blobstore provides storage abstraction for snapshots and remote
// photo datasets.
//
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, mmap reads, atomic writes
//   - MemoryStore: in-process map, used by tests
//   - minio.Store: MinIO and S3-compatible storage
//   - s3.Store: Amazon S3 via aws-sdk-go-v2
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Put(ctx, name, data) error          // atomic, single object
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error) // sorted
//	}
package blobstore
