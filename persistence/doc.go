//go:build amd64 || arm64

// Package persistence reads and writes vector store snapshots.
//
// A snapshot is one self-contained artifact (a file or a blob):
//
//	+---------------------------+ 0
//	| header (64 bytes, LE)     |
//	+---------------------------+ VectorOffset
//	| vector section            |  raw float32, or zstd/lz4 blocks
//	+---------------------------+ MetaOffset
//	| metadata section          |  codec-encoded Metadata
//	+---------------------------+
//
// The header records the metric, the normalization flag, the vector and
// identity counts and a CRC32 over everything after the header. On load the
// header counts and the decoded identity list must all agree, otherwise the
// snapshot is rejected with *ConsistencyError.
//
// Writes are atomic: SaveToFile writes a temp file, fsyncs and renames;
// blob targets upload a single object.
//
// PLATFORM REQUIREMENTS:
//   - Architecture: amd64 or arm64 only
//   - Endianness: Little-endian
//
// The unsafe float32 views in this package are verified at runtime with
// alignment checks and platform validation. See safety.go.
package persistence
