package persistence

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pawprint/index"
)

var (
	// ErrInvalidMagic is returned when data does not start with Magic.
	ErrInvalidMagic = errors.New("persistence: invalid magic")

	// ErrInvalidVersion is returned for a format version this package
	// cannot read.
	ErrInvalidVersion = errors.New("persistence: unsupported version")

	// ErrTruncated is returned when a section extends beyond the data.
	ErrTruncated = errors.New("persistence: truncated snapshot")

	// ErrCorruptHeader is returned for header fields that cannot describe
	// a valid snapshot, e.g. overlapping sections or an impossible size.
	ErrCorruptHeader = errors.New("persistence: corrupt header")

	// ErrUnknownCodec is returned for a metadata codec that is not
	// registered.
	ErrUnknownCodec = errors.New("persistence: unknown codec")

	// ErrUnknownCompression is returned for an unsupported vector section
	// compression.
	ErrUnknownCompression = errors.New("persistence: unknown compression")

	// ErrEmptyPath is returned by a LocalTarget without a path.
	ErrEmptyPath = errors.New("persistence: empty snapshot path")

	// ErrSnapshotNotFound is returned when a target holds no snapshot yet.
	ErrSnapshotNotFound = errors.New("persistence: snapshot not found")
)

// ConsistencyError reports a snapshot whose vector count, identity count and
// identity list disagree. Such a snapshot must never be served.
type ConsistencyError = index.ConsistencyError

// ChecksumMismatchError is returned when checksum verification fails.
type ChecksumMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("persistence: checksum mismatch: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}

// IsChecksumMismatch returns true if err is a checksum mismatch error.
func IsChecksumMismatch(err error) bool {
	var ce *ChecksumMismatchError
	return errors.As(err, &ce)
}
