package pawprint

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pawprint/extract"
	"github.com/hupe1980/pawprint/index"
)

var (
	// ErrNotLoaded is returned by an Engine that has no snapshot to serve.
	ErrNotLoaded = errors.New("pawprint: no snapshot loaded")

	// ErrUncalibratedPolicy is returned when distance mode has no
	// MaxDistance and AcceptNearest was not requested.
	ErrUncalibratedPolicy = errors.New("pawprint: distance mode needs Policy.MaxDistance or Policy.AcceptNearest")

	// ErrInvalidPolicy is returned for out-of-range policy values.
	ErrInvalidPolicy = errors.New("pawprint: invalid policy")

	// ErrModelMismatch is returned when a snapshot was built with a
	// different model version or dimension than the extractor serves.
	ErrModelMismatch = errors.New("pawprint: snapshot and model disagree")

	// ErrNoTarget is returned by Reload on an Engine created without a
	// snapshot target.
	ErrNoTarget = errors.New("pawprint: no snapshot target configured")

	// ErrNoModel is returned when the extractor has no model loaded.
	ErrNoModel = extract.ErrNoModel

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = index.ErrInvalidK
)

// ConsistencyError reports that vectors and identities are misaligned.
// A store or snapshot in this state is never served.
type ConsistencyError = index.ConsistencyError

// ExtractionError reports that an image could not be turned into an
// embedding.
type ExtractionError = extract.ExtractionError

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch = index.ErrDimensionMismatch

// IsExtractionError reports whether err is or wraps *ExtractionError.
func IsExtractionError(err error) bool {
	return extract.IsExtractionError(err)
}

// IsConsistencyError reports whether err is or wraps *ConsistencyError.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// PersistenceError reports a failed snapshot write. The previous artifact
// at Target is left untouched.
type PersistenceError struct {
	Target string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("pawprint: persist snapshot to %s: %v", e.Target, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
