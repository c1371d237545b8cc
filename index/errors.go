package index

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("index: k must be positive")

	// ErrEmptyVector is returned for zero-length vectors.
	ErrEmptyVector = errors.New("index: empty vector")

	// ErrZeroVector is returned when a vector has to be L2-normalized but
	// has zero norm.
	ErrZeroVector = errors.New("index: cannot normalize zero vector")

	// ErrEmptyIdentity is returned when an entry carries no identity.
	ErrEmptyIdentity = errors.New("index: empty identity id")

	// ErrInvalidDimension is returned for a non-positive configured dimension.
	ErrInvalidDimension = errors.New("index: dimension must be positive")

	// ErrMisaligned is the sentinel wrapped by every *ConsistencyError.
	ErrMisaligned = errors.New("index: vectors and identities misaligned")
)

// ErrDimensionMismatch is a named error type for dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch.
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("index: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ConsistencyError reports that vectors and identities are no longer
// positionally aligned. A store in this state must not be queried.
type ConsistencyError struct {
	Vectors    int
	Identities int
	Reason     string
}

func (e *ConsistencyError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("index: inconsistent store (%d vectors, %d identities): %s", e.Vectors, e.Identities, e.Reason)
	}
	return fmt.Sprintf("index: inconsistent store: %d vectors, %d identities", e.Vectors, e.Identities)
}

func (e *ConsistencyError) Unwrap() error { return ErrMisaligned }

// AssertAligned returns *ConsistencyError unless vectors == identities.
func AssertAligned(vectors, identities int) error {
	if vectors != identities {
		return &ConsistencyError{Vectors: vectors, Identities: identities}
	}
	return nil
}
