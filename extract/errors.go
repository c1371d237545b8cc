package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrNoModel is returned when the handle holds no model.
	ErrNoModel = errors.New("extract: no model loaded")

	// ErrEmptyImage is returned for zero-length input.
	ErrEmptyImage = errors.New("extract: empty image")

	// ErrImageTooLarge is returned when the decoded pixel count exceeds
	// Decoder.MaxPixels.
	ErrImageTooLarge = errors.New("extract: image too large")

	// ErrDimensionChanged is returned when a swapped-in model emits a
	// different dimension than the one it replaces.
	ErrDimensionChanged = errors.New("extract: model dimension changed")

	// ErrBadEmbedding is returned when a model output has the wrong length
	// or contains NaN or Inf.
	ErrBadEmbedding = errors.New("extract: invalid embedding")
)

// DecodeError reports bytes that could not be decoded into an image.
type DecodeError struct {
	Format string // sniffed format, empty if unknown
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("extract: decode %s: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("extract: decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ExtractionError reports that no embedding could be produced for an image.
type ExtractionError struct {
	ModelVersion string
	Err          error
}

func (e *ExtractionError) Error() string {
	if e.ModelVersion != "" {
		return fmt.Sprintf("extract: extraction failed (model %s): %v", e.ModelVersion, e.Err)
	}
	return fmt.Sprintf("extract: extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsExtractionError reports whether err is or wraps *ExtractionError.
func IsExtractionError(err error) bool {
	var target *ExtractionError
	return errors.As(err, &target)
}

// IsDecodeError reports whether err is or wraps *DecodeError.
func IsDecodeError(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}
