package distance

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/blas/blas32"
)

func vec(v []float32) blas32.Vector {
	return blas32.Vector{N: len(v), Inc: 1, Data: v}
}

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	return blas32.Dot(vec(a), vec(b))
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return blas32.Nrm2(vec(v))
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
//
// The difference is accumulated element-wise rather than expanded into
// |a|^2 + |b|^2 - 2ab so that identical vectors yield exactly zero.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	n := Norm(v)
	if n == 0 {
		return false
	}
	blas32.Scal(1/n, vec(v))
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Metric represents the distance metric used for vector comparison.
type Metric uint8

const (
	// MetricL2 is squared Euclidean distance. Lower scores are closer.
	MetricL2 Metric = iota
	// MetricDot is the inner product. Higher scores are closer.
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricDot:
		return "Dot"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// HigherIsBetter reports whether larger scores mean more similar.
func (m Metric) HigherIsBetter() bool {
	return m == MetricDot
}

// ParseMetric maps a configuration string to a Metric.
// Accepted values are "l2", "dot" and "cosine" (an alias of dot that is
// only meaningful with normalized vectors).
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "l2", "L2", "euclidean":
		return MetricL2, nil
	case "dot", "Dot", "cosine", "Cosine", "ip":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("distance: unknown metric %q", s)
	}
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricDot:
		return Dot, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
