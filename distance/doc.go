// Package distance provides the vector arithmetic used by the index backends.
//
// Dot products and norms run on gonum's BLAS level-1 float32 kernels
// (blas32), which dispatch to assembly on amd64 and arm64.
//
// # Supported Metrics
//
//   - MetricL2: squared Euclidean distance, smaller is closer
//   - MetricDot: inner product, larger is closer; equal to cosine
//     similarity when both vectors are L2-normalized
//
// # Usage
//
//	d := distance.SquaredL2(a, b)
//	s := distance.Dot(a, b)
//	unit, ok := distance.NormalizeL2Copy(vec)
package distance
