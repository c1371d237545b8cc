// Package testutil provides testing utilities for pawprint.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(100, 64)
//
// # Synthetic Photos
//
//	data := testutil.PNG(3)          // decodable, distinct per seed
//	bad := testutil.CorruptImage()   // fails decoding
//
// # Models
//
// QuadrantModel is a deterministic 12-dimensional embedding model that
// satisfies extract.Model without any network or weights.
package testutil
