// Package index defines the vector store contract shared by the exact
// backends.
//
// A store holds (vector, identity) entries in insertion order and answers
// k-nearest queries over them. Two backends satisfy the same contract:
//
//   - flat: every entry is ranked on its own; O(N*D) per query.
//   - identity: entries are grouped per identity and each identity is
//     ranked by its single best entry.
//
// # Metrics
//
//   - distance.MetricL2: squared Euclidean distance, Score ascending
//   - distance.MetricDot: inner product, Score descending (cosine when
//     Config.Normalized is set)
//
// # Positional invariant
//
// Entry i of a store always pairs vector i with identity i. Backends that
// keep vectors and identities in separate slices assert equal lengths after
// every Add and on Load and report drift as *ConsistencyError.
//
// # Subpackages
//
//   - flat: contiguous exact scan, k best entries
//   - identity: per-identity best-of scan, k best identities
package index
