package index

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/pawprint/distance"
)

// Backend selects a Store implementation.
type Backend uint8

const (
	// BackendFlat ranks every entry on its own.
	BackendFlat Backend = iota
	// BackendIdentity ranks identities by their best entry.
	BackendIdentity
)

func (b Backend) String() string {
	switch b {
	case BackendFlat:
		return "flat"
	case BackendIdentity:
		return "identity"
	default:
		return fmt.Sprintf("Backend(%d)", b)
	}
}

// ParseBackend maps a configuration string to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "", "flat":
		return BackendFlat, nil
	case "identity", "per-identity":
		return BackendIdentity, nil
	default:
		return 0, fmt.Errorf("index: unknown backend %q", s)
	}
}

// Config is the store-wide vector configuration.
// It is fixed when a store is created and recorded in every snapshot.
type Config struct {
	// Dimension is the fixed vector dimensionality. Must be > 0.
	Dimension int

	// Metric selects how entries are ranked.
	Metric distance.Metric

	// Normalized makes the store L2-normalize every added vector and every
	// query. All vectors of one store share this setting.
	Normalized bool
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimension, c.Dimension)
	}
	if _, err := distance.Provider(c.Metric); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	return nil
}

// Entry pairs one embedding with the identity it was extracted from.
type Entry struct {
	Vector     []float32
	IdentityID string
}

// Result is a single search hit.
type Result struct {
	// IdentityID is the identity owning the hit.
	IdentityID string

	// Score is the squared L2 distance (MetricL2) or the dot product
	// (MetricDot) between the query and the hit.
	Score float32

	// Position is the insertion position of the entry that produced the
	// score. For the identity backend it is that identity's best entry.
	Position uint32
}

// Store is the capability shared by all backends.
//
// Add is only used while building. A store that is being queried is never
// mutated; callers replace whole stores instead.
type Store interface {
	// Add appends a vector for identityID. Vector and identity land at the
	// same position in a single step.
	Add(vector []float32, identityID string) error

	// Search returns up to k results, best first.
	Search(ctx context.Context, query []float32, k int, opts ...SearchOption) ([]Result, error)

	// Len returns the number of entries.
	Len() int

	// Config returns the store configuration.
	Config() Config

	// Entries returns all entries in insertion order. Vectors are the
	// stored (possibly normalized) values.
	Entries() []Entry
}

// SearchOptions controls a single search.
type SearchOptions struct {
	// Allow restricts the scan to these entry positions. Nil means all.
	Allow *roaring.Bitmap
}

// SearchOption configures a search.
type SearchOption func(*SearchOptions)

// WithAllow restricts a search to the given entry positions.
func WithAllow(positions *roaring.Bitmap) SearchOption {
	return func(o *SearchOptions) {
		o.Allow = positions
	}
}

// ApplySearchOptions folds opts into a SearchOptions value.
func ApplySearchOptions(opts []SearchOption) SearchOptions {
	var o SearchOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Allowed reports whether position passes the allow list.
func (o SearchOptions) Allowed(position uint32) bool {
	return o.Allow == nil || o.Allow.Contains(position)
}

// PrepareVector validates v against cfg and returns the vector to store.
// The result never aliases v.
func PrepareVector(cfg Config, v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, ErrEmptyVector
	}
	if len(v) != cfg.Dimension {
		return nil, &ErrDimensionMismatch{Expected: cfg.Dimension, Actual: len(v)}
	}
	if cfg.Normalized {
		n, ok := distance.NormalizeL2Copy(v)
		if !ok {
			return nil, ErrZeroVector
		}
		return n, nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, nil
}

// RankKey converts a score into a key where lower is always better.
func RankKey(m distance.Metric, score float32) float32 {
	if m.HigherIsBetter() {
		return -score
	}
	return score
}

// ScoreFromKey is the inverse of RankKey.
func ScoreFromKey(m distance.Metric, key float32) float32 {
	if m.HigherIsBetter() {
		return -key
	}
	return key
}

// IdentityPositions groups entry positions by identity. The bitmaps serve
// as allow lists for searches restricted to some identities.
func IdentityPositions(entries []Entry) map[string]*roaring.Bitmap {
	positions := make(map[string]*roaring.Bitmap)
	for i, e := range entries {
		bm, ok := positions[e.IdentityID]
		if !ok {
			bm = roaring.New()
			positions[e.IdentityID] = bm
		}
		bm.Add(uint32(i))
	}
	for _, bm := range positions {
		bm.RunOptimize()
	}
	return positions
}
