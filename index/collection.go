package index

import "fmt"

// Collection is an ordered list of entries in which every vector travels
// with its identity. It is the exchange format between backends, the
// builder and the snapshot layer.
type Collection []Entry

// IdentitySet returns the distinct identities in the collection.
func (c Collection) IdentitySet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, e := range c {
		set[e.IdentityID] = struct{}{}
	}
	return set
}

// Validate checks every entry against cfg without modifying it.
func (c Collection) Validate(cfg Config) error {
	for i, e := range c {
		if e.IdentityID == "" {
			return fmt.Errorf("entry %d: %w", i, ErrEmptyIdentity)
		}
		if len(e.Vector) != cfg.Dimension {
			return fmt.Errorf("entry %d: %w", i, &ErrDimensionMismatch{Expected: cfg.Dimension, Actual: len(e.Vector)})
		}
	}
	return nil
}
