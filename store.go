package pawprint

import (
	"fmt"

	"github.com/hupe1980/pawprint/index"
	"github.com/hupe1980/pawprint/index/flat"
	"github.com/hupe1980/pawprint/index/identity"
)

// NewStore creates an empty store for backend.
func NewStore(backend index.Backend, cfg index.Config) (index.Store, error) {
	switch backend {
	case index.BackendFlat:
		return flat.New(cfg)
	case index.BackendIdentity:
		return identity.New(cfg)
	default:
		return nil, fmt.Errorf("pawprint: unknown backend %s", backend)
	}
}

// LoadStore creates a read-mostly store from already prepared entries,
// e.g. a decoded snapshot. Vectors are taken as stored and not
// renormalized.
func LoadStore(backend index.Backend, cfg index.Config, entries []index.Entry) (index.Store, error) {
	var (
		st  index.Store
		err error
	)
	switch backend {
	case index.BackendFlat:
		st, err = flat.Load(cfg, entries)
	case index.BackendIdentity:
		st, err = identity.Load(cfg, entries)
	default:
		return nil, fmt.Errorf("pawprint: unknown backend %s", backend)
	}
	if err != nil {
		return nil, err
	}
	if err := index.AssertAligned(st.Len(), len(entries)); err != nil {
		return nil, err
	}
	return st, nil
}
