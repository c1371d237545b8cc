// Package identity provides a vector store that ranks identities rather
// than single vectors.
//
// An identity may own several vectors (several photos of the same dog).
// A query is scored against every vector of every identity; each identity
// keeps only its single best score, never an average, and identities are
// ranked by that score. On an exact tie the identity that was inserted
// first wins.
package identity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/pawprint/distance"
	"github.com/hupe1980/pawprint/index"
	"github.com/hupe1980/pawprint/internal/queue"
)

// Compile-time check to ensure Store satisfies index.Store.
var _ index.Store = (*Store)(nil)

// group holds the vectors of one identity.
type group struct {
	id        string
	positions []uint32 // insertion positions of the vectors below
	vectors   [][]float32
}

// storeState is immutable once published.
type storeState struct {
	groups  []*group       // in order of first insertion
	byID    map[string]int // identity -> index in groups
	entries []index.Entry  // insertion order
}

func (st *storeState) clone() *storeState {
	next := &storeState{
		groups:  make([]*group, len(st.groups)),
		byID:    make(map[string]int, len(st.byID)+1),
		entries: st.entries,
	}
	copy(next.groups, st.groups)
	for k, v := range st.byID {
		next.byID[k] = v
	}
	return next
}

// Store is the per-identity best-of backend.
type Store struct {
	state   atomic.Pointer[storeState]
	writeMu sync.Mutex
	cfg     index.Config
	dist    distance.Func
}

// New creates an empty store.
func New(cfg index.Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dist, err := distance.Provider(cfg.Metric)
	if err != nil {
		return nil, err
	}
	s := &Store{cfg: cfg, dist: dist}
	s.state.Store(&storeState{byID: map[string]int{}})
	return s, nil
}

// Load creates a store from stored entries without normalizing them again.
func Load(cfg index.Config, entries []index.Entry) (*Store, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := index.Collection(entries).Validate(cfg); err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	st := s.state.Load().clone()
	for _, e := range entries {
		st = appendEntry(st, e)
	}
	if err := assertAligned(st); err != nil {
		return nil, err
	}
	s.state.Store(st)
	return s, nil
}

// appendEntry adds e to st in place. st must not be published yet.
func appendEntry(st *storeState, e index.Entry) *storeState {
	pos := uint32(len(st.entries))
	st.entries = append(st.entries, e)

	gi, ok := st.byID[e.IdentityID]
	if !ok {
		st.groups = append(st.groups, &group{id: e.IdentityID})
		gi = len(st.groups) - 1
		st.byID[e.IdentityID] = gi
	}
	old := st.groups[gi]
	st.groups[gi] = &group{
		id:        old.id,
		positions: append(old.positions, pos),
		vectors:   append(old.vectors, e.Vector),
	}
	return st
}

func assertAligned(st *storeState) error {
	grouped := 0
	for _, g := range st.groups {
		if len(g.positions) != len(g.vectors) {
			return &index.ConsistencyError{
				Vectors:    len(g.vectors),
				Identities: len(g.positions),
				Reason:     fmt.Sprintf("identity %q", g.id),
			}
		}
		grouped += len(g.vectors)
	}
	return index.AssertAligned(grouped, len(st.entries))
}

// Name returns the backend name.
func (*Store) Name() string { return "identity" }

// Config returns the store configuration.
func (s *Store) Config() index.Config { return s.cfg }

// Len returns the number of entries (vectors), not identities.
func (s *Store) Len() int { return len(s.state.Load().entries) }

// Identities returns the number of distinct identities.
func (s *Store) Identities() int { return len(s.state.Load().groups) }

// Add appends a vector to identityID's group.
func (s *Store) Add(vector []float32, identityID string) error {
	if identityID == "" {
		return index.ErrEmptyIdentity
	}
	v, err := index.PrepareVector(s.cfg, vector)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := appendEntry(s.state.Load().clone(), index.Entry{Vector: v, IdentityID: identityID})
	if err := assertAligned(next); err != nil {
		return err
	}
	s.state.Store(next)
	return nil
}

// Entries returns copies of all entries in insertion order.
func (s *Store) Entries() []index.Entry {
	st := s.state.Load()
	out := make([]index.Entry, len(st.entries))
	for i, e := range st.entries {
		v := make([]float32, len(e.Vector))
		copy(v, e.Vector)
		out[i] = index.Entry{Vector: v, IdentityID: e.IdentityID}
	}
	return out
}

// Search returns up to k identities ranked by their best vector.
// Result.Position is the position of that best vector.
func (s *Store) Search(ctx context.Context, query []float32, k int, opts ...index.SearchOption) ([]index.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	q, err := index.PrepareVector(s.cfg, query)
	if err != nil {
		return nil, fmt.Errorf("identity: query: %w", err)
	}

	st := s.state.Load()
	if len(st.groups) == 0 {
		return nil, nil
	}
	o := index.ApplySearchOptions(opts)

	// Each identity competes with its best item. Because groups are kept in
	// order of first insertion, ties between identities are resolved by the
	// group's first position rather than by the best vector's position.
	type best struct {
		item  queue.Item
		group int
	}
	topK := queue.NewTopK(min(k, len(st.groups)))
	bests := make(map[uint32]best, len(st.groups))

	for gi, g := range st.groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			bestKey float32
			bestPos uint32
			found   bool
		)
		for i, v := range g.vectors {
			pos := g.positions[i]
			if !o.Allowed(pos) {
				continue
			}
			key := index.RankKey(s.cfg.Metric, s.dist(q, v))
			if !found || key < bestKey {
				bestKey, bestPos, found = key, pos, true
			}
		}
		if !found {
			continue
		}
		rank := queue.Item{Position: g.positions[0], Key: bestKey}
		bests[rank.Position] = best{item: queue.Item{Position: bestPos, Key: bestKey}, group: gi}
		topK.Offer(rank)
	}

	items := topK.Drain()
	results := make([]index.Result, len(items))
	for i, it := range items {
		b := bests[it.Position]
		results[i] = index.Result{
			IdentityID: st.groups[b.group].id,
			Score:      index.ScoreFromKey(s.cfg.Metric, b.item.Key),
			Position:   b.item.Position,
		}
	}
	return results, nil
}
