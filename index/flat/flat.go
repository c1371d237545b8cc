// Package flat provides an exact, contiguous vector store.
//
// Vectors are kept in one []float32 and identities in a parallel slice.
// Search scans every vector, so cost is O(N*D) per query. That is exact and
// simple and fits catalogs of hundreds to a few thousand vectors; it is not
// meant for large N.
package flat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/pawprint/distance"
	"github.com/hupe1980/pawprint/index"
	"github.com/hupe1980/pawprint/internal/queue"
)

// Compile-time check to ensure Flat satisfies index.Store.
var _ index.Store = (*Flat)(nil)

// ctxCheckInterval is how many entries are scanned between context checks.
const ctxCheckInterval = 4096

// indexState holds the immutable state of the store for lock-free reads.
//
// Writers only ever append past the end of the previous state's slices, so
// a reader holding an older state never observes a partially written entry.
type indexState struct {
	data []float32 // len == len(ids) * dimension
	ids  []string
}

func (st *indexState) len() int { return len(st.ids) }

func (st *indexState) vector(i, dim int) []float32 {
	return st.data[i*dim : (i+1)*dim : (i+1)*dim]
}

// Flat is an exact vector store.
// It uses a copy-on-write pattern for lock-free concurrent reads.
type Flat struct {
	state   atomic.Pointer[indexState]
	writeMu sync.Mutex // serializes Add
	cfg     index.Config
	dist    distance.Func
}

// New creates an empty flat store.
func New(cfg index.Config) (*Flat, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dist, err := distance.Provider(cfg.Metric)
	if err != nil {
		return nil, err
	}

	f := &Flat{cfg: cfg, dist: dist}
	f.state.Store(&indexState{})
	return f, nil
}

// Load creates a store from previously stored entries.
//
// Vectors are taken as stored: they are not normalized again, so a store
// saved and loaded again holds bit-identical vectors.
func Load(cfg index.Config, entries []index.Entry) (*Flat, error) {
	f, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := index.Collection(entries).Validate(cfg); err != nil {
		return nil, fmt.Errorf("flat: %w", err)
	}

	st := &indexState{
		data: make([]float32, 0, len(entries)*cfg.Dimension),
		ids:  make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		st.data = append(st.data, e.Vector...)
		st.ids = append(st.ids, e.IdentityID)
	}
	if err := f.assertAligned(st); err != nil {
		return nil, err
	}
	f.state.Store(st)
	return f, nil
}

// Name returns the backend name.
func (*Flat) Name() string { return "flat" }

// Config returns the store configuration.
func (f *Flat) Config() index.Config { return f.cfg }

// Len returns the number of entries.
func (f *Flat) Len() int { return f.state.Load().len() }

// Add appends vector for identityID.
// The vector and identity are published together in one state swap.
func (f *Flat) Add(vector []float32, identityID string) error {
	if identityID == "" {
		return index.ErrEmptyIdentity
	}
	v, err := index.PrepareVector(f.cfg, vector)
	if err != nil {
		return fmt.Errorf("flat: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	old := f.state.Load()
	next := &indexState{
		data: append(old.data, v...),
		ids:  append(old.ids, identityID),
	}
	if err := f.assertAligned(next); err != nil {
		return err
	}
	f.state.Store(next)
	return nil
}

func (f *Flat) assertAligned(st *indexState) error {
	dim := f.cfg.Dimension
	if len(st.data)%dim != 0 {
		return &index.ConsistencyError{
			Vectors:    len(st.data) / dim,
			Identities: len(st.ids),
			Reason:     fmt.Sprintf("vector data length %d is not a multiple of dimension %d", len(st.data), dim),
		}
	}
	return index.AssertAligned(len(st.data)/dim, len(st.ids))
}

// Vector returns a copy of the stored vector at position.
func (f *Flat) Vector(position int) ([]float32, string, bool) {
	st := f.state.Load()
	if position < 0 || position >= st.len() {
		return nil, "", false
	}
	v := st.vector(position, f.cfg.Dimension)
	out := make([]float32, len(v))
	copy(out, v)
	return out, st.ids[position], true
}

// Entries returns copies of all entries in insertion order.
func (f *Flat) Entries() []index.Entry {
	st := f.state.Load()
	dim := f.cfg.Dimension
	out := make([]index.Entry, st.len())
	for i := range out {
		v := make([]float32, dim)
		copy(v, st.vector(i, dim))
		out[i] = index.Entry{Vector: v, IdentityID: st.ids[i]}
	}
	return out
}

// Search returns the k entries closest to query, best first.
// Exact score ties are broken by insertion position (earlier wins).
func (f *Flat) Search(ctx context.Context, query []float32, k int, opts ...index.SearchOption) ([]index.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	q, err := index.PrepareVector(f.cfg, query)
	if err != nil {
		return nil, fmt.Errorf("flat: query: %w", err)
	}

	st := f.state.Load()
	n := st.len()
	if n == 0 {
		return nil, nil
	}
	o := index.ApplySearchOptions(opts)

	topK := queue.NewTopK(min(k, n))
	dim := f.cfg.Dimension
	for i := 0; i < n; i++ {
		if i%ctxCheckInterval == 0 && i > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		pos := uint32(i)
		if !o.Allowed(pos) {
			continue
		}
		score := f.dist(q, st.vector(i, dim))
		topK.Offer(queue.Item{Position: pos, Key: index.RankKey(f.cfg.Metric, score)})
	}

	items := topK.Drain()
	results := make([]index.Result, len(items))
	for i, it := range items {
		results[i] = index.Result{
			IdentityID: st.ids[it.Position],
			Score:      index.ScoreFromKey(f.cfg.Metric, it.Key),
			Position:   it.Position,
		}
	}
	return results, nil
}

// Stats describes the store.
type Stats struct {
	Entries    int
	Identities int
	Dimension  int
	Bytes      int
}

// Stats returns size statistics.
func (f *Flat) Stats() Stats {
	st := f.state.Load()
	ids := make(map[string]struct{})
	for _, id := range st.ids {
		ids[id] = struct{}{}
	}
	return Stats{
		Entries:    st.len(),
		Identities: len(ids),
		Dimension:  f.cfg.Dimension,
		Bytes:      len(st.data) * 4,
	}
}
