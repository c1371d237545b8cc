package pawprint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/pawprint/extract"
	"github.com/hupe1980/pawprint/index"
	"github.com/hupe1980/pawprint/persistence"
)

// Match is the outcome of a match query.
type Match struct {
	// IdentityID is the accepted identity.
	IdentityID string

	// Score is the best score: dot product in similarity mode, squared
	// L2 distance in distance mode.
	Score float32

	// Candidates are the k results the decision was based on, best first.
	Candidates []index.Result
}

// Found reports whether the match was accepted.
func (m Match) Found() bool { return m.IdentityID != "" }

// NoMatch is returned when no candidate passes the policy.
var NoMatch = Match{}

type matchOptions struct {
	identities []string
	candidates int
}

// MatchOption configures a single match or search.
type MatchOption func(*matchOptions)

// WithIdentities restricts the query to entries of the given identities.
func WithIdentities(ids ...string) MatchOption {
	return func(o *matchOptions) {
		o.identities = append(o.identities, ids...)
	}
}

// WithCandidates overrides Policy.Candidates for one query.
func WithCandidates(k int) MatchOption {
	return func(o *matchOptions) {
		o.candidates = k
	}
}

// engineState is one immutable loaded snapshot.
type engineState struct {
	store     index.Store
	info      persistence.Info
	positions map[string]*roaring.Bitmap
}

func newEngineState(store index.Store, info persistence.Info) *engineState {
	return &engineState{
		store:     store,
		info:      info,
		positions: index.IdentityPositions(store.Entries()),
	}
}

// allow returns the union of the positions of ids. ok is false when none
// of them is indexed.
func (st *engineState) allow(ids []string) (*roaring.Bitmap, bool) {
	bms := make([]*roaring.Bitmap, 0, len(ids))
	for _, id := range ids {
		if bm, ok := st.positions[id]; ok {
			bms = append(bms, bm)
		}
	}
	if len(bms) == 0 {
		return nil, false
	}
	return roaring.FastOr(bms...), true
}

// Engine answers match queries against one loaded snapshot. The snapshot
// is replaced atomically; queries in flight finish on the snapshot they
// started with.
type Engine struct {
	ex     *extract.Extractor
	target persistence.Target
	opts   options

	state    atomic.Pointer[engineState]
	reloadMu sync.Mutex
}

// NewEngine creates an engine without a snapshot. Queries return
// ErrNotLoaded until Swap is called.
func NewEngine(ex *extract.Extractor, optFns ...Option) (*Engine, error) {
	opts := applyOptions(optFns)
	if opts.policy.Candidates < 0 {
		return nil, fmt.Errorf("%w: candidates %d", ErrInvalidPolicy, opts.policy.Candidates)
	}
	return &Engine{
		ex:   ex,
		opts: opts,
	}, nil
}

// Open creates an engine and loads the snapshot at target.
func Open(ctx context.Context, ex *extract.Extractor, target persistence.Target, optFns ...Option) (*Engine, error) {
	e, err := NewEngine(ex, optFns...)
	if err != nil {
		return nil, err
	}
	e.target = target
	if err := e.Reload(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload loads the configured target and swaps it in. On failure the
// previous snapshot keeps serving.
func (e *Engine) Reload(ctx context.Context) error {
	if e.target == nil {
		return ErrNoTarget
	}
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	start := time.Now()
	snap, info, err := e.target.Load(ctx)
	if err == nil {
		err = e.swap(snap, info)
	}
	e.opts.logger.LogReload(ctx, e.target.String(), info, err)
	e.opts.metricsCollector.RecordLoad(info.Vectors, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("pawprint: load %s: %w", e.target.String(), err)
	}
	return nil
}

// Swap validates snap and makes it the serving snapshot.
func (e *Engine) Swap(snap *persistence.Snapshot) error {
	if snap == nil {
		return errors.New("pawprint: nil snapshot")
	}
	return e.swap(snap, snap.Info())
}

func (e *Engine) swap(snap *persistence.Snapshot, info persistence.Info) error {
	metric := snap.Config.Metric
	if err := e.opts.policy.Validate(metric); err != nil {
		return err
	}
	if e.opts.policy.uncalibrated(metric) {
		e.opts.logger.Warn("distance mode without MaxDistance: the nearest identity is always accepted")
	}

	if e.ex != nil {
		if dim := e.ex.Dimension(); dim != 0 && dim != snap.Config.Dimension {
			return fmt.Errorf("%w: snapshot dimension %d, model dimension %d", ErrModelMismatch, snap.Config.Dimension, dim)
		}
		if v := e.ex.ModelVersion(); snap.ModelVersion != "" && v != snap.ModelVersion {
			e.opts.logger.Warn("snapshot built with a different model version",
				"snapshot_model", snap.ModelVersion,
				"model", v,
			)
		}
	}

	store, err := LoadStore(snap.Backend, snap.Config, snap.Entries)
	if err != nil {
		return err
	}
	e.state.Store(newEngineState(store, info))
	return nil
}

// Info describes the serving snapshot.
func (e *Engine) Info() (persistence.Info, bool) {
	st := e.state.Load()
	if st == nil {
		return persistence.Info{}, false
	}
	return st.info, true
}

// Len returns the number of entries being served.
func (e *Engine) Len() int {
	st := e.state.Load()
	if st == nil {
		return 0
	}
	return st.store.Len()
}

// Policy returns the acceptance policy.
func (e *Engine) Policy() Policy { return e.opts.policy }

// MatchByImage embeds data and matches it. Extraction failures are
// returned as *ExtractionError.
func (e *Engine) MatchByImage(ctx context.Context, data []byte, optFns ...MatchOption) (Match, error) {
	start := time.Now()
	m, best, err := e.matchImage(ctx, data, optFns)
	e.observe(ctx, m, best, time.Since(start), err)
	return m, err
}

func (e *Engine) matchImage(ctx context.Context, data []byte, optFns []MatchOption) (Match, float32, error) {
	if e.state.Load() == nil {
		return NoMatch, 0, ErrNotLoaded
	}
	vec, err := e.extract(ctx, data)
	if err != nil {
		return NoMatch, 0, err
	}
	return e.match(ctx, vec, optFns)
}

// MatchVector matches an embedding that is already at hand.
func (e *Engine) MatchVector(ctx context.Context, vec []float32, optFns ...MatchOption) (Match, error) {
	start := time.Now()
	m, best, err := e.match(ctx, vec, optFns)
	e.observe(ctx, m, best, time.Since(start), err)
	return m, err
}

func (e *Engine) match(ctx context.Context, vec []float32, optFns []MatchOption) (Match, float32, error) {
	st := e.state.Load()
	if st == nil {
		return NoMatch, 0, ErrNotLoaded
	}
	opts := matchOptions{candidates: e.opts.policy.k()}
	for _, fn := range optFns {
		fn(&opts)
	}

	results, err := e.search(ctx, st, vec, opts)
	if err != nil || len(results) == 0 {
		return NoMatch, 0, err
	}

	best := results[0]
	if !e.opts.policy.Accept(st.store.Config().Metric, best.Score) {
		return NoMatch, best.Score, nil
	}
	return Match{
		IdentityID: best.IdentityID,
		Score:      best.Score,
		Candidates: results,
	}, best.Score, nil
}

// Search returns the k best results for vec without applying the policy.
func (e *Engine) Search(ctx context.Context, vec []float32, k int, optFns ...MatchOption) ([]index.Result, error) {
	st := e.state.Load()
	if st == nil {
		return nil, ErrNotLoaded
	}
	opts := matchOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.candidates = k
	return e.search(ctx, st, vec, opts)
}

// SearchByImage embeds data and returns its k best results.
func (e *Engine) SearchByImage(ctx context.Context, data []byte, k int, optFns ...MatchOption) ([]index.Result, error) {
	if e.state.Load() == nil {
		return nil, ErrNotLoaded
	}
	vec, err := e.extract(ctx, data)
	if err != nil {
		return nil, err
	}
	return e.Search(ctx, vec, k, optFns...)
}

func (e *Engine) search(ctx context.Context, st *engineState, vec []float32, opts matchOptions) ([]index.Result, error) {
	if opts.candidates <= 0 {
		return nil, ErrInvalidK
	}
	var searchOpts []index.SearchOption
	if len(opts.identities) > 0 {
		allow, ok := st.allow(opts.identities)
		if !ok {
			return nil, nil
		}
		searchOpts = append(searchOpts, index.WithAllow(allow))
	}
	return st.store.Search(ctx, vec, opts.candidates, searchOpts...)
}

func (e *Engine) extract(ctx context.Context, data []byte) ([]float32, error) {
	if e.ex == nil {
		return nil, ErrNoModel
	}
	start := time.Now()
	vec, err := e.ex.Extract(ctx, data)
	e.opts.metricsCollector.RecordExtract(time.Since(start), err)
	return vec, err
}

func (e *Engine) observe(ctx context.Context, m Match, best float32, d time.Duration, err error) {
	e.opts.logger.LogMatch(ctx, m, best, err)
	e.opts.metricsCollector.RecordMatch(m.Found(), d, err)
}
