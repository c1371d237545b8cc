package pawprint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pawprint/dataset"
	"github.com/hupe1980/pawprint/extract"
	"github.com/hupe1980/pawprint/index"
	"github.com/hupe1980/pawprint/persistence"
)

// BuildState is a step of the build state machine.
type BuildState uint8

const (
	// StateScanning waits for the next pair in source order.
	StateScanning BuildState = iota
	// StateExtracting has the embedding result of the next pair.
	StateExtracting
	// StateAppending has appended the pair to the store.
	StateAppending
	// StateFinalizing writes the snapshot.
	StateFinalizing
	// StatePersisted is terminal: the snapshot was written.
	StatePersisted
	// StateFailed is terminal: the build aborted and nothing was written.
	StateFailed
)

func (s BuildState) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateExtracting:
		return "extracting"
	case StateAppending:
		return "appending"
	case StateFinalizing:
		return "finalizing"
	case StatePersisted:
		return "persisted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("BuildState(%d)", s)
	}
}

// Progress is reported to a ProgressFunc after every state change.
type Progress struct {
	State      BuildState
	Key        string
	IdentityID string
	Processed  int
	Appended   int
	Skipped    int
}

// ProgressFunc observes a running build.
type ProgressFunc func(Progress)

// Failure records one skipped image.
type Failure struct {
	Key        string
	IdentityID string
	Err        error
}

// BuildResult summarizes a build or update.
type BuildResult struct {
	BuildID string

	// Count is the number of entries in the new store for Build and the
	// number of appended entries for Update.
	Count int

	// Appended is the number of entries added by this run.
	Appended int

	// Skipped is the number of images that could not be loaded or
	// embedded. Each one has a Failure.
	Skipped int

	// Existing is the number of pairs Update left out because their
	// identity was already indexed.
	Existing int

	Failures []Failure

	// Info describes the written snapshot.
	Info persistence.Info

	// Snapshot is the finished snapshot, ready for Engine.Swap.
	Snapshot *persistence.Snapshot

	Duration time.Duration
}

// UpdateOptions controls Builder.Update.
type UpdateOptions struct {
	// Force embeds pairs of identities that are already indexed.
	Force bool
}

// Builder turns a dataset into a persisted snapshot.
type Builder struct {
	ex     *extract.Extractor
	target persistence.Target
	opts   options
}

// NewBuilder creates a builder that embeds with ex and saves to target.
// A nil target keeps the snapshot in memory only (BuildResult.Snapshot)
// and never acks a dataset.Acker source.
func NewBuilder(ex *extract.Extractor, target persistence.Target, optFns ...Option) (*Builder, error) {
	if ex == nil {
		return nil, errors.New("pawprint: extractor is required")
	}
	return &Builder{
		ex:     ex,
		target: target,
		opts:   applyOptions(optFns),
	}, nil
}

// Build embeds every pair of src into a new store and persists it.
//
// Images that fail to load or embed are skipped and recorded in
// BuildResult.Failures. Source errors, cancellation and a failed save abort
// the build; on abort no artifact is written and nothing is acked.
func (b *Builder) Build(ctx context.Context, src dataset.Source) (BuildResult, error) {
	start := time.Now()
	res := BuildResult{BuildID: b.opts.newBuildID()}

	res, err := b.build(ctx, res, src)
	b.finish(ctx, &res, start, err)
	return res, err
}

func (b *Builder) build(ctx context.Context, res BuildResult, src dataset.Source) (BuildResult, error) {
	dim := b.ex.Dimension()
	if dim == 0 {
		return res, ErrNoModel
	}
	cfg := index.Config{
		Dimension:  dim,
		Metric:     b.opts.metric,
		Normalized: b.opts.normalize,
	}
	store, err := NewStore(b.opts.backend, cfg)
	if err != nil {
		return res, err
	}

	version := b.ex.ModelVersion()
	embedded, err := b.run(ctx, &res, store, src, version, nil)
	if err != nil {
		return res, err
	}
	res.Count = store.Len()

	res, err = b.finalize(ctx, res, store, b.opts.backend, version)
	if err != nil {
		return res, err
	}
	return res, b.ack(ctx, src, embedded)
}

// Update appends the pairs of src whose identity has no entries in base
// and persists the combined store. base is not modified.
//
// base must have been built with the extractor's model; otherwise
// ErrModelMismatch is returned.
func (b *Builder) Update(ctx context.Context, base *persistence.Snapshot, src dataset.Source, optFns ...func(o *UpdateOptions)) (BuildResult, error) {
	start := time.Now()
	res := BuildResult{BuildID: b.opts.newBuildID()}

	res, err := b.update(ctx, res, base, src, optFns)
	b.finish(ctx, &res, start, err)
	return res, err
}

func (b *Builder) update(ctx context.Context, res BuildResult, base *persistence.Snapshot, src dataset.Source, optFns []func(o *UpdateOptions)) (BuildResult, error) {
	if base == nil {
		return res, errors.New("pawprint: update needs a base snapshot")
	}
	var opts UpdateOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	dim := b.ex.Dimension()
	if dim == 0 {
		return res, ErrNoModel
	}
	if base.Config.Dimension != dim {
		return res, fmt.Errorf("%w: snapshot dimension %d, model dimension %d", ErrModelMismatch, base.Config.Dimension, dim)
	}
	version := b.ex.ModelVersion()
	if base.ModelVersion != "" && base.ModelVersion != version {
		return res, fmt.Errorf("%w: snapshot model %q, current model %q", ErrModelMismatch, base.ModelVersion, version)
	}

	store, err := LoadStore(base.Backend, base.Config, base.Entries)
	if err != nil {
		return res, err
	}

	var existing map[string]struct{}
	if !opts.Force {
		existing = index.Collection(base.Entries).IdentitySet()
	}
	embedded, err := b.run(ctx, &res, store, src, version, existing)
	if err != nil {
		return res, err
	}
	res.Count = res.Appended

	res, err = b.finalize(ctx, res, store, base.Backend, version)
	if err != nil {
		return res, err
	}
	return res, b.ack(ctx, src, embedded)
}

type job struct {
	seq  int
	pair dataset.Pair
}

type outcome struct {
	job
	vector []float32
	err    error
}

// run embeds src in parallel and appends in source order. Pairs whose
// identity is in skip are left out. It returns the appended pairs when src
// wants acks.
func (b *Builder) run(ctx context.Context, res *BuildResult, store index.Store, src dataset.Source, version string, skip map[string]struct{}) ([]dataset.Embedded, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var embedded *[]dataset.Embedded
	if _, ok := src.(dataset.Acker); ok && b.target != nil {
		embedded = new([]dataset.Embedded)
	}
	rc := b.opts.controller
	logger := b.opts.logger.WithBuildID(res.BuildID)

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan outcome, rc.Workers())

	var existing int
	g.Go(func() error {
		seq := 0
		for pair, err := range src.Pairs(gctx) {
			if err != nil {
				return fmt.Errorf("pawprint: read dataset: %w", err)
			}
			if _, ok := skip[pair.IdentityID]; ok {
				existing++
				continue
			}
			if err := rc.AcquireWorker(gctx); err != nil {
				return err
			}

			j := job{seq: seq, pair: pair}
			seq++
			g.Go(func() error {
				defer rc.ReleaseWorker()

				vec, err := b.embed(gctx, j.pair)
				if err != nil && isContextErr(err) && gctx.Err() != nil {
					return err
				}
				select {
				case results <- outcome{job: j, vector: vec, err: err}:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		return nil
	})

	var waitErr error
	go func() {
		waitErr = g.Wait()
		close(results)
	}()

	var (
		fatal     error
		next      int
		processed int
		pending   = make(map[int]outcome)
	)
	for o := range results {
		if fatal != nil {
			continue
		}
		pending[o.seq] = o
		for fatal == nil {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			processed++

			fatal = b.appendOne(ctx, res, store, embedded, logger, cur, processed)
			if fatal != nil {
				cancel()
			}
		}
	}

	if fatal != nil {
		return nil, fatal
	}
	if waitErr != nil {
		return nil, waitErr
	}
	res.Existing = existing

	if v := b.ex.ModelVersion(); v != version {
		return nil, fmt.Errorf("%w: model changed from %q to %q during build", ErrModelMismatch, version, v)
	}
	if embedded == nil {
		return nil, nil
	}
	return *embedded, nil
}

// appendOne handles the next outcome in source order. Only the calling
// goroutine mutates res and store.
func (b *Builder) appendOne(ctx context.Context, res *BuildResult, store index.Store, embedded *[]dataset.Embedded, logger *Logger, o outcome, processed int) error {
	b.report(res, StateExtracting, o.pair, processed)

	err := o.err
	if err == nil {
		err = store.Add(o.vector, o.pair.IdentityID)
		if IsConsistencyError(err) {
			return err
		}
	}
	if err != nil {
		res.Skipped++
		res.Failures = append(res.Failures, Failure{
			Key:        o.pair.Key,
			IdentityID: o.pair.IdentityID,
			Err:        err,
		})
		logger.LogSkip(ctx, o.pair.Key, o.pair.IdentityID, err)
		b.report(res, StateScanning, o.pair, processed)
		return nil
	}

	res.Appended++
	if embedded != nil {
		*embedded = append(*embedded, dataset.Embedded{Pair: o.pair, Vector: o.vector})
	}
	b.report(res, StateAppending, o.pair, processed)
	return nil
}

// embed loads and extracts one pair. Errors other than cancellation
// cause the pair to be skipped.
func (b *Builder) embed(ctx context.Context, pair dataset.Pair) ([]float32, error) {
	if pair.Open == nil {
		return nil, fmt.Errorf("pawprint: %s has no image", pair.Key)
	}
	data, err := pair.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("pawprint: load %s: %w", pair.Key, err)
	}

	rc := b.opts.controller
	size := int64(len(data))
	if err := rc.AcquireMemory(ctx, size); err != nil {
		return nil, err
	}
	defer rc.ReleaseMemory(size)

	start := time.Now()
	vec, err := b.ex.Extract(ctx, data)
	b.opts.metricsCollector.RecordExtract(time.Since(start), err)
	return vec, err
}

func (b *Builder) finalize(ctx context.Context, res BuildResult, store index.Store, backend index.Backend, version string) (BuildResult, error) {
	b.report(&res, StateFinalizing, dataset.Pair{}, res.Appended+res.Skipped)

	entries := store.Entries()
	if err := index.AssertAligned(len(entries), store.Len()); err != nil {
		return res, err
	}

	snap := &persistence.Snapshot{
		Config:       store.Config(),
		Backend:      backend,
		BuildID:      res.BuildID,
		ModelVersion: version,
		CreatedAt:    b.opts.now().UTC(),
		Entries:      entries,
	}
	res.Info = snap.Info()

	if b.target != nil {
		info, err := b.target.Save(ctx, snap, b.opts.writeOptions...)
		b.opts.logger.LogSnapshot(ctx, b.target.String(), info, err)
		if err != nil {
			return res, &PersistenceError{Target: b.target.String(), Err: err}
		}
		res.Info = info
	}
	res.Snapshot = snap

	b.report(&res, StatePersisted, dataset.Pair{}, res.Appended+res.Skipped)
	return res, nil
}

// ack hands the appended pairs to an Acker source once the snapshot is
// saved. On error the snapshot stays written and res stays valid.
func (b *Builder) ack(ctx context.Context, src dataset.Source, embedded []dataset.Embedded) error {
	acker, ok := src.(dataset.Acker)
	if !ok || b.target == nil || len(embedded) == 0 {
		return nil
	}
	if err := acker.Ack(ctx, embedded); err != nil {
		return fmt.Errorf("pawprint: snapshot saved to %s, ack: %w", b.target.String(), err)
	}
	return nil
}

func (b *Builder) finish(ctx context.Context, res *BuildResult, start time.Time, err error) {
	res.Duration = time.Since(start)
	if err != nil {
		b.report(res, StateFailed, dataset.Pair{}, res.Appended+res.Skipped)
	}
	b.opts.logger.LogBuild(ctx, *res, err)
	b.opts.metricsCollector.RecordBuild(res.Count, res.Skipped, res.Duration, err)
}

func (b *Builder) report(res *BuildResult, state BuildState, pair dataset.Pair, processed int) {
	if b.opts.progress == nil {
		return
	}
	b.opts.progress(Progress{
		State:      state,
		Key:        pair.Key,
		IdentityID: pair.IdentityID,
		Processed:  processed,
		Appended:   res.Appended,
		Skipped:    res.Skipped,
	})
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
