package pawprint

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/pawprint/distance"
	"github.com/hupe1980/pawprint/index"
	"github.com/hupe1980/pawprint/persistence"
	"github.com/hupe1980/pawprint/resource"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger

	// Index configuration for new builds.
	metric    distance.Metric
	normalize bool
	backend   index.Backend

	// Build pipeline.
	controller   *resource.Controller
	progress     ProgressFunc
	writeOptions []func(*persistence.WriteOptions)

	// Matching.
	policy Policy

	now        func() time.Time
	newBuildID func() string
}

// Option configures a Builder or an Engine.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &pawprint.BasicMetricsCollector{}
//	eng, _ := pawprint.Open(ctx, ex, target, pawprint.WithMetricsCollector(metrics))
//	// ... serve ...
//	stats := metrics.GetStats()
//	fmt.Printf("Matches: %d, found: %d\n", stats.MatchCount, stats.MatchFound)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := pawprint.NewJSONLogger(slog.LevelInfo)
//	b, _ := pawprint.NewBuilder(ex, target, pawprint.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetric sets the metric of newly built stores. Default MetricDot.
func WithMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithNormalize sets whether newly built stores L2-normalize vectors.
// Default true, which makes MetricDot a cosine similarity.
func WithNormalize(normalize bool) Option {
	return func(o *options) {
		o.normalize = normalize
	}
}

// WithBackend selects the store backend of newly built stores.
// Default index.BackendFlat.
func WithBackend(b index.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithWorkers bounds parallel extraction during builds. Default GOMAXPROCS.
// The later of WithWorkers and WithResourceController wins.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.controller = resource.NewController(resource.Config{MaxWorkers: int64(n)})
		}
	}
}

// WithResourceController shares worker slots and the in-flight byte budget
// with other components.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithProgress registers a build progress callback. It is always called
// from the goroutine running Build or Update.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// WithWriteOptions configures snapshot encoding.
//
// Example:
//
//	pawprint.WithWriteOptions(persistence.WithCompression(persistence.CompressionZSTD))
func WithWriteOptions(optFns ...func(*persistence.WriteOptions)) Option {
	return func(o *options) {
		o.writeOptions = append(o.writeOptions, optFns...)
	}
}

// WithPolicy sets the acceptance policy. Default DefaultPolicy().
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithClock overrides time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		metric:           distance.MetricDot,
		normalize:        true,
		backend:          index.BackendFlat,
		policy:           DefaultPolicy(),
		now:              time.Now,
		newBuildID:       uuid.NewString,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.controller == nil {
		o.controller = resource.NewController(resource.Config{})
	}
	return o
}
