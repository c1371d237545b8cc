package pawprint

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/pawprint/persistence"
)

// Logger wraps slog.Logger with pawprint-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithIdentity adds an identity field to the logger.
func (l *Logger) WithIdentity(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("identity", id),
	}
}

// WithBuildID tags every record with a build id.
func (l *Logger) WithBuildID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("build_id", id),
	}
}

// WithK adds a k (candidate count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// LogBuild logs a finished build or update.
func (l *Logger) LogBuild(ctx context.Context, res BuildResult, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"build_id", res.BuildID,
			"appended", res.Appended,
			"skipped", res.Skipped,
			"error", err,
		)
		return
	}
	if res.Skipped > 0 {
		l.WarnContext(ctx, "build completed with skipped images",
			"build_id", res.BuildID,
			"count", res.Count,
			"skipped", res.Skipped,
			"existing", res.Existing,
			"duration", res.Duration,
		)
		return
	}
	l.InfoContext(ctx, "build completed",
		"build_id", res.BuildID,
		"count", res.Count,
		"existing", res.Existing,
		"duration", res.Duration,
	)
}

// LogSkip logs an image that was skipped during a build.
func (l *Logger) LogSkip(ctx context.Context, key, identityID string, err error) {
	l.WarnContext(ctx, "image skipped",
		"key", key,
		"identity", identityID,
		"error", err,
	)
}

// LogMatch logs a match query.
func (l *Logger) LogMatch(ctx context.Context, m Match, best float32, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "match failed",
			"error", err,
		)
	case m.Found():
		l.DebugContext(ctx, "match accepted",
			"identity", m.IdentityID,
			"score", m.Score,
		)
	default:
		l.DebugContext(ctx, "no match",
			"best_score", best,
		)
	}
}

// LogSnapshot logs a snapshot save.
func (l *Logger) LogSnapshot(ctx context.Context, target string, info persistence.Info, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"target", target,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"target", target,
			"vectors", info.Vectors,
			"identities", info.Identities,
			"bytes", info.Bytes,
			"compression", info.Compression.String(),
		)
	}
}

// LogReload logs a snapshot (re)load.
func (l *Logger) LogReload(ctx context.Context, target string, info persistence.Info, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot load failed, previous snapshot kept",
			"target", target,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot loaded",
			"target", target,
			"build_id", info.BuildID,
			"model_version", info.ModelVersion,
			"vectors", info.Vectors,
			"identities", info.Identities,
		)
	}
}
