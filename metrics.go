package pawprint

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; package
// metrics/prom provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordExtract is called after each embedding extraction.
	RecordExtract(duration time.Duration, err error)

	// RecordBuild is called after each build or update.
	// count is the number of entries written, skipped the failed images.
	RecordBuild(count, skipped int, duration time.Duration, err error)

	// RecordMatch is called after each match query.
	RecordMatch(found bool, duration time.Duration, err error)

	// RecordLoad is called after each snapshot load.
	RecordLoad(vectors int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordExtract(time.Duration, error)         {}
func (NoopMetricsCollector) RecordBuild(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordMatch(bool, time.Duration, error)     {}
func (NoopMetricsCollector) RecordLoad(int, time.Duration, error)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ExtractCount      atomic.Int64
	ExtractErrors     atomic.Int64
	ExtractTotalNanos atomic.Int64
	BuildCount        atomic.Int64
	BuildErrors       atomic.Int64
	BuildEntries      atomic.Int64
	BuildSkipped      atomic.Int64
	MatchCount        atomic.Int64
	MatchFound        atomic.Int64
	MatchErrors       atomic.Int64
	MatchTotalNanos   atomic.Int64
	LoadCount         atomic.Int64
	LoadErrors        atomic.Int64
	LoadedVectors     atomic.Int64
}

// RecordExtract implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExtract(duration time.Duration, err error) {
	b.ExtractCount.Add(1)
	b.ExtractTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ExtractErrors.Add(1)
	}
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(count, skipped int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	if err != nil {
		b.BuildErrors.Add(1)
		return
	}
	b.BuildEntries.Add(int64(count))
	b.BuildSkipped.Add(int64(skipped))
}

// RecordMatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMatch(found bool, duration time.Duration, err error) {
	b.MatchCount.Add(1)
	b.MatchTotalNanos.Add(duration.Nanoseconds())
	switch {
	case err != nil:
		b.MatchErrors.Add(1)
	case found:
		b.MatchFound.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(vectors int, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
		return
	}
	b.LoadedVectors.Store(int64(vectors))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ExtractCount:    b.ExtractCount.Load(),
		ExtractErrors:   b.ExtractErrors.Load(),
		ExtractAvgNanos: avg(b.ExtractTotalNanos.Load(), b.ExtractCount.Load()),
		BuildCount:      b.BuildCount.Load(),
		BuildErrors:     b.BuildErrors.Load(),
		BuildEntries:    b.BuildEntries.Load(),
		BuildSkipped:    b.BuildSkipped.Load(),
		MatchCount:      b.MatchCount.Load(),
		MatchFound:      b.MatchFound.Load(),
		MatchErrors:     b.MatchErrors.Load(),
		MatchAvgNanos:   avg(b.MatchTotalNanos.Load(), b.MatchCount.Load()),
		LoadCount:       b.LoadCount.Load(),
		LoadErrors:      b.LoadErrors.Load(),
		LoadedVectors:   b.LoadedVectors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ExtractCount    int64
	ExtractErrors   int64
	ExtractAvgNanos int64
	BuildCount      int64
	BuildErrors     int64
	BuildEntries    int64
	BuildSkipped    int64
	MatchCount      int64
	MatchFound      int64
	MatchErrors     int64
	MatchAvgNanos   int64
	LoadCount       int64
	LoadErrors      int64
	LoadedVectors   int64
}
