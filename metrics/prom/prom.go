// Package prom exports pawprint metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/pawprint"
)

const namespace = "pawprint"

var _ pawprint.MetricsCollector = (*Collector)(nil)

// Collector implements pawprint.MetricsCollector on Prometheus metrics.
type Collector struct {
	latency    *prometheus.HistogramVec
	extracts   *prometheus.CounterVec
	builds     *prometheus.CounterVec
	entries    prometheus.Gauge
	skipped    prometheus.Counter
	matches    *prometheus.CounterVec
	loads      *prometheus.CounterVec
	vectors    prometheus.Gauge
	lastLoaded prometheus.Gauge
}

// New creates a collector and registers it with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of pawprint operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		extracts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Embedding extractions by status",
		}, []string{"status"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Index builds and updates by status",
		}, []string{"status"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_entries",
			Help:      "Entries written by the last successful build",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_skipped_images_total",
			Help:      "Images skipped during builds",
		}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Match queries by result",
		}, []string{"result"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_loads_total",
			Help:      "Snapshot loads by status",
		}, []string{"status"}),
		vectors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loaded_vectors",
			Help:      "Vectors in the serving snapshot",
		}),
		lastLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_loaded_timestamp_seconds",
			Help:      "Unix time of the last successful snapshot load",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.latency, c.extracts, c.builds, c.entries, c.skipped,
		c.matches, c.loads, c.vectors, c.lastLoaded,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordExtract implements pawprint.MetricsCollector.
func (c *Collector) RecordExtract(d time.Duration, err error) {
	c.latency.WithLabelValues("extract", status(err)).Observe(d.Seconds())
	c.extracts.WithLabelValues(status(err)).Inc()
}

// RecordBuild implements pawprint.MetricsCollector.
func (c *Collector) RecordBuild(count, skipped int, d time.Duration, err error) {
	c.latency.WithLabelValues("build", status(err)).Observe(d.Seconds())
	c.builds.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	c.entries.Set(float64(count))
	c.skipped.Add(float64(skipped))
}

// RecordMatch implements pawprint.MetricsCollector.
func (c *Collector) RecordMatch(found bool, d time.Duration, err error) {
	c.latency.WithLabelValues("match", status(err)).Observe(d.Seconds())
	switch {
	case err != nil:
		c.matches.WithLabelValues("error").Inc()
	case found:
		c.matches.WithLabelValues("match").Inc()
	default:
		c.matches.WithLabelValues("no_match").Inc()
	}
}

// RecordLoad implements pawprint.MetricsCollector.
func (c *Collector) RecordLoad(vectors int, d time.Duration, err error) {
	c.latency.WithLabelValues("load", status(err)).Observe(d.Seconds())
	c.loads.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	c.vectors.Set(float64(vectors))
	c.lastLoaded.SetToCurrentTime()
}
