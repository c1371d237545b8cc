package prom

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	boom := errors.New("boom")

	c.RecordExtract(time.Millisecond, nil)
	c.RecordExtract(time.Millisecond, boom)
	c.RecordBuild(4, 1, time.Second, nil)
	c.RecordBuild(0, 0, time.Second, boom)
	c.RecordMatch(true, time.Millisecond, nil)
	c.RecordMatch(false, time.Millisecond, nil)
	c.RecordMatch(false, time.Millisecond, nil)
	c.RecordMatch(false, time.Millisecond, boom)
	c.RecordLoad(42, time.Millisecond, nil)
	c.RecordLoad(0, time.Millisecond, boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.extracts.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.builds.WithLabelValues("success")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.entries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.skipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.matches.WithLabelValues("match")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.matches.WithLabelValues("no_match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.matches.WithLabelValues("error")))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.vectors))
	assert.Positive(t, testutil.ToFloat64(c.lastLoaded))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "pawprint_matches_total")
	assert.Contains(t, names, "pawprint_operation_latency_seconds")
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	require.Error(t, err)
}
