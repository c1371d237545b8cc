package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pawprint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "dot", cfg.Index.Metric)
	assert.True(t, cfg.Index.Normalize)
	assert.InDelta(t, 0.8, cfg.Policy.MinSimilarity, 1e-6)
}

func TestLoad_File(t *testing.T) {
	t.Chdir(t.TempDir())

	path := writeConfig(t, `
index:
  metric: l2
  normalize: false
  backend: identity
policy:
  max_distance: 0.35
snapshot:
  blob: snapshots/dogs.paw
  compression: zstd
  codec: msgpack
model:
  kind: remote
  endpoint: http://inference:8000/embed
  dimension: 2048
  cache_ttl: 5m
storage:
  provider: minio
  endpoint: minio:9000
  bucket: dogs
build:
  workers: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "l2", cfg.Index.Metric)
	assert.False(t, cfg.Index.Normalize)
	assert.Equal(t, "identity", cfg.Index.Backend)
	assert.InDelta(t, 0.35, cfg.Policy.MaxDistance, 1e-6)
	assert.Equal(t, "zstd", cfg.Snapshot.Compression)
	assert.Equal(t, "remote", cfg.Model.Kind)
	assert.Equal(t, 2048, cfg.Model.Dimension)
	assert.Equal(t, 5*time.Minute, cfg.Model.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.Model.Timeout)
	assert.Equal(t, 4, cfg.Build.Workers)

	// untouched sections keep their defaults
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "pawprint.db", cfg.Catalog.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())

	path := writeConfig(t, "log:\n  level: debug\n")
	t.Setenv("PAWPRINT_LOG_LEVEL", "warn")
	t.Setenv("PAWPRINT_LOG_FORMAT", "json")
	t.Setenv("PAWPRINT_POLICY_MIN_SIMILARITY", "0.9")
	t.Setenv("PAWPRINT_BUILD_DOWNLOAD_BYTES_PER_SEC", "1048576")
	t.Setenv("PAWPRINT_INDEX_NORMALIZE", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 0.9, cfg.Policy.MinSimilarity, 1e-6)
	assert.Equal(t, int64(1<<20), cfg.Build.DownloadBytesPerSec)
	assert.False(t, cfg.Index.Normalize)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PAWPRINT_CATALOG_PATH=/data/dogs.db\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PAWPRINT_CATALOG_PATH") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/data/dogs.db", cfg.Catalog.Path)
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "unknown field", body: "index:\n  metrik: dot\n"},
		{name: "unknown metric", body: "index:\n  metric: manhattan\n"},
		{name: "unknown backend", body: "index:\n  backend: hnsw\n"},
		{name: "unknown compression", body: "snapshot:\n  compression: gzip\n"},
		{name: "unknown codec", body: "snapshot:\n  codec: xml\n"},
		{name: "remote without endpoint", body: "model:\n  kind: remote\n  dimension: 8\n"},
		{name: "blob without storage", body: "snapshot:\n  blob: dogs.paw\n"},
		{name: "bad level", body: "log:\n  level: loud\n"},
		{name: "bad env value", env: map[string]string{"PAWPRINT_BUILD_WORKERS": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLogConfig_ParseLevel(t *testing.T) {
	level, err := LogConfig{Level: "debug"}.ParseLevel()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", level.String())
}
