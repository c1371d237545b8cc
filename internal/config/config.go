// Package config loads the pawprint CLI configuration from a YAML file,
// a .env file and PAWPRINT_* environment variables, in that order of
// increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/pawprint/codec"
	"github.com/hupe1980/pawprint/distance"
	"github.com/hupe1980/pawprint/index"
	"github.com/hupe1980/pawprint/persistence"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PAWPRINT_"

type Config struct {
	Index    IndexConfig    `yaml:"index"`
	Policy   PolicyConfig   `yaml:"policy"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Model    ModelConfig    `yaml:"model"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Storage  StorageConfig  `yaml:"storage"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Build    BuildConfig    `yaml:"build"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type IndexConfig struct {
	Metric    string `yaml:"metric"`
	Normalize bool   `yaml:"normalize"`
	Backend   string `yaml:"backend"`
}

type PolicyConfig struct {
	MinSimilarity float32 `yaml:"min_similarity"`
	MaxDistance   float32 `yaml:"max_distance"`
	AcceptNearest bool    `yaml:"accept_nearest"`
	Candidates    int     `yaml:"candidates"`
}

// SnapshotConfig selects where snapshots live. With Blob set the snapshot
// is the named object in the configured storage; Path is then used as the
// local cache for fetches.
type SnapshotConfig struct {
	Path        string `yaml:"path"`
	Blob        string `yaml:"blob"`
	Compression string `yaml:"compression"`
	Codec       string `yaml:"codec"`
}

type ModelConfig struct {
	// Kind is "grid" or "remote".
	Kind      string `yaml:"kind"`
	Endpoint  string `yaml:"endpoint"`
	Dimension int    `yaml:"dimension"`
	Version   string `yaml:"version"`
	APIKey    string `yaml:"api_key"`

	MaxConcurrentInference int           `yaml:"max_concurrent_inference"`
	CacheTTL               time.Duration `yaml:"cache_ttl"`
	Timeout                time.Duration `yaml:"timeout"`
}

// DatasetConfig selects the build input. Exactly one of Dir, Bucket or
// Catalog is used, in that order.
type DatasetConfig struct {
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Catalog   bool   `yaml:"catalog"`
	PhotoRoot string `yaml:"photo_root"`
}

type StorageConfig struct {
	// Provider is "minio", "s3" or empty for none.
	Provider  string `yaml:"provider"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
	PathStyle bool   `yaml:"path_style"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type BuildConfig struct {
	Workers             int   `yaml:"workers"`
	InFlightBytes       int64 `yaml:"in_flight_bytes"`
	DownloadBytesPerSec int64 `yaml:"download_bytes_per_sec"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Listen         string `yaml:"listen"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			Metric:    "dot",
			Normalize: true,
			Backend:   "flat",
		},
		Policy: PolicyConfig{
			MinSimilarity: 0.8,
			Candidates:    1,
		},
		Snapshot: SnapshotConfig{
			Path:        "pawprint.paw",
			Compression: "none",
			Codec:       "go-json",
		},
		Model: ModelConfig{
			Kind:    "grid",
			Timeout: 30 * time.Second,
		},
		Catalog: CatalogConfig{
			Path: "pawprint.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Listen:         ":8080",
			MaxUploadBytes: 16 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads path (optional), then .env, then the environment.
func Load(path string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every enumerated value.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Index.ParseMetric(); err != nil {
		errs = append(errs, err)
	}
	if _, err := index.ParseBackend(c.Index.Backend); err != nil {
		errs = append(errs, err)
	}
	if _, err := persistence.ParseCompression(c.Snapshot.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, ok := codec.ByName(c.Snapshot.Codec); !ok {
		errs = append(errs, fmt.Errorf("unknown codec %q", c.Snapshot.Codec))
	}
	switch c.Model.Kind {
	case "grid":
	case "remote":
		if c.Model.Endpoint == "" {
			errs = append(errs, errors.New("model.endpoint is required for a remote model"))
		}
		if c.Model.Dimension <= 0 {
			errs = append(errs, errors.New("model.dimension is required for a remote model"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown model kind %q", c.Model.Kind))
	}
	switch c.Storage.Provider {
	case "", "minio", "s3":
	default:
		errs = append(errs, fmt.Errorf("unknown storage provider %q", c.Storage.Provider))
	}
	if (c.Snapshot.Blob != "" || c.Dataset.Bucket != "") && c.Storage.Provider == "" {
		errs = append(errs, errors.New("snapshot.blob and dataset.bucket need a storage provider"))
	}
	if _, err := c.Log.ParseLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Policy.Candidates < 0 || c.Build.Workers < 0 {
		errs = append(errs, errors.New("policy.candidates and build.workers must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseMetric maps the metric name ("dot", "l2").
func (c IndexConfig) ParseMetric() (distance.Metric, error) {
	return distance.ParseMetric(c.Metric)
}

// ParseLevel maps the level name to a slog.Level.
func (c LogConfig) ParseLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Level))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.Level)
	}
	return level, nil
}
