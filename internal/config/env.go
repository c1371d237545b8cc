package config

import (
	"fmt"
	"strconv"
	"time"
)

type lookupFunc func(key string) (string, bool)

// binding applies one environment variable to a config field.
type binding struct {
	key string
	set func(v string) error
}

func str(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func boolean(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func integer(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func int64Value(dst *int64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func float32Value(dst *float32) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return err
		}
		*dst = float32(f)
		return nil
	}
}

func duration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func (c *Config) bindings() []binding {
	return []binding{
		{"INDEX_METRIC", str(&c.Index.Metric)},
		{"INDEX_NORMALIZE", boolean(&c.Index.Normalize)},
		{"INDEX_BACKEND", str(&c.Index.Backend)},

		{"POLICY_MIN_SIMILARITY", float32Value(&c.Policy.MinSimilarity)},
		{"POLICY_MAX_DISTANCE", float32Value(&c.Policy.MaxDistance)},
		{"POLICY_ACCEPT_NEAREST", boolean(&c.Policy.AcceptNearest)},
		{"POLICY_CANDIDATES", integer(&c.Policy.Candidates)},

		{"SNAPSHOT_PATH", str(&c.Snapshot.Path)},
		{"SNAPSHOT_BLOB", str(&c.Snapshot.Blob)},
		{"SNAPSHOT_COMPRESSION", str(&c.Snapshot.Compression)},
		{"SNAPSHOT_CODEC", str(&c.Snapshot.Codec)},

		{"MODEL_KIND", str(&c.Model.Kind)},
		{"MODEL_ENDPOINT", str(&c.Model.Endpoint)},
		{"MODEL_DIMENSION", integer(&c.Model.Dimension)},
		{"MODEL_VERSION", str(&c.Model.Version)},
		{"MODEL_API_KEY", str(&c.Model.APIKey)},
		{"MODEL_MAX_CONCURRENT_INFERENCE", integer(&c.Model.MaxConcurrentInference)},
		{"MODEL_CACHE_TTL", duration(&c.Model.CacheTTL)},
		{"MODEL_TIMEOUT", duration(&c.Model.Timeout)},

		{"DATASET_DIR", str(&c.Dataset.Dir)},
		{"DATASET_BUCKET", str(&c.Dataset.Bucket)},
		{"DATASET_CATALOG", boolean(&c.Dataset.Catalog)},
		{"DATASET_PHOTO_ROOT", str(&c.Dataset.PhotoRoot)},

		{"STORAGE_PROVIDER", str(&c.Storage.Provider)},
		{"STORAGE_ENDPOINT", str(&c.Storage.Endpoint)},
		{"STORAGE_ACCESS_KEY", str(&c.Storage.AccessKey)},
		{"STORAGE_SECRET_KEY", str(&c.Storage.SecretKey)},
		{"STORAGE_REGION", str(&c.Storage.Region)},
		{"STORAGE_BUCKET", str(&c.Storage.Bucket)},
		{"STORAGE_PREFIX", str(&c.Storage.Prefix)},
		{"STORAGE_USE_SSL", boolean(&c.Storage.UseSSL)},
		{"STORAGE_PATH_STYLE", boolean(&c.Storage.PathStyle)},

		{"CATALOG_PATH", str(&c.Catalog.Path)},

		{"BUILD_WORKERS", integer(&c.Build.Workers)},
		{"BUILD_IN_FLIGHT_BYTES", int64Value(&c.Build.InFlightBytes)},
		{"BUILD_DOWNLOAD_BYTES_PER_SEC", int64Value(&c.Build.DownloadBytesPerSec)},

		{"LOG_LEVEL", str(&c.Log.Level)},
		{"LOG_FORMAT", str(&c.Log.Format)},

		{"SERVER_LISTEN", str(&c.Server.Listen)},
		{"SERVER_MAX_UPLOAD_BYTES", int64Value(&c.Server.MaxUploadBytes)},

		{"METRICS_ENABLED", boolean(&c.Metrics.Enabled)},
		{"METRICS_PATH", str(&c.Metrics.Path)},
	}
}

func (c *Config) applyEnv(lookup lookupFunc) error {
	for _, b := range c.bindings() {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.set(v); err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, b.key, err)
		}
	}
	return nil
}
