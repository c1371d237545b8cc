package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/pawprint"
	"github.com/hupe1980/pawprint/blobstore"
	minioblob "github.com/hupe1980/pawprint/blobstore/minio"
	s3blob "github.com/hupe1980/pawprint/blobstore/s3"
	"github.com/hupe1980/pawprint/catalog"
	"github.com/hupe1980/pawprint/codec"
	"github.com/hupe1980/pawprint/dataset"
	"github.com/hupe1980/pawprint/extract"
	"github.com/hupe1980/pawprint/extract/remote"
	"github.com/hupe1980/pawprint/index"
	"github.com/hupe1980/pawprint/internal/config"
	"github.com/hupe1980/pawprint/persistence"
	"github.com/hupe1980/pawprint/resource"
)

var (
	cfgFile    string
	outputJSON bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pawprint",
	Short: "Identify individual dogs from photos",
	Long: `pawprint builds a snapshot of photo embeddings per dog and matches
new photos against it.

Examples:
  # Build from <dir>/<dog-id>/<photo>
  pawprint build --dir ./photos

  # Identify a dog
  pawprint match ./unknown.jpg

  # Serve POST /v1/match on :8080
  pawprint serve
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(catalogCmd)
}

// app holds the components shared by the commands.
type app struct {
	cfg        *config.Config
	logger     *pawprint.Logger
	model      *extract.ModelHandle
	extractor  *extract.Extractor
	controller *resource.Controller
	blobs      blobstore.BlobStore
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	level, err := cfg.Log.ParseLevel()
	if err != nil {
		return nil, err
	}
	logger := pawprint.NewTextLogger(level)
	if cfg.Log.Format == "json" {
		logger = pawprint.NewJSONLogger(level)
	}

	m, err := newModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	handle := extract.NewModelHandle(m)

	var exOpts []func(*extract.Options)
	if cfg.Model.MaxConcurrentInference > 0 {
		exOpts = append(exOpts, extract.WithMaxConcurrentInference(cfg.Model.MaxConcurrentInference))
	}
	if cfg.Model.CacheTTL != 0 {
		exOpts = append(exOpts, extract.WithCacheTTL(cfg.Model.CacheTTL))
	}

	blobs, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		_ = handle.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		model:     handle,
		extractor: extract.NewExtractor(handle, exOpts...),
		controller: resource.NewController(resource.Config{
			MaxWorkers:          int64(cfg.Build.Workers),
			InFlightBytes:       cfg.Build.InFlightBytes,
			DownloadBytesPerSec: cfg.Build.DownloadBytesPerSec,
		}),
		blobs: blobs,
	}, nil
}

func (a *app) Close() error {
	return a.model.Close()
}

func newModel(c config.ModelConfig) (extract.Model, error) {
	switch c.Kind {
	case "remote":
		return remote.New(c.Endpoint, c.Dimension, func(o *remote.Options) {
			o.Version = c.Version
			o.HTTPClient = &http.Client{Timeout: c.Timeout}
			if c.APIKey != "" {
				o.Header = http.Header{"Authorization": {"Bearer " + c.APIKey}}
			}
		})
	default:
		return extract.NewGridModel(func(m *extract.GridModel) {
			m.Tag = c.Version
		}), nil
	}
}

func newBlobStore(ctx context.Context, c config.StorageConfig) (blobstore.BlobStore, error) {
	switch c.Provider {
	case "minio":
		return minioblob.Dial(minioblob.Options{
			Endpoint:  c.Endpoint,
			AccessKey: c.AccessKey,
			SecretKey: c.SecretKey,
			Region:    c.Region,
			Secure:    c.UseSSL,
			Bucket:    c.Bucket,
			Prefix:    c.Prefix,
		})
	case "s3":
		return s3blob.New(ctx, c.Bucket, func(o *s3blob.Options) {
			o.Prefix = c.Prefix
			o.Region = c.Region
			o.Endpoint = c.Endpoint
			o.AccessKey = c.AccessKey
			o.SecretKey = c.SecretKey
			o.PathStyle = c.PathStyle
		})
	default:
		return nil, nil
	}
}

// target is the configured snapshot location.
func (a *app) target() persistence.Target {
	if a.cfg.Snapshot.Blob != "" {
		return persistence.NewBlobTarget(a.blobs, a.cfg.Snapshot.Blob)
	}
	return persistence.NewLocalTarget(a.cfg.Snapshot.Path)
}

func (a *app) options() ([]pawprint.Option, error) {
	metric, err := a.cfg.Index.ParseMetric()
	if err != nil {
		return nil, err
	}
	backend, err := index.ParseBackend(a.cfg.Index.Backend)
	if err != nil {
		return nil, err
	}
	compression, err := persistence.ParseCompression(a.cfg.Snapshot.Compression)
	if err != nil {
		return nil, err
	}
	c, ok := codec.ByName(a.cfg.Snapshot.Codec)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", a.cfg.Snapshot.Codec)
	}

	return []pawprint.Option{
		pawprint.WithLogger(a.logger),
		pawprint.WithMetric(metric),
		pawprint.WithNormalize(a.cfg.Index.Normalize),
		pawprint.WithBackend(backend),
		pawprint.WithResourceController(a.controller),
		pawprint.WithWriteOptions(
			persistence.WithCompression(compression),
			persistence.WithCodec(c),
		),
		pawprint.WithPolicy(pawprint.Policy{
			MinSimilarity: a.cfg.Policy.MinSimilarity,
			MaxDistance:   a.cfg.Policy.MaxDistance,
			AcceptNearest: a.cfg.Policy.AcceptNearest,
			Candidates:    a.cfg.Policy.Candidates,
		}),
	}, nil
}

// source picks the dataset: a directory, a bucket prefix or the catalog.
// The returned close function releases the catalog.
func (a *app) source(pending bool) (dataset.Source, func() error, error) {
	noop := func() error { return nil }
	d := a.cfg.Dataset
	switch {
	case d.Dir != "":
		return dataset.Dir(d.Dir), noop, nil
	case d.Bucket != "":
		return dataset.Bucket(a.blobs, d.Bucket, func(o *dataset.BucketOptions) {
			o.Controller = a.controller
		}), noop, nil
	case d.Catalog:
		cat, err := catalog.Open(a.cfg.Catalog.Path)
		if err != nil {
			return nil, nil, err
		}
		opts := func(o *catalog.SourceOptions) {
			o.PhotoRoot = d.PhotoRoot
			o.ModelVersion = a.extractor.ModelVersion()
			if a.blobs != nil && d.PhotoRoot == "" {
				o.Photos = a.blobs
			}
		}
		if pending {
			return cat.Pending(opts), cat.Close, nil
		}
		return cat.Source(opts), cat.Close, nil
	default:
		return nil, nil, fmt.Errorf("no dataset configured: set --dir, --bucket or --catalog")
	}
}

// openCatalog opens the catalog for record lookups, or returns nil when
// the database does not exist.
func (a *app) openCatalog() (*catalog.Store, error) {
	if _, err := os.Stat(a.cfg.Catalog.Path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return catalog.Open(a.cfg.Catalog.Path)
}

func (a *app) engine(ctx context.Context, extra ...pawprint.Option) (*pawprint.Engine, error) {
	opts, err := a.options()
	if err != nil {
		return nil, err
	}
	return pawprint.Open(ctx, a.extractor, a.target(), append(opts, extra...)...)
}

func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, args)
	}
}
