package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/pawprint"
)

var (
	datasetDir     string
	datasetBucket  string
	datasetCatalog bool
	buildWorkers   int
	updateForce    bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed a dataset into a new snapshot",
	Long: `Embed every photo of the configured dataset and write a new snapshot.

Photos that cannot be read or decoded are skipped and reported.`,
	Args:    cobra.NoArgs,
	PreRunE: applyDatasetFlags,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		src, closeSrc, err := a.source(false)
		if err != nil {
			return err
		}
		defer closeSrc()

		opts, err := a.options()
		if err != nil {
			return err
		}
		b, err := pawprint.NewBuilder(a.extractor, a.target(), opts...)
		if err != nil {
			return err
		}
		res, err := b.Build(ctx, src)
		if err != nil {
			return err
		}
		return printBuild(res)
	}),
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Append identities that are not yet indexed",
	Long: `Load the current snapshot, embed photos of identities it does not
contain yet and write the combined snapshot. With a catalog dataset only
rows without a stored embedding are read.`,
	Args:    cobra.NoArgs,
	PreRunE: applyDatasetFlags,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		target := a.target()
		base, _, err := target.Load(ctx)
		if err != nil {
			return fmt.Errorf("load base snapshot: %w", err)
		}

		src, closeSrc, err := a.source(!updateForce)
		if err != nil {
			return err
		}
		defer closeSrc()

		opts, err := a.options()
		if err != nil {
			return err
		}
		b, err := pawprint.NewBuilder(a.extractor, target, opts...)
		if err != nil {
			return err
		}
		res, err := b.Update(ctx, base, src, func(o *pawprint.UpdateOptions) {
			o.Force = updateForce
		})
		if err != nil {
			return err
		}
		return printBuild(res)
	}),
}

func init() {
	for _, cmd := range []*cobra.Command{buildCmd, updateCmd} {
		cmd.Flags().StringVar(&datasetDir, "dir", "", "dataset directory laid out as <dir>/<dog-id>/<photo>")
		cmd.Flags().StringVar(&datasetBucket, "bucket", "", "dataset prefix in the configured storage")
		cmd.Flags().BoolVar(&datasetCatalog, "catalog", false, "read photos from the catalog")
		cmd.Flags().IntVar(&buildWorkers, "workers", 0, "parallel extractions (default: number of CPUs)")
	}
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "also embed identities that are already indexed")
}

func applyDatasetFlags(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	if flags.Changed("dir") || flags.Changed("bucket") || flags.Changed("catalog") {
		cfg.Dataset.Dir = datasetDir
		cfg.Dataset.Bucket = datasetBucket
		cfg.Dataset.Catalog = datasetCatalog
	}
	if flags.Changed("workers") {
		cfg.Build.Workers = buildWorkers
	}
	return cfg.Validate()
}

type buildOutput struct {
	BuildID  string          `json:"build_id"`
	Count    int             `json:"count"`
	Skipped  int             `json:"skipped"`
	Existing int             `json:"existing,omitempty"`
	Vectors  int             `json:"vectors"`
	Bytes    int64           `json:"bytes"`
	Failures []failureOutput `json:"failures,omitempty"`
	Duration string          `json:"duration"`
}

type failureOutput struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

func printBuild(res pawprint.BuildResult) error {
	out := buildOutput{
		BuildID:  res.BuildID,
		Count:    res.Count,
		Skipped:  res.Skipped,
		Existing: res.Existing,
		Vectors:  res.Info.Vectors,
		Bytes:    res.Info.Bytes,
		Duration: res.Duration.String(),
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, failureOutput{Key: f.Key, Error: f.Err.Error()})
	}

	if outputJSON {
		return json.NewEncoder(os.Stdout).Encode(out)
	}
	fmt.Printf("build %s: %d indexed, %d skipped", out.BuildID, out.Count, out.Skipped)
	if out.Existing > 0 {
		fmt.Printf(", %d already indexed", out.Existing)
	}
	fmt.Printf(" (%d vectors, %d bytes, %s)\n", out.Vectors, out.Bytes, out.Duration)
	for _, f := range out.Failures {
		fmt.Printf("  skipped %s: %s\n", f.Key, f.Error)
	}
	return nil
}
