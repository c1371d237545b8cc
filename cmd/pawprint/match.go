package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/pawprint"
	"github.com/hupe1980/pawprint/catalog"
	"github.com/hupe1980/pawprint/persistence"
)

var (
	matchSector  string
	matchOnly    []string
	searchK      int
	inspectLocal string
)

var matchCmd = &cobra.Command{
	Use:   "match <photo>...",
	Short: "Identify the dog in one or more photos",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		eng, err := a.engine(ctx)
		if err != nil {
			return err
		}
		cat, err := a.openCatalog()
		if err != nil {
			return err
		}
		if cat != nil {
			defer cat.Close()
		}

		opts, err := restrictOptions(ctx, cat)
		if err != nil {
			return err
		}

		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			m, err := eng.MatchByImage(ctx, data, opts...)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := printMatch(ctx, cat, path, m); err != nil {
				return err
			}
		}
		return nil
	}),
}

var searchCmd = &cobra.Command{
	Use:   "search <photo>",
	Short: "List the closest identities for a photo",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		eng, err := a.engine(ctx)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		results, err := eng.SearchByImage(ctx, data, searchK)
		if err != nil {
			return err
		}

		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(results)
		}
		for i, r := range results {
			fmt.Printf("%d. %s\t%.4f\n", i+1, r.IdentityID, r.Score)
		}
		return nil
	}),
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print snapshot metadata",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		target := a.target()
		if inspectLocal != "" {
			target = persistence.NewLocalTarget(inspectLocal)
		}
		snap, info, err := target.Load(ctx)
		if err != nil {
			return err
		}

		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(info)
		}
		fmt.Printf("target:       %s\n", target)
		fmt.Printf("build:        %s\n", info.BuildID)
		fmt.Printf("model:        %s\n", info.ModelVersion)
		fmt.Printf("created:      %s\n", info.CreatedAt)
		fmt.Printf("vectors:      %d\n", info.Vectors)
		fmt.Printf("identities:   %d\n", info.Identities)
		fmt.Printf("dimension:    %d\n", info.Dimension)
		fmt.Printf("metric:       %s (normalized=%t)\n", info.Metric, info.Normalized)
		fmt.Printf("backend:      %s\n", info.Backend)
		fmt.Printf("encoding:     %s, %s, %d bytes, crc32 %08x\n", info.Codec, info.Compression, info.Bytes, info.Checksum)
		fmt.Printf("entries:      %d\n", len(snap.Entries))
		return nil
	}),
}

func init() {
	matchCmd.Flags().StringVar(&matchSector, "sector", "", "only match dogs of this catalog sector")
	matchCmd.Flags().StringSliceVar(&matchOnly, "identity", nil, "only match these identities")
	searchCmd.Flags().IntVarP(&searchK, "k", "k", 5, "number of results")
	inspectCmd.Flags().StringVar(&inspectLocal, "file", "", "inspect this snapshot file instead of the configured target")
}

// restrictOptions turns --identity and --sector into a match option.
func restrictOptions(ctx context.Context, cat *catalog.Store) ([]pawprint.MatchOption, error) {
	ids := append([]string(nil), matchOnly...)
	if matchSector != "" {
		if cat == nil {
			return nil, errors.New("--sector needs a catalog")
		}
		records, err := cat.InSector(ctx, matchSector)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("no dogs in sector %q", matchSector)
		}
		ids = append(ids, catalog.IDs(records)...)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return []pawprint.MatchOption{pawprint.WithIdentities(ids...)}, nil
}

type matchOutput struct {
	Photo      string  `json:"photo"`
	Found      bool    `json:"found"`
	IdentityID string  `json:"identity_id,omitempty"`
	Score      float32 `json:"score"`
	Name       string  `json:"name,omitempty"`
	Location   string  `json:"location,omitempty"`
	Status     string  `json:"status,omitempty"`
}

func printMatch(ctx context.Context, cat *catalog.Store, path string, m pawprint.Match) error {
	out := matchOutput{
		Photo:      path,
		Found:      m.Found(),
		IdentityID: m.IdentityID,
		Score:      m.Score,
	}
	if m.Found() && cat != nil {
		rec, err := cat.Get(ctx, m.IdentityID)
		switch {
		case err == nil:
			out.Name = rec.Name
			out.Location = rec.Location()
			out.Status = rec.Status
		case !errors.Is(err, catalog.ErrNotFound):
			return err
		}
	}

	if outputJSON {
		return json.NewEncoder(os.Stdout).Encode(out)
	}
	if !out.Found {
		fmt.Printf("%s: no match\n", path)
		return nil
	}
	fmt.Printf("%s: %s (score %.4f)", path, out.IdentityID, out.Score)
	if out.Name != "" {
		fmt.Printf(" %s", out.Name)
	}
	if out.Location != "" {
		fmt.Printf(", %s", out.Location)
	}
	fmt.Println()
	return nil
}
