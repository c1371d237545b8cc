package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/pawprint/catalog"
)

var addRecord struct {
	id, name, category, sector, pen, status, description, photo string
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the dog catalog",
}

var catalogInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or migrate the catalog database",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cat, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		fmt.Printf("catalog ready at %s\n", cfg.Catalog.Path)
		return cat.Close()
	},
}

var catalogAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or replace a dog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		defer cat.Close()

		r := &catalog.Record{
			ID:          addRecord.id,
			Name:        addRecord.name,
			Category:    addRecord.category,
			Status:      addRecord.status,
			Description: addRecord.description,
			PhotoPath:   addRecord.photo,
		}
		if cmd.Flags().Changed("sector") {
			r.Sector = &addRecord.sector
		}
		if cmd.Flags().Changed("pen") {
			r.Pen = &addRecord.pen
		}
		return cat.Put(cmd.Context(), r)
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dogs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		defer cat.Close()

		records, err := cat.List(cmd.Context())
		if err != nil {
			return err
		}
		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(records)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tLOCATION")
		for i := range records {
			r := &records[i]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Status, r.Location())
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		total, embedded, err := cat.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("\n%d dogs, %d with embeddings\n", total, embedded)
		return nil
	},
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one dog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		defer cat.Close()

		r, err := cat.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, version, err := cat.Embedding(cmd.Context(), r.ID)
		if err != nil {
			return err
		}

		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(struct {
				*catalog.Record
				Location     string `json:"location,omitempty"`
				ModelVersion string `json:"model_version,omitempty"`
			}{r, r.Location(), version})
		}
		fmt.Printf("id:          %s\n", r.ID)
		fmt.Printf("name:        %s\n", r.Name)
		fmt.Printf("category:    %s\n", r.Category)
		fmt.Printf("status:      %s\n", r.Status)
		fmt.Printf("location:    %s\n", r.Location())
		fmt.Printf("photo:       %s\n", r.PhotoPath)
		fmt.Printf("description: %s\n", r.Description)
		if version != "" {
			fmt.Printf("embedding:   %s\n", version)
		}
		return nil
	},
}

func init() {
	f := catalogAddCmd.Flags()
	f.StringVar(&addRecord.id, "id", "", "identity id (required)")
	f.StringVar(&addRecord.name, "name", "", "display name")
	f.StringVar(&addRecord.category, "category", "", "category")
	f.StringVar(&addRecord.sector, "sector", "", "sector")
	f.StringVar(&addRecord.pen, "pen", "", "pen")
	f.StringVar(&addRecord.status, "status", "", "status")
	f.StringVar(&addRecord.description, "description", "", "description")
	f.StringVar(&addRecord.photo, "photo", "", "reference photo path")
	_ = catalogAddCmd.MarkFlagRequired("id")

	catalogCmd.AddCommand(catalogInitCmd, catalogAddCmd, catalogListCmd, catalogShowCmd)
}
