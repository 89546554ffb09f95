package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/catalogsync/import-service/internal/parsers"
	"github.com/catalogsync/import-service/internal/pipeline"
)

var (
	previewCatalog string
	previewTenant  string
	previewFormat  string
)

// previewCmd represents the preview command
var previewCmd = &cobra.Command{
	Use:   "preview <file>...",
	Short: "Preview an import against an existing catalog",
	Long: `Parse, normalize and validate supplier files, then classify every product against
the tenant's existing catalog as new, update, conflict, error or unchanged.

The catalog is read from --catalog: a JSON snapshot, a SQLite database
(sqlite:path or *.db) or a postgres:// URL. Without it every product is new.
ZIP bundles are expanded and each feed file inside is previewed separately.`,
	Example: `  catalog-import preview ./feeds/produits.csv --catalog ./catalog.json
  catalog-import preview ./feeds/supplier.zip --catalog sqlite:./catalog.db --tenant shop-1
  catalog-import preview a.csv b.xlsx --output json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().StringVar(&previewCatalog, "catalog", "", "Existing catalog: snapshot.json, sqlite:path or postgres:// URL")
	previewCmd.Flags().StringVar(&previewTenant, "tenant", "default", "Tenant whose catalog is compared")
	previewCmd.Flags().StringVar(&previewFormat, "format", "", "Input format override for every file")
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var format parsers.Format
	if previewFormat != "" {
		f, err := parsers.ParseFormat(previewFormat)
		if err != nil {
			return err
		}
		format = f
	}

	svc, cleanup, err := newService(ctx, previewCatalog)
	if err != nil {
		return err
	}
	defer cleanup()

	batch := &pipeline.BatchResult{}
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		out, err := svc.AnalyzeAny(ctx, pipeline.Input{
			Tenant:   previewTenant,
			Filename: filepath.Base(path),
			Content:  content,
			Format:   format,
		})
		if err != nil {
			batch.Files = append(batch.Files, pipeline.FileOutcome{Filename: filepath.Base(path), Err: err, Error: err.Error()})
			batch.Failed++
			continue
		}
		batch.Files = append(batch.Files, out.Files...)
		batch.Succeeded += out.Succeeded
		batch.Failed += out.Failed
	}

	if outputFormat == "json" {
		if err := printJSON(batch); err != nil {
			return err
		}
	} else {
		for _, f := range batch.Files {
			outputPreviewTable(f)
		}
	}

	if batch.Failed > 0 {
		return fmt.Errorf("%d of %d files could not be previewed", batch.Failed, len(batch.Files))
	}
	return nil
}

func outputPreviewTable(f pipeline.FileOutcome) {
	fmt.Fprintf(stdout, "\nImport Preview for %s\n", f.Filename)
	fmt.Fprintln(stdout, rule())
	if f.Err != nil {
		fmt.Fprintf(stdout, "Failed: %v\n", f.Err)
		return
	}

	r := f.Result
	sum := r.Summary
	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Metric\tValue\n")
	fmt.Fprintf(w, "------\t-----\n")
	fmt.Fprintf(w, "Run ID\t%s\n", r.RunID)
	fmt.Fprintf(w, "Format\t%s\n", r.Format)
	fmt.Fprintf(w, "Rows Parsed\t%d\n", r.RowsParsed)
	fmt.Fprintf(w, "New\t%d\n", sum.New)
	fmt.Fprintf(w, "Updates\t%d\n", sum.Updates)
	fmt.Fprintf(w, "Conflicts\t%d\n", sum.Conflicts)
	fmt.Fprintf(w, "Errors\t%d\n", sum.Errors)
	fmt.Fprintf(w, "Unchanged\t%d\n", sum.Unchanged)
	fmt.Fprintf(w, "Warnings\t%d\n", len(r.Preview.Warnings))
	fmt.Fprintf(w, "Duration\t%s\n", r.Duration)
	w.Flush()

	p := r.Preview
	if len(p.Updates) > 0 {
		fmt.Fprintf(stdout, "\nUpdates (first %d):\n", min(len(p.Updates), 10))
		fmt.Fprintln(stdout, rule())
		for _, u := range p.Updates[:min(len(p.Updates), 10)] {
			fmt.Fprintf(stdout, "%s [%s]\n", u.Product.Name, u.Existing.ID)
			for _, change := range u.Changes {
				fmt.Fprintf(stdout, "    %s\n", change)
			}
		}
	}

	if len(p.Conflicts) > 0 {
		fmt.Fprintf(stdout, "\nConflicts (first %d):\n", min(len(p.Conflicts), 10))
		fmt.Fprintln(stdout, rule())
		for _, c := range p.Conflicts[:min(len(p.Conflicts), 10)] {
			fmt.Fprintf(stdout, "%s: SKU matches %s, name matches %s\n", c.Product.Name, c.Existing.ID, c.NameMatch.ID)
		}
	}

	printRowErrors(p.Errors)
	printProducts(p.New)
}
