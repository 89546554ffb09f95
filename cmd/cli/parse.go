package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/catalogsync/import-service/internal/parsers"
	"github.com/catalogsync/import-service/internal/parsers/charset"
	"github.com/catalogsync/import-service/internal/parsers/csv"
	"github.com/catalogsync/import-service/internal/pipeline"
	"github.com/catalogsync/import-service/internal/types"
)

var (
	parseFormat    string
	parseEncoding  string
	parseDelimiter string
	parseNormalize bool
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a supplier file into raw rows or canonical products",
	Long: `Parse a local supplier file (CSV, TSV, XLSX, JSON, XML or HTML) and show the raw rows
it contains. With --normalize the rows are grouped, normalized and validated into
canonical products instead.

The format is detected from the extension and the content unless --format is set.`,
	Example: `  catalog-import parse ./feeds/produits.csv
  catalog-import parse ./feeds/stock.xlsx --normalize --output json
  catalog-import parse ./feeds/export.txt --format csv --delimiter ";" --encoding windows-1252`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVar(&parseFormat, "format", "", "Input format: csv, xlsx, json, xml, html (default: detect)")
	parseCmd.Flags().StringVar(&parseEncoding, "encoding", "", "CSV encoding: utf-8, windows-1252, iso-8859-1 (default: detect)")
	parseCmd.Flags().StringVar(&parseDelimiter, "delimiter", "", "CSV delimiter (default: detect)")
	parseCmd.Flags().BoolVar(&parseNormalize, "normalize", false, "Build canonical products instead of raw rows")
}

func parserOptions() parsers.Options {
	opts := loadedConfig().Import.ParserOptions()
	if parseEncoding != "" {
		opts.CSV.Encoding = charset.Encoding(strings.ToLower(parseEncoding))
	}
	if parseDelimiter != "" {
		opts.CSV.Delimiter = csv.CsvDelimiter(parseDelimiter)
	}
	return opts
}

func runParse(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	logger.Info().Str("file", filePath).Msgf("Read %d bytes", len(content))

	format := parsers.DetectFormat(filePath, content)
	if parseFormat != "" {
		if format, err = parsers.ParseFormat(parseFormat); err != nil {
			return err
		}
	}

	result, err := parsers.Parse(format, content, parserOptions())
	if err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}

	if parseNormalize {
		built := pipeline.DefaultBuilder().Build(result.Kind, result.Data)
		if outputFormat == "json" {
			return printJSON(built)
		}
		outputBuildTable(filePath, format, result, built)
		return nil
	}

	if outputFormat == "json" {
		return printJSON(result)
	}
	outputParseTable(filePath, format, result)
	return nil
}

func outputParseTable(filePath string, format parsers.Format, result *types.ParseResult) {
	fmt.Fprintf(stdout, "\nParse Results for %s (%s)\n", filePath, format)
	fmt.Fprintln(stdout, rule())

	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Metric\tValue\n")
	fmt.Fprintf(w, "------\t-----\n")
	fmt.Fprintf(w, "Rows\t%d\n", len(result.Data))
	fmt.Fprintf(w, "Row Errors\t%d\n", len(result.Errors))
	if len(result.Data) > 0 {
		fmt.Fprintf(w, "Columns\t%s\n", strings.Join(result.Data[0].Keys, ", "))
	}
	w.Flush()

	printRowErrors(rowErrorsAsImport(result.Errors))

	if len(result.Data) > 0 {
		fmt.Fprintf(stdout, "\nSample Rows (first %d):\n", min(len(result.Data), 5))
		fmt.Fprintln(stdout, rule())
		for _, row := range result.Data[:min(len(result.Data), 5)] {
			cells := make([]string, 0, len(row.Keys))
			for _, k := range row.Keys {
				if v := row.Fields[k]; v != "" {
					cells = append(cells, fmt.Sprintf("%s=%s", k, truncate(v, 40)))
				}
			}
			fmt.Fprintf(stdout, "Row %d: %s\n", row.Row, strings.Join(cells, " | "))
		}
	}
}

func outputBuildTable(filePath string, format parsers.Format, parsed *types.ParseResult, built pipeline.BuildResult) {
	fmt.Fprintf(stdout, "\nProducts built from %s (%s)\n", filePath, format)
	fmt.Fprintln(stdout, rule())

	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Metric\tValue\n")
	fmt.Fprintf(w, "------\t-----\n")
	fmt.Fprintf(w, "Rows\t%d\n", len(parsed.Data))
	fmt.Fprintf(w, "Products\t%d\n", len(built.Products))
	fmt.Fprintf(w, "Errors\t%d\n", len(parsed.Errors)+len(built.Errors))
	fmt.Fprintf(w, "Warnings\t%d\n", len(built.Warnings))
	w.Flush()

	printRowErrors(append(rowErrorsAsImport(parsed.Errors), built.Errors...))
	printProducts(built.Products)
}

func rowErrorsAsImport(errs []types.RowError) []types.ImportError {
	out := make([]types.ImportError, len(errs))
	for i, e := range errs {
		out[i] = types.ImportError{Row: e.Row, Error: e.Error}
	}
	return out
}

func printRowErrors(errs []types.ImportError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(stdout, "\nFirst %d Errors:\n", min(len(errs), 10))
	fmt.Fprintln(stdout, rule())
	for _, e := range errs[:min(len(errs), 10)] {
		fmt.Fprintf(stdout, "Row %d: %s\n", e.Row, e.Error)
	}
	if len(errs) > 10 {
		fmt.Fprintf(stdout, "... and %d more errors\n", len(errs)-10)
	}
}

func printProducts(products []types.CanonicalProduct) {
	if len(products) == 0 {
		return
	}
	fmt.Fprintf(stdout, "\nProducts (first %d):\n", min(len(products), 10))
	fmt.Fprintln(stdout, rule())

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Row\tName\tSKU\tPrice\tVariants\tImages\n")
	for _, p := range products[:min(len(products), 10)] {
		price := formatPrice(p.Price)
		if p.Currency != nil {
			price += " " + *p.Currency
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n",
			p.SourceRow, truncate(p.Name, 40), orDash(types.StringValue(p.SKU)), price, len(p.Variants), len(p.Images()))
	}
	w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
