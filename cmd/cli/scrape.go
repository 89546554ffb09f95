package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/catalogsync/import-service/internal/pipeline"
	"github.com/catalogsync/import-service/internal/scraper"
	"github.com/catalogsync/import-service/internal/types"
)

var scrapeBaseURL string

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape <url|file.html>",
	Short: "Extract products from a supplier product page",
	Long: `Extract products from a supplier product page. Structured data (JSON-LD) is
preferred; pages without it fall back to meta tags, price patterns and images
found in the markup. A local HTML file is read instead of fetched; --url then
supplies the page address used for relative links and the supplier name.`,
	Example: `  catalog-import scrape https://www.atelier-bois.fr/produits/table-chene
  catalog-import scrape ./saved/page.html --url https://www.atelier-bois.fr/p/1 --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVar(&scrapeBaseURL, "url", "", "Page address for a local HTML file")
}

func newFetcher() *scraper.Fetcher {
	return loadedConfig().Scraper.NewFetcher()
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	target := args[0]

	var (
		result *types.ParseResult
		err    error
	)
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		result, err = newFetcher().Scrape(ctx, target)
	} else {
		var content []byte
		content, err = os.ReadFile(target)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		result, err = scraper.Extract(content, scrapeBaseURL)
	}
	if err != nil {
		return err
	}

	built := pipeline.DefaultBuilder().Build(result.Kind, result.Data)
	if outputFormat == "json" {
		return printJSON(built)
	}

	fmt.Fprintf(stdout, "\nScraped %s\n", target)
	fmt.Fprintln(stdout, rule())
	printRowErrors(append(rowErrorsAsImport(result.Errors), built.Errors...))
	printProducts(built.Products)
	for _, p := range built.Products {
		fmt.Fprintf(stdout, "\n%s\n", p.Name)
		if p.SourcePlatform != nil {
			fmt.Fprintf(stdout, "    platform: %s\n", *p.SourcePlatform)
		}
		if len(p.Tags) > 0 {
			fmt.Fprintf(stdout, "    tags: %s\n", strings.Join(p.Tags, ", "))
		}
		for _, img := range p.Images() {
			fmt.Fprintf(stdout, "    image: %s\n", img)
		}
	}
	return nil
}
