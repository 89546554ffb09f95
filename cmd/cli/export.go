package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/catalogsync/import-service/internal/export"
	"github.com/catalogsync/import-service/internal/types"
)

var (
	exportOut        string
	exportXLSX       bool
	exportNoVariants bool
	exportNoImages   bool
	exportMaxImages  int
	exportDelimiter  string
	exportMarkdown   bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <products.json>",
	Short: "Export canonical products as a storefront import file",
	Long: `Export canonical products to the 27-column storefront CSV layout (or an XLSX
workbook with --xlsx). The input is either a JSON array of products, the JSON
output of "parse --normalize", or the JSON output of "preview", in which case
new and updated products are exported.`,
	Example: `  catalog-import export products.json --out storefront.csv
  catalog-import preview feed.csv -o json > preview.json && catalog-import export preview.json --out new.csv
  catalog-import export products.json --xlsx --out storefront.xlsx --max-images 5`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default: stdout)")
	exportCmd.Flags().BoolVar(&exportXLSX, "xlsx", false, "Write an XLSX workbook instead of CSV")
	exportCmd.Flags().BoolVar(&exportNoVariants, "no-variants", false, "Skip rows for extra variants")
	exportCmd.Flags().BoolVar(&exportNoImages, "no-images", false, "Skip rows for extra images")
	exportCmd.Flags().IntVar(&exportMaxImages, "max-images", 0, "Images per product, main image included (default: config)")
	exportCmd.Flags().StringVar(&exportDelimiter, "delimiter", "", "CSV delimiter (default: config or ',')")
	exportCmd.Flags().BoolVar(&exportMarkdown, "markdown", false, "Render descriptions from markdown into Body HTML")
}

func runExport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	products, err := decodeProducts(data)
	if err != nil {
		return err
	}

	opts := loadedConfig().Import.Export
	if opts.MaxImages == 0 && opts.Delimiter == "" {
		opts = export.DefaultOptions()
	}
	if exportNoVariants {
		opts.IncludeVariants = false
	}
	if exportNoImages {
		opts.IncludeImages = false
	}
	if exportMaxImages > 0 {
		opts.MaxImages = exportMaxImages
	}
	if exportDelimiter != "" {
		opts.Delimiter = exportDelimiter
	}
	if exportMarkdown {
		opts.MarkdownDescriptions = true
	}

	exporter, err := export.New(opts)
	if err != nil {
		return err
	}

	var out []byte
	if exportXLSX {
		var buf bytes.Buffer
		if err := exporter.ExportXLSX(products, &buf); err != nil {
			return fmt.Errorf("xlsx export failed: %w", err)
		}
		out = buf.Bytes()
	} else {
		csvText, err := exporter.ExportCSV(products)
		if err != nil {
			return fmt.Errorf("csv export failed: %w", err)
		}
		out = []byte(csvText)
	}

	if exportOut == "" {
		_, err := stdout.Write(out)
		return err
	}
	if err := os.WriteFile(exportOut, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", exportOut, err)
	}
	logger.Info().Str("file", exportOut).Int("products", len(products)).Msg("Export written")
	fmt.Fprintf(os.Stderr, "Exported %d products to %s\n", len(products), exportOut)
	return nil
}

// decodeProducts accepts a product array, a build result or preview output
func decodeProducts(data []byte) ([]types.CanonicalProduct, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var products []types.CanonicalProduct
		if err := json.Unmarshal(data, &products); err != nil {
			return nil, fmt.Errorf("invalid products file: %w", err)
		}
		return products, nil
	}

	var doc struct {
		Products []types.CanonicalProduct `json:"products"`
		Files    []struct {
			Result *struct {
				Preview *types.ImportPreview `json:"preview"`
			} `json:"result"`
		} `json:"files"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid products file: %w", err)
	}
	if len(doc.Products) > 0 {
		return doc.Products, nil
	}

	products := make([]types.CanonicalProduct, 0)
	for _, f := range doc.Files {
		if f.Result == nil || f.Result.Preview == nil {
			continue
		}
		products = append(products, f.Result.Preview.New...)
		for _, u := range f.Result.Preview.Updates {
			products = append(products, u.Product)
		}
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("no products found in input")
	}
	return products, nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
