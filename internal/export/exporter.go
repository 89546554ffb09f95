// Package export writes canonical products to the bulk-edit CSV and XLSX formats.
package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/catalogsync/import-service/internal/normalize"
	"github.com/catalogsync/import-service/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
)

// DefaultMaxImages caps the images written per product
const DefaultMaxImages = 10

const utf8BOM = "\uFEFF"

// Options configures the exporter
type Options struct {
	// IncludeVariants adds one row per variant after the first
	IncludeVariants bool `json:"includeVariants" mapstructure:"include_variants"`
	// IncludeImages adds one row per image after the first
	IncludeImages bool `json:"includeImages" mapstructure:"include_images"`
	// MaxImages counts the main row's image; 0 means DefaultMaxImages
	MaxImages int `json:"maxImages,omitempty" mapstructure:"max_images"`
	// Delimiter defaults to a comma
	Delimiter string `json:"delimiter,omitempty" mapstructure:"delimiter"`
	// MarkdownDescriptions renders descriptions from markdown into Body HTML
	MarkdownDescriptions bool `json:"markdownDescriptions,omitempty" mapstructure:"markdown_descriptions"`
}

// DefaultOptions includes variants and images
func DefaultOptions() Options {
	return Options{
		IncludeVariants: true,
		IncludeImages:   true,
		MaxImages:       DefaultMaxImages,
		Delimiter:       ",",
	}
}

// Exporter turns canonical products into export rows
type Exporter struct {
	options  Options
	markdown goldmark.Markdown
}

// New creates an Exporter
func New(options Options) (*Exporter, error) {
	if options.MaxImages <= 0 {
		options.MaxImages = DefaultMaxImages
	}
	if options.Delimiter == "" {
		options.Delimiter = ","
	}
	if len([]rune(options.Delimiter)) != 1 {
		return nil, fmt.Errorf("delimiter must be a single character, got %q", options.Delimiter)
	}
	return &Exporter{
		options:  options,
		markdown: goldmark.New(),
	}, nil
}

// Rows returns the header followed by every product's rows.
// A product emits a main row, then its extra variants, then its extra images.
func (e *Exporter) Rows(products []types.CanonicalProduct) ([][]string, error) {
	rows := make([][]string, 0, len(products)+1)
	rows = append(rows, append([]string(nil), Columns...))

	handles := make(map[string]string, len(products))
	for _, p := range products {
		handle := productHandle(p)
		if other, ok := handles[handle]; ok && other != p.Name {
			// collisions are reported, never renamed
			log.Warn().Str("handle", handle).Str("first", other).Str("second", p.Name).Msg("Export handle collision")
		} else {
			handles[handle] = p.Name
		}

		productRows, err := e.productRows(p, handle)
		if err != nil {
			return nil, fmt.Errorf("product %q: %w", p.Name, err)
		}
		rows = append(rows, productRows...)
	}
	return rows, nil
}

func (e *Exporter) productRows(p types.CanonicalProduct, handle string) ([][]string, error) {
	body, err := e.bodyHTML(p)
	if err != nil {
		return nil, err
	}

	main := make([]string, columnCount)
	main[colHandle] = handle
	main[colTitle] = p.Name
	main[colBodyHTML] = body
	main[colVendor] = firstNonEmpty(types.StringValue(p.Vendor), types.StringValue(p.SupplierName))
	main[colType] = types.StringValue(p.Category)
	main[colTags] = strings.Join(p.Tags, ", ")
	main[colPublished] = strings.ToUpper(strconv.FormatBool(p.Status == types.StatusActive || p.Status == ""))
	main[colSEOTitle] = types.StringValue(p.SEOTitle)
	main[colSEODescription] = types.StringValue(p.SEODescription)
	main[colStatus] = string(p.Status)
	if p.CostPrice != nil {
		main[colCostPerItem] = formatNumber(*p.CostPrice)
	}
	main[colSourceURL] = types.StringValue(p.SourceURL)
	main[colSourcePlatform] = types.StringValue(p.SourcePlatform)

	if len(p.Variants) > 0 {
		fillVariant(main, p.Variants[0])
	} else {
		main[colVariantInventoryPolicy] = "deny"
	}
	if main[colVariantSKU] == "" {
		main[colVariantSKU] = types.StringValue(p.SKU)
	}
	if main[colVariantPrice] == "" {
		main[colVariantPrice] = formatNumber(p.Price)
	}
	if main[colVariantInventoryQty] == "" && p.StockQuantity != nil {
		main[colVariantInventoryQty] = strconv.Itoa(*p.StockQuantity)
	}

	images := p.Images()
	if len(images) > e.options.MaxImages {
		images = images[:e.options.MaxImages]
	}
	if len(images) > 0 {
		fillImage(main, images[0], 1, p.Name)
	}

	rows := [][]string{main}

	if e.options.IncludeVariants && len(p.Variants) > 1 {
		for _, v := range p.Variants[1:] {
			row := make([]string, columnCount)
			row[colHandle] = handle
			fillVariant(row, v)
			rows = append(rows, row)
		}
	}

	if e.options.IncludeImages && len(images) > 1 {
		for i, img := range images[1:] {
			row := make([]string, columnCount)
			row[colHandle] = handle
			fillImage(row, img, i+2, p.Name)
			rows = append(rows, row)
		}
	}

	return rows, nil
}

func fillVariant(row []string, v types.Variant) {
	for i, o := range []*types.Option{v.Option1, v.Option2, v.Option3} {
		if o == nil {
			continue
		}
		row[colOption1Name+2*i] = o.Name
		row[colOption1Value+2*i] = o.Value
	}
	row[colVariantSKU] = types.StringValue(v.SKU)
	if v.Price != nil {
		row[colVariantPrice] = formatNumber(*v.Price)
	}
	if v.CompareAtPrice != nil {
		row[colVariantCompareAtPrice] = formatNumber(*v.CompareAtPrice)
	}
	if v.InventoryQuantity != nil {
		row[colVariantInventoryQty] = strconv.Itoa(*v.InventoryQuantity)
	}
	row[colVariantInventoryPolicy] = "deny"
}

func fillImage(row []string, src string, position int, alt string) {
	row[colImageSrc] = src
	row[colImagePosition] = strconv.Itoa(position)
	row[colImageAltText] = alt
}

func (e *Exporter) bodyHTML(p types.CanonicalProduct) (string, error) {
	desc := types.StringValue(p.Description)
	if !e.options.MarkdownDescriptions || desc == "" {
		return desc, nil
	}
	var buf bytes.Buffer
	if err := e.markdown.Convert([]byte(desc), &buf); err != nil {
		return "", fmt.Errorf("failed to render description: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// productHandle derives the handle from the title, falling back to a source handle
func productHandle(p types.CanonicalProduct) string {
	if h := normalize.Handle(p.Name); h != "" {
		return h
	}
	return normalize.Handle(p.Handle)
}

// ExportCSV writes products as CSV prefixed with a UTF-8 BOM
func (e *Exporter) ExportCSV(products []types.CanonicalProduct) (string, error) {
	rows, err := e.Rows(products)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(utf8BOM)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				b.WriteString(e.options.Delimiter)
			}
			b.WriteString(escape(cell, e.options.Delimiter))
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// ExportCSV is a convenience wrapper around Exporter.ExportCSV
func ExportCSV(products []types.CanonicalProduct, options Options) (string, error) {
	e, err := New(options)
	if err != nil {
		return "", err
	}
	return e.ExportCSV(products)
}

// escape quotes a cell containing the delimiter, a quote, or a line break
func escape(value, delimiter string) string {
	if !strings.Contains(value, delimiter) && !strings.ContainsAny(value, "\"\r\n") {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
