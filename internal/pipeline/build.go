package pipeline

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/catalogsync/import-service/internal/grouping"
	"github.com/catalogsync/import-service/internal/normalize"
	"github.com/catalogsync/import-service/internal/types"
	"github.com/catalogsync/import-service/internal/validation"
)

// maxLoggedErrors caps per-row error logging for one import
const maxLoggedErrors = 5

// Builder turns raw rows into validated canonical products. It is synchronous
// and holds no per-run state, so one Builder serves concurrent imports.
type Builder struct {
	normalizer *normalize.Normalizer
	grouper    *grouping.Grouper
	validator  *validation.Validator
}

// NewBuilder wires a builder from its stages
func NewBuilder(n *normalize.Normalizer, g *grouping.Grouper, v *validation.Validator) *Builder {
	return &Builder{normalizer: n, grouper: g, validator: v}
}

// DefaultBuilder uses the default alias tables
func DefaultBuilder() *Builder {
	n := normalize.New()
	return NewBuilder(n, grouping.New(n), validation.New())
}

// BuildResult holds the products that passed validation and the row-local
// failures of the ones that did not
type BuildResult struct {
	Products []types.CanonicalProduct `json:"products"`
	Errors   []types.ImportError      `json:"errors"`
	Warnings []types.ImportWarning    `json:"warnings"`
}

// Build groups, assembles and validates rows. Spreadsheet rows are grouped
// into variant products; feed and scraped rows are grouped only when they
// carry a parent key column, otherwise each row is one product.
func (b *Builder) Build(kind types.SourceKind, rows []types.RawRow) BuildResult {
	result := BuildResult{
		Products: make([]types.CanonicalProduct, 0, len(rows)),
		Errors:   make([]types.ImportError, 0),
		Warnings: make([]types.ImportWarning, 0),
	}

	for _, group := range b.groups(kind, rows) {
		row := group[0].Row
		product, err := b.grouper.Assemble(group)
		if err != nil {
			result.Errors = append(result.Errors, types.ImportError{Row: row, Error: err.Error()})
			continue
		}

		check := b.validator.Validate(product)
		for _, w := range check.Warnings {
			result.Warnings = append(result.Warnings, types.ImportWarning{Row: row, Message: w})
		}
		if !check.Valid {
			p := product
			result.Errors = append(result.Errors, types.ImportError{Row: row, Product: &p, Error: strings.Join(check.Errors, "; ")})
			continue
		}
		result.Products = append(result.Products, product)
	}
	return result
}

func (b *Builder) groups(kind types.SourceKind, rows []types.RawRow) [][]types.RawRow {
	switch kind {
	case types.SourceCSV, types.SourceExcel:
		return b.grouper.Group(rows)
	}
	if b.grouper.HasParentKey(rows) {
		return b.grouper.Group(rows)
	}
	groups := make([][]types.RawRow, len(rows))
	for i := range rows {
		groups[i] = rows[i : i+1]
	}
	return groups
}

// mergeErrors folds upstream row errors into a preview, ordered by row
func mergeErrors(preview *types.ImportPreview, upstream []types.ImportError) {
	if len(upstream) == 0 {
		return
	}
	preview.Errors = append(upstream, preview.Errors...)
	sort.SliceStable(preview.Errors, func(i, j int) bool {
		return preview.Errors[i].Row < preview.Errors[j].Row
	})
}

func parseErrorsToImport(errs []types.RowError) []types.ImportError {
	out := make([]types.ImportError, len(errs))
	for i, e := range errs {
		out[i] = types.ImportError{Row: e.Row, Error: e.Error}
	}
	return out
}

func logRowErrors(filename, stage string, errs []types.ImportError) {
	if len(errs) == 0 {
		return
	}
	log.Warn().Str("filename", filename).Str("stage", stage).Int("error_count", len(errs)).Msg("Row errors found")
	for _, e := range errs[:min(len(errs), maxLoggedErrors)] {
		log.Debug().Str("filename", filename).Int("row", e.Row).Str("error", e.Error).Msg("Row error")
	}
	if len(errs) > maxLoggedErrors {
		log.Debug().Str("filename", filename).Int("additional_error_count", len(errs)-maxLoggedErrors).Msg("Additional row errors not shown")
	}
}
