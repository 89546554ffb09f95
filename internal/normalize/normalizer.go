// Package normalize maps raw rows from any source format onto the canonical product schema.
package normalize

import (
	"errors"
	"strings"

	"github.com/catalogsync/import-service/internal/types"
)

// ErrMissingName is returned when no name alias resolves to a non-empty value
var ErrMissingName = errors.New("product name is required")

// Normalizer resolves canonical fields through per-kind alias tables.
// Lookup tries every alias exactly, then again ignoring case, accents and _/space.
type Normalizer struct {
	aliases map[types.SourceKind]AliasTable
}

// New creates a Normalizer with the default alias tables
func New() *Normalizer {
	return NewWithAliases(DefaultAliases())
}

// NewWithAliases creates a Normalizer with custom alias tables
func NewWithAliases(aliases map[types.SourceKind]AliasTable) *Normalizer {
	return &Normalizer{aliases: aliases}
}

func (n *Normalizer) table(kind types.SourceKind) AliasTable {
	if t, ok := n.aliases[kind]; ok {
		return t
	}
	return n.aliases[types.SourceCSV]
}

// Lookup returns the first non-empty value among the field's aliases
func (n *Normalizer) Lookup(raw types.RawRow, field Field) (string, bool) {
	aliases := n.table(raw.Kind)[field]
	for _, alias := range aliases {
		if v, ok := raw.Fields[alias]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}

	folded := make(map[string]string, len(raw.Keys))
	for _, k := range raw.Keys {
		fk := foldKey(k)
		if _, seen := folded[fk]; !seen {
			folded[fk] = k
		}
	}
	for _, alias := range aliases {
		if k, ok := folded[foldKey(alias)]; ok {
			if v := strings.TrimSpace(raw.Fields[k]); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func (n *Normalizer) lookupPtr(raw types.RawRow, field Field) *string {
	if v, ok := n.Lookup(raw, field); ok {
		return &v
	}
	return nil
}

// Normalize maps a raw row onto a CanonicalProduct. Numeric cells that fail to
// parse become 0 and set the matching Coercion flag instead of failing.
func (n *Normalizer) Normalize(raw types.RawRow) (types.CanonicalProduct, error) {
	name, ok := n.Lookup(raw, FieldName)
	if !ok {
		return types.CanonicalProduct{}, ErrMissingName
	}

	p := types.CanonicalProduct{
		Name:           name,
		SKU:            n.lookupPtr(raw, FieldSKU),
		Category:       n.lookupPtr(raw, FieldCategory),
		Description:    n.lookupPtr(raw, FieldDescription),
		SEOTitle:       n.lookupPtr(raw, FieldSEOTitle),
		SEODescription: n.lookupPtr(raw, FieldSEODescription),
		Vendor:         n.lookupPtr(raw, FieldVendor),
		Currency:       n.lookupPtr(raw, FieldCurrency),
		SupplierName:   n.lookupPtr(raw, FieldSupplier),
		SourceURL:      n.lookupPtr(raw, FieldSourceURL),
		SourcePlatform: n.lookupPtr(raw, FieldSourcePlatform),
		Status:          types.StatusActive,
		StatusDefaulted: true,
		SourceRow:       raw.Row,
	}

	if v, ok := n.Lookup(raw, FieldHandle); ok {
		p.Handle = v
	}

	if v, ok := n.Lookup(raw, FieldPrice); ok {
		price, parsed := ParseNumber(v)
		p.Price = price
		p.Coercion.Price = !parsed
		if p.Currency == nil {
			if code := DetectCurrency(v); code != "" {
				p.Currency = &code
			}
		}
	}

	if v, ok := n.Lookup(raw, FieldCostPrice); ok {
		cost, parsed := ParseNumber(v)
		p.CostPrice = &cost
		p.Coercion.CostPrice = !parsed
	}

	if v, ok := n.Lookup(raw, FieldStock); ok {
		stock, parsed := ParseInt(v)
		p.StockQuantity = &stock
		p.Coercion.StockQuantity = !parsed
	}

	if v, ok := n.Lookup(raw, FieldStatus); ok {
		p.Status = ParseStatus(v)
		p.StatusDefaulted = false
	}

	if v, ok := n.Lookup(raw, FieldTags); ok {
		p.Tags = SplitTags(v)
	}

	if images := n.ImagesFromRow(raw); len(images) > 0 {
		p.ImageURL = &images[0]
		p.ImageURLs = dedupe(images[1:], images[0])
	}

	return p, nil
}

// ParseStatus maps English/French status words and booleans to a ProductStatus.
// Unknown values default to active.
func ParseStatus(value string) types.ProductStatus {
	switch strings.ToLower(strings.TrimSpace(RemoveDiacritics(value))) {
	case "active", "actif", "published", "publie", "true", "1", "yes", "oui", "in stock", "instock":
		return types.StatusActive
	case "draft", "brouillon":
		return types.StatusDraft
	case "inactive", "archived", "inactif", "archive", "false", "0", "no", "non", "disabled":
		return types.StatusInactive
	default:
		return types.StatusActive
	}
}

// SplitTags splits on commas and semicolons, dropping blanks and duplicates
func SplitTags(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' })
	return dedupe(parts, "")
}

// SplitList splits a comma or whitespace separated URL list
func SplitList(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == ' ' || r == '|'
	})
	return dedupe(parts, "")
}

func dedupe(values []string, exclude string) []string {
	seen := map[string]bool{exclude: true, "": true}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
