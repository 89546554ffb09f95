// Package reconcile classifies incoming products against the existing catalog.
package reconcile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/catalogsync/import-service/internal/normalize"
	"github.com/catalogsync/import-service/internal/types"
	"github.com/rs/zerolog/log"
)

// Reconciler builds an ImportPreview from incoming products and a catalog snapshot.
// It never merges: conflicting matches are reported for a human to resolve.
type Reconciler struct{}

// New creates a Reconciler
func New() *Reconciler {
	return &Reconciler{}
}

type catalogIndex struct {
	existing []types.CatalogProduct
	bySKU    map[string]int
	byName   map[string]int
}

// newCatalogIndex indexes the catalog once; the first record wins on duplicates
func newCatalogIndex(existing []types.CatalogProduct) *catalogIndex {
	idx := &catalogIndex{
		existing: existing,
		bySKU:    make(map[string]int, len(existing)),
		byName:   make(map[string]int, len(existing)),
	}
	for i, e := range existing {
		if sku := strings.TrimSpace(types.StringValue(e.SKU)); sku != "" {
			if _, ok := idx.bySKU[sku]; !ok {
				idx.bySKU[sku] = i
			}
		}
		if name := normalize.MatchKey(e.Name); name != "" {
			if _, ok := idx.byName[name]; !ok {
				idx.byName[name] = i
			}
		}
	}
	return idx
}

// matchBySku is an exact match, attempted only for a non-empty SKU
func (c *catalogIndex) matchBySku(p types.CanonicalProduct) (int, bool) {
	sku := strings.TrimSpace(types.StringValue(p.SKU))
	if sku == "" {
		return 0, false
	}
	i, ok := c.bySKU[sku]
	return i, ok
}

// matchByName is a case-insensitive exact match on the trimmed name
func (c *catalogIndex) matchByName(p types.CanonicalProduct) (int, bool) {
	name := normalize.MatchKey(p.Name)
	if name == "" {
		return 0, false
	}
	i, ok := c.byName[name]
	return i, ok
}

// Analyze classifies each incoming product as new, update, conflict, unchanged
// or error. A failure on one product is recorded and the batch continues.
func (r *Reconciler) Analyze(incoming []types.CanonicalProduct, existing []types.CatalogProduct) *types.ImportPreview {
	preview := types.NewImportPreview()
	idx := newCatalogIndex(existing)

	for i, p := range incoming {
		r.classify(preview, idx, i, p)
	}

	log.Debug().
		Int("new", len(preview.New)).
		Int("updates", len(preview.Updates)).
		Int("conflicts", len(preview.Conflicts)).
		Int("unchanged", preview.Unchanged).
		Int("errors", len(preview.Errors)).
		Msg("Catalog reconciliation complete")

	return preview
}

func (r *Reconciler) classify(preview *types.ImportPreview, idx *catalogIndex, i int, p types.CanonicalProduct) {
	row := p.SourceRow
	if row <= 0 {
		row = i + 2
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Warn().Int("row", row).Interface("panic", rec).Msg("Reconciliation failed for product")
			product := p
			preview.AddError(row, &product, fmt.Sprintf("reconciliation failed: %v", rec))
		}
	}()

	skuIdx, skuOK := idx.matchBySku(p)
	nameIdx, nameOK := idx.matchByName(p)

	switch {
	case skuOK && nameOK && skuIdx != nameIdx:
		preview.Conflicts = append(preview.Conflicts, types.ProductConflict{
			Product:      p,
			Existing:     idx.existing[skuIdx],
			NameMatch:    idx.existing[nameIdx],
			ConflictType: types.ConflictTypeSKU,
		})
	case skuOK || nameOK:
		matched := skuIdx
		if !skuOK {
			matched = nameIdx
		}
		existing := idx.existing[matched]
		changes := DetectChanges(p, existing)
		if len(changes) == 0 {
			preview.Unchanged++
			return
		}
		preview.Updates = append(preview.Updates, types.ProductUpdate{
			Product:  p,
			Existing: existing,
			Changes:  changes,
		})
	default:
		preview.New = append(preview.New, p)
	}
}

// DetectChanges lists field differences in the reviewer's wording, e.g.
// "Prix: 10€ → 12€". Fields absent from the import are not compared, and a
// defaulted status counts as absent.
func DetectChanges(p types.CanonicalProduct, e types.CatalogProduct) []string {
	changes := make([]string, 0)

	if name := strings.TrimSpace(p.Name); name != "" && name != e.Name {
		changes = append(changes, fmt.Sprintf("Nom: %s → %s", e.Name, name))
	}
	if !floatEqual(p.Price, e.Price) {
		changes = append(changes, fmt.Sprintf("Prix: %s€ → %s€", formatNumber(e.Price), formatNumber(p.Price)))
	}
	if p.CostPrice != nil && (e.CostPrice == nil || !floatEqual(*p.CostPrice, *e.CostPrice)) {
		changes = append(changes, fmt.Sprintf("Prix d'achat: %s → %s€", formatMoneyPtr(e.CostPrice), formatNumber(*p.CostPrice)))
	}
	if p.StockQuantity != nil && (e.StockQuantity == nil || *p.StockQuantity != *e.StockQuantity) {
		changes = append(changes, fmt.Sprintf("Stock: %s → %d", formatIntPtr(e.StockQuantity), *p.StockQuantity))
	}
	if p.Category != nil && strings.TrimSpace(*p.Category) != types.StringValue(e.Category) {
		changes = append(changes, fmt.Sprintf("Catégorie: %s → %s", orDash(types.StringValue(e.Category)), strings.TrimSpace(*p.Category)))
	}
	if p.Status != "" && !p.StatusDefaulted && p.Status != e.Status {
		changes = append(changes, fmt.Sprintf("Statut: %s → %s", orDash(string(e.Status)), p.Status))
	}

	return changes
}

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatMoneyPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatNumber(*v) + "€"
}

func formatIntPtr(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
