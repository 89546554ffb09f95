// Package grouping folds multi-row variant exports into one group per logical product.
package grouping

import (
	"fmt"

	"github.com/catalogsync/import-service/internal/normalize"
	"github.com/catalogsync/import-service/internal/types"
	"github.com/rs/zerolog/log"
)

// ParentKeyColumns are stable parent identifiers, tried in order. When a batch
// carries one of them, rows are grouped by its value instead of by position.
var ParentKeyColumns = []string{"Handle", "handle", "parent_sku", "parent_id", "item_group_id"}

// selfKeys name the column holding a parent row's own identifier when its
// parent key cell is blank
var selfKeys = map[string]string{
	"parent_sku": "sku",
	"parent_id":  "id",
}

// Grouper builds product groups from raw rows
type Grouper struct {
	normalizer *normalize.Normalizer
}

// New creates a Grouper sharing the given normalizer's alias tables
func New(n *normalize.Normalizer) *Grouper {
	return &Grouper{normalizer: n}
}

// Group splits rows into groups. With a parent key column, every row with the
// same key joins one group in first-appearance order, contiguous or not, and
// a titled row with a blank key starts a group of its own. Otherwise a row with a non-empty name starts a group and nameless rows join
// the current one. Rows that cannot be attached to any group are dropped.
func (g *Grouper) Group(rows []types.RawRow) [][]types.RawRow {
	if len(rows) == 0 {
		return [][]types.RawRow{}
	}
	if key := g.parentKey(rows); key != "" {
		return g.groupByKey(rows, key)
	}
	return g.groupByPosition(rows)
}

// HasParentKey reports whether the batch carries a stable parent key column
func (g *Grouper) HasParentKey(rows []types.RawRow) bool {
	return g.parentKey(rows) != ""
}

// parentKey returns the first parent key column present with a value in the batch
func (g *Grouper) parentKey(rows []types.RawRow) string {
	for _, col := range ParentKeyColumns {
		for _, row := range rows {
			if v, ok := row.Get(col); ok && v != "" {
				return col
			}
		}
	}
	return ""
}

func (g *Grouper) groupByKey(rows []types.RawRow, key string) [][]types.RawRow {
	index := make(map[string]int)
	groups := make([][]types.RawRow, 0)
	current := -1
	dropped := 0

	for _, row := range rows {
		v := keyOf(row, key)
		if v == "" {
			// a titled row without a key is a product of its own
			if g.hasName(row) {
				current = len(groups)
				groups = append(groups, []types.RawRow{row})
				continue
			}
			// untitled continuation rows stay with the previous group
			if current < 0 {
				dropped++
				continue
			}
			groups[current] = append(groups[current], row)
			continue
		}
		i, ok := index[v]
		if !ok {
			i = len(groups)
			index[v] = i
			groups = append(groups, make([]types.RawRow, 0, 1))
		}
		groups[i] = append(groups[i], row)
		current = i
	}

	// the titled row leads its group whatever order the file used
	for _, group := range groups {
		promoteTitled(g, group)
	}

	logDropped(dropped, len(rows))
	return groups
}

func keyOf(row types.RawRow, key string) string {
	if v, _ := row.Get(key); v != "" {
		return v
	}
	if self, ok := selfKeys[key]; ok {
		v, _ := row.Get(self)
		return v
	}
	return ""
}

func (g *Grouper) groupByPosition(rows []types.RawRow) [][]types.RawRow {
	groups := make([][]types.RawRow, 0)
	dropped := 0

	for _, row := range rows {
		if g.hasName(row) {
			groups = append(groups, []types.RawRow{row})
			continue
		}
		if len(groups) == 0 {
			dropped++
			continue
		}
		last := len(groups) - 1
		groups[last] = append(groups[last], row)
	}

	logDropped(dropped, len(rows))
	return groups
}

// hasName reports whether the row carries a product title. Handle is not a
// title here: every row of a keyed export repeats it.
func (g *Grouper) hasName(row types.RawRow) bool {
	_, ok := g.normalizer.Lookup(row, normalize.FieldTitle)
	return ok
}

func promoteTitled(g *Grouper, group []types.RawRow) {
	for i, row := range group {
		if g.hasName(row) {
			if i > 0 {
				titled := group[i]
				copy(group[1:i+1], group[0:i])
				group[0] = titled
			}
			return
		}
	}
}

func logDropped(dropped, total int) {
	if dropped > 0 {
		log.Warn().
			Int("dropped", dropped).
			Int("rows", total).
			Msg("Dropped variant rows that appear before any product row")
	}
}

// Assemble builds one product from a group. The first row supplies every
// scalar field; each row carrying variant cells adds a Variant, and image
// cells of later rows are appended to ImageURLs.
func (g *Grouper) Assemble(group []types.RawRow) (types.CanonicalProduct, error) {
	if len(group) == 0 {
		return types.CanonicalProduct{}, fmt.Errorf("empty group")
	}

	product, err := g.normalizer.Normalize(group[0])
	if err != nil {
		return types.CanonicalProduct{}, err
	}
	if len(group) == 1 {
		if v, ok := g.normalizer.VariantFromRow(group[0], false); ok {
			product.Variants = []types.Variant{v}
		}
		return product, nil
	}

	variants := make([]types.Variant, 0, len(group))
	if v, ok := g.normalizer.VariantFromRow(group[0], true); ok {
		variants = append(variants, v)
	}

	images := product.Images()
	seen := make(map[string]bool, len(images))
	for _, img := range images {
		seen[img] = true
	}

	for _, row := range group[1:] {
		if v, ok := g.normalizer.VariantFromRow(row, true); ok {
			variants = append(variants, v)
		}
		for _, img := range g.normalizer.ImagesFromRow(row) {
			if seen[img] {
				continue
			}
			seen[img] = true
			if product.ImageURL == nil {
				first := img
				product.ImageURL = &first
				continue
			}
			product.ImageURLs = append(product.ImageURLs, img)
		}
	}

	if len(variants) > 0 {
		product.Variants = variants
	}
	return product, nil
}
