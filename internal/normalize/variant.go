package normalize

import "github.com/catalogsync/import-service/internal/types"

// VariantFromRow extracts variant columns from a row of a multi-row export.
// ok is false when the row carries no option or variant-specific cell.
// With fallback set, the generic sku/price/stock columns also count, which is
// how continuation rows of positional exports describe their variant.
func (n *Normalizer) VariantFromRow(raw types.RawRow, fallback bool) (types.Variant, bool) {
	var v types.Variant
	found := false

	options := []struct {
		name, value Field
		dst         **types.Option
	}{
		{FieldOption1Name, FieldOption1Value, &v.Option1},
		{FieldOption2Name, FieldOption2Value, &v.Option2},
		{FieldOption3Name, FieldOption3Value, &v.Option3},
	}
	for _, o := range options {
		value, ok := n.Lookup(raw, o.value)
		if !ok {
			continue
		}
		name, _ := n.Lookup(raw, o.name)
		*o.dst = &types.Option{Name: name, Value: value}
		found = true
	}

	sku, ok := n.Lookup(raw, FieldVariantSKU)
	if !ok && fallback {
		sku, ok = n.Lookup(raw, FieldSKU)
	}
	if ok {
		v.SKU = &sku
		found = true
	}

	price, ok := n.Lookup(raw, FieldVariantPrice)
	if !ok && fallback {
		price, ok = n.Lookup(raw, FieldPrice)
	}
	if ok {
		f, _ := ParseNumber(price)
		v.Price = &f
		found = true
	}

	if s, ok := n.Lookup(raw, FieldCompareAtPrice); ok {
		f, _ := ParseNumber(s)
		v.CompareAtPrice = &f
		found = true
	}

	qty, ok := n.Lookup(raw, FieldVariantQuantity)
	if !ok && fallback {
		qty, ok = n.Lookup(raw, FieldStock)
	}
	if ok {
		q, _ := ParseInt(qty)
		v.InventoryQuantity = &q
		found = true
	}

	if img, ok := n.Lookup(raw, FieldVariantImage); ok {
		v.Image = &img
	}

	return v, found
}

// ImagesFromRow returns the image cells of a row
func (n *Normalizer) ImagesFromRow(raw types.RawRow) []string {
	images := make([]string, 0, 2)
	if v, ok := n.Lookup(raw, FieldImage); ok {
		images = append(images, SplitList(v)...)
	}
	if v, ok := n.Lookup(raw, FieldImages); ok {
		images = append(images, SplitList(v)...)
	}
	return images
}
