package normalize

import (
	"strings"
	"testing"

	"github.com/catalogsync/import-service/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawRow(kind types.SourceKind, kv ...string) types.RawRow {
	row := types.NewRawRow(kind, 2)
	for i := 0; i+1 < len(kv); i += 2 {
		row.Set(kv[i], kv[i+1])
	}
	return row
}

func TestNormalizeAliases(t *testing.T) {
	n := New()

	tests := []struct {
		name      string
		raw       types.RawRow
		wantName  string
		wantPrice float64
		wantSKU   string
	}{
		{
			name:      "english columns",
			raw:       rawRow(types.SourceCSV, "name", "Widget", "price", "19.99", "sku", "W-1"),
			wantName:  "Widget",
			wantPrice: 19.99,
			wantSKU:   "W-1",
		},
		{
			name:      "french columns",
			raw:       rawRow(types.SourceCSV, "Nom", "Chaise", "Prix", "49,90 €", "reference", "CH-2"),
			wantName:  "Chaise",
			wantPrice: 49.9,
			wantSKU:   "CH-2",
		},
		{
			name:      "shopify export",
			raw:       rawRow(types.SourceCSV, "Handle", "chaise", "Title", "Chaise longue", "Variant Price", "120.00", "Variant SKU", "CL-1"),
			wantName:  "Chaise longue",
			wantPrice: 120,
			wantSKU:   "CL-1",
		},
		{
			name:      "case and separator insensitive",
			raw:       rawRow(types.SourceExcel, "PRODUCT NAME", "Lampe", "Sale-Price", "9", "SKU", "L-9"),
			wantName:  "Lampe",
			wantPrice: 9,
			wantSKU:   "L-9",
		},
		{
			name:      "json feed",
			raw:       rawRow(types.SourceJSON, "productName", "Tasse", "offers.price", "8.5", "id", "T-1"),
			wantName:  "Tasse",
			wantPrice: 8.5,
			wantSKU:   "T-1",
		},
		{
			name:      "empty title falls back to handle",
			raw:       rawRow(types.SourceCSV, "Handle", "vase-bleu", "Title", "", "Variant Price", "15"),
			wantName:  "vase-bleu",
			wantPrice: 15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := n.Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name)
			assert.InDelta(t, tt.wantPrice, p.Price, 1e-9)
			assert.Equal(t, tt.wantSKU, types.StringValue(p.SKU))
			assert.False(t, p.Coercion.Price)
			assert.Equal(t, 2, p.SourceRow)
		})
	}
}

func TestNormalizeCoercion(t *testing.T) {
	n := New()

	p, err := n.Normalize(rawRow(types.SourceCSV, "name", "x", "price", "abc", "stock", "n/a", "cost", "5"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Price)
	assert.True(t, p.Coercion.Price)
	require.NotNil(t, p.StockQuantity)
	assert.Equal(t, 0, *p.StockQuantity)
	assert.True(t, p.Coercion.StockQuantity)
	require.NotNil(t, p.CostPrice)
	assert.Equal(t, 5.0, *p.CostPrice)
	assert.False(t, p.Coercion.CostPrice)

	p, err = n.Normalize(rawRow(types.SourceCSV, "name", "x", "price", "0"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Price)
	assert.False(t, p.Coercion.Any(), "explicit zero is not a coercion failure")
	assert.Nil(t, p.CostPrice)
	assert.Nil(t, p.StockQuantity)
	assert.Equal(t, types.StatusActive, p.Status)
	assert.True(t, p.StatusDefaulted, "no status cell")
}

func TestNormalizeMissingName(t *testing.T) {
	_, err := New().Normalize(rawRow(types.SourceCSV, "price", "10", "name", "  "))
	assert.ErrorIs(t, err, ErrMissingName)
}

func TestNormalizeOptionalFields(t *testing.T) {
	p, err := New().Normalize(rawRow(types.SourceCSV,
		"name", "Bougie",
		"price", "12.90 EUR",
		"status", "Brouillon",
		"tags", "maison; déco, maison",
		"image_url", "https://cdn.test/a.jpg",
		"images", "https://cdn.test/b.jpg,https://cdn.test/a.jpg",
		"Body HTML", "<p>Parfum</p>",
	))
	require.NoError(t, err)
	assert.Equal(t, types.StatusDraft, p.Status)
	assert.False(t, p.StatusDefaulted)
	assert.Equal(t, []string{"maison", "déco"}, p.Tags)
	assert.Equal(t, "https://cdn.test/a.jpg", types.StringValue(p.ImageURL))
	assert.Equal(t, []string{"https://cdn.test/b.jpg"}, p.ImageURLs)
	assert.Equal(t, "<p>Parfum</p>", types.StringValue(p.Description))
	assert.Equal(t, "EUR", types.StringValue(p.Currency))
}

func TestParseStatus(t *testing.T) {
	tests := map[string]types.ProductStatus{
		"active":    types.StatusActive,
		"Actif":     types.StatusActive,
		"published": types.StatusActive,
		"TRUE":      types.StatusActive,
		"draft":     types.StatusDraft,
		"brouillon": types.StatusDraft,
		"inactive":  types.StatusInactive,
		"archived":  types.StatusInactive,
		"inactif":   types.StatusInactive,
		"false":     types.StatusInactive,
		"whatever":  types.StatusActive,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseStatus(in), in)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"19.99", 19.99, true},
		{"€12", 12, true},
		{"3,50", 3.5, true},
		{"1.299,00", 1299, true},
		{"1,299", 1299, true},
		{"12.90 EUR", 12.9, true},
		{"-4", -4, true},
		{"abc", 0, false},
		{"", 0, false},
		{"10-20", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestHandle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Produit Été #1!", "produit-ete-1"},
		{"  Chaise   Longue  ", "chaise-longue"},
		{"Œuvre d'art", "oeuvre-dart"},
		{"T-shirt -- XL", "t-shirt-xl"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Handle(tt.in), tt.in)
	}

	long := Handle("a " + strings.Repeat("b", 150))
	assert.Len(t, long, MaxHandleLength)
	assert.True(t, strings.HasPrefix(long, "a-b"))
}

func TestVariantFromRow(t *testing.T) {
	n := New()

	v, ok := n.VariantFromRow(rawRow(types.SourceCSV,
		"Option1 Name", "Taille", "Option1 Value", "XL",
		"Variant SKU", "TS-XL", "Variant Price", "25", "Variant Inventory Qty", "4",
	), false)
	require.True(t, ok)
	require.NotNil(t, v.Option1)
	assert.Equal(t, types.Option{Name: "Taille", Value: "XL"}, *v.Option1)
	assert.Nil(t, v.Option2)
	assert.Equal(t, "TS-XL", types.StringValue(v.SKU))
	assert.Equal(t, 25.0, *v.Price)
	assert.Equal(t, 4, *v.InventoryQuantity)

	_, ok = n.VariantFromRow(rawRow(types.SourceCSV, "name", "x", "sku", "A", "price", "3"), false)
	assert.False(t, ok, "generic columns only count with fallback")

	v, ok = n.VariantFromRow(rawRow(types.SourceCSV, "name", "", "sku", "A", "price", "3"), true)
	require.True(t, ok)
	assert.Equal(t, "A", types.StringValue(v.SKU))
}
