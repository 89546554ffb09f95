package grouping

import (
	"testing"

	"github.com/catalogsync/import-service/internal/normalize"
	"github.com/catalogsync/import-service/internal/parsers/csv"
	"github.com/catalogsync/import-service/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, content string) []types.RawRow {
	t.Helper()
	result, err := csv.Parse([]byte(content), csv.DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	return result.Data
}

func names(t *testing.T, g *Grouper, groups [][]types.RawRow) []string {
	t.Helper()
	out := make([]string, 0, len(groups))
	for _, group := range groups {
		p, err := g.Assemble(group)
		require.NoError(t, err)
		out = append(out, p.Name)
	}
	return out
}

func TestGroupByPosition(t *testing.T) {
	rows := parse(t, "name,sku,price,option1_name,option1_value\n"+
		",ORPHAN,1,,\n"+
		"T-shirt,TS-S,20,Taille,S\n"+
		",TS-M,21,Taille,M\n"+
		",TS-L,22,Taille,L\n"+
		"Casquette,CQ,15,,\n")

	g := New(normalize.New())
	groups := g.Group(rows)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 3)
	assert.Len(t, groups[1], 1)
	assert.Equal(t, []string{"T-shirt", "Casquette"}, names(t, g, groups))

	tshirt, err := g.Assemble(groups[0])
	require.NoError(t, err)
	assert.Equal(t, "TS-S", types.StringValue(tshirt.SKU))
	assert.Equal(t, 20.0, tshirt.Price)
	require.Len(t, tshirt.Variants, 3)
	assert.Equal(t, "M", tshirt.Variants[1].Option1.Value)
	assert.Equal(t, 22.0, *tshirt.Variants[2].Price)

	casquette, err := g.Assemble(groups[1])
	require.NoError(t, err)
	assert.Empty(t, casquette.Variants, "generic sku/price columns on a single row are not a variant")
}

func TestGroupByHandle(t *testing.T) {
	rows := parse(t, "Handle,Title,Option1 Name,Option1 Value,Variant SKU,Variant Price,Image Src\n"+
		"pull,,Taille,M,P-M,45,https://cdn.test/pull-2.jpg\n"+
		"pull,Pull laine,Taille,S,P-S,40,https://cdn.test/pull-1.jpg\n"+
		"bonnet,Bonnet,,,B-1,12,\n"+
		"pull,,,,,,https://cdn.test/pull-3.jpg\n")

	g := New(normalize.New())
	groups := g.Group(rows)
	require.Len(t, groups, 2)

	pull, err := g.Assemble(groups[0])
	require.NoError(t, err)
	assert.Equal(t, "Pull laine", pull.Name)
	assert.Equal(t, "pull", pull.Handle)
	assert.Equal(t, 40.0, pull.Price)
	require.Len(t, pull.Variants, 2)
	assert.Equal(t, "P-S", types.StringValue(pull.Variants[0].SKU))
	assert.Equal(t, "P-M", types.StringValue(pull.Variants[1].SKU))
	assert.Equal(t, "https://cdn.test/pull-1.jpg", types.StringValue(pull.ImageURL))
	assert.Equal(t, []string{"https://cdn.test/pull-2.jpg", "https://cdn.test/pull-3.jpg"}, pull.ImageURLs)

	bonnet, err := g.Assemble(groups[1])
	require.NoError(t, err)
	assert.Equal(t, "Bonnet", bonnet.Name)
	require.Len(t, bonnet.Variants, 1)
	assert.Equal(t, "B-1", types.StringValue(bonnet.Variants[0].SKU))
}

func TestGroupByParentSKU(t *testing.T) {
	rows := parse(t, "sku,parent_sku,name,price\n"+
		"MUG,,Mug,9\n"+
		"PLATE,,Assiette,12\n"+
		"MUG-RED,MUG,,10\n")

	g := New(normalize.New())
	groups := g.Group(rows)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2, "child row joins its parent even when not contiguous")
	assert.Equal(t, []string{"Mug", "Assiette"}, names(t, g, groups))
}

func TestGroupEmpty(t *testing.T) {
	g := New(normalize.New())
	assert.Empty(t, g.Group(nil))

	_, err := g.Assemble(nil)
	assert.Error(t, err)
}

func TestGroupAllOrphans(t *testing.T) {
	rows := parse(t, "name,sku\n,A\n,B\n")
	assert.Empty(t, New(normalize.New()).Group(rows))
}

func TestGroupByHandle_BlankKeyRows(t *testing.T) {
	tests := []struct {
		name  string
		csv   string
		want  []string
		sizes []int
	}{
		{
			name: "titled row without handle is its own product",
			csv: "Handle,Title,Variant SKU\n" +
				"a,Alpha,A-1\n" +
				",Beta,B-1\n",
			want:  []string{"Alpha", "Beta"},
			sizes: []int{1, 1},
		},
		{
			name: "untitled row without handle continues the previous product",
			csv: "Handle,Title,Image Src\n" +
				",日本の茶碗,https://cdn.test/1.jpg\n" +
				",,https://cdn.test/2.jpg\n" +
				"b,Bravo,\n" +
				",,https://cdn.test/3.jpg\n",
			want:  []string{"日本の茶碗", "Bravo"},
			sizes: []int{2, 2},
		},
		{
			name: "untitled rows before any product are dropped",
			csv: "Handle,Title,Image Src\n" +
				",,https://cdn.test/0.jpg\n" +
				"a,Alpha,\n",
			want:  []string{"Alpha"},
			sizes: []int{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(normalize.New())
			groups := g.Group(parse(t, tt.csv))
			require.Len(t, groups, len(tt.want))
			assert.Equal(t, tt.want, names(t, g, groups))
			for i, n := range tt.sizes {
				assert.Len(t, groups[i], n)
			}
		})
	}
}
