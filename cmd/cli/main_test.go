package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogsync/import-service/internal/pipeline"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	stdout = &buf
	t.Cleanup(func() { stdout = os.Stdout })

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDecodeProducts(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "array", input: `[{"name": "Bol", "price": 3}]`, want: []string{"Bol"}},
		{name: "build result", input: `{"products": [{"name": "Tasse", "price": 4}], "errors": []}`, want: []string{"Tasse"}},
		{
			name: "preview batch",
			input: `{"files": [{"filename": "a.csv", "result": {"preview": {
				"new": [{"name": "Lampe", "price": 10}],
				"updates": [{"product": {"name": "Vase", "price": 6}, "existingProduct": {"id": "1"}, "changes": []}]
			}}}]}`,
			want: []string{"Lampe", "Vase"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products, err := decodeProducts([]byte(tt.input))
			require.NoError(t, err)
			names := make([]string, len(products))
			for i, p := range products {
				names[i] = p.Name
			}
			assert.Equal(t, tt.want, names)
		})
	}

	_, err := decodeProducts([]byte(`{"files": []}`))
	assert.Error(t, err)
}

func TestPreviewCommand_JSON(t *testing.T) {
	feed := writeFile(t, "feed.csv", "name,sku,price\nChaise,CH-1,12\nTabouret,TB-1,30\n")
	snapshot := writeFile(t, "catalog.json", `[{"id": "p1", "name": "Chaise", "sku": "CH-1", "price": 10}]`)

	out, err := runCLI(t, "preview", feed, "--catalog", snapshot, "--output", "json")
	require.NoError(t, err)

	var batch pipeline.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	require.Len(t, batch.Files, 1)
	sum := batch.Files[0].Result.Summary
	assert.Equal(t, 1, sum.New)
	assert.Equal(t, 1, sum.Updates)
}

func TestExportCommand_Stdout(t *testing.T) {
	products := writeFile(t, "products.json", `[{"name": "Produit Été #1!", "price": 19.99, "status": "active"}]`)

	out, err := runCLI(t, "export", products, "--output", "table")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimPrefix(out, "\uFEFF"), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[0], "Handle,Title,Body HTML"))
	assert.True(t, strings.HasPrefix(lines[1], "produit-ete-1,Produit Été #1!,"))
}
