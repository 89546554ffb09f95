package xlsx

import (
	"testing"

	"github.com/catalogsync/import-service/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, sheets map[string][][]interface{}, order ...string) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, values := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &values))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseFirstSheet(t *testing.T) {
	content := buildWorkbook(t, map[string][][]interface{}{
		"Produits": {
			{"Nom", "Prix", "Stock"},
			{"Lampe", 24.5, 3},
			{"", "", ""},
			{"Vase", "12", 10},
		},
		"Autre": {
			{"x"},
			{"y"},
		},
	}, "Produits", "Autre")

	result, err := NewParser(DefaultOptions()).Parse(content)
	require.NoError(t, err)
	assert.Equal(t, types.SourceExcel, result.Kind)
	require.Len(t, result.Data, 2)

	first := result.Data[0]
	assert.Equal(t, 2, first.Row)
	nom, _ := first.Get("Nom")
	prix, _ := first.Get("Prix")
	assert.Equal(t, "Lampe", nom)
	assert.Equal(t, "24.5", prix)
	assert.Equal(t, 4, result.Data[1].Row)
}

func TestParseSheetSelection(t *testing.T) {
	content := buildWorkbook(t, map[string][][]interface{}{
		"A": {{"name"}, {"from a"}},
		"B": {{"name"}, {"from b"}},
	}, "A", "B")

	result, err := NewParser(XlsxParserOptions{SheetName: "B"}).Parse(content)
	require.NoError(t, err)
	v, _ := result.Data[0].Get("name")
	assert.Equal(t, "from b", v)

	result, err = NewParser(XlsxParserOptions{SheetIndex: 1}).Parse(content)
	require.NoError(t, err)
	v, _ = result.Data[0].Get("name")
	assert.Equal(t, "from b", v)

	_, err = NewParser(XlsxParserOptions{SheetName: "C"}).Parse(content)
	assert.ErrorIs(t, err, ErrNoSheet)
}

func TestParseRowErrors(t *testing.T) {
	content := buildWorkbook(t, map[string][][]interface{}{
		"S": {
			{"name", "price"},
			{"ok", 1},
			{"too", 2, "many"},
		},
	}, "S")

	result, err := NewParser(DefaultOptions()).Parse(content)
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Row)
}

func TestParseBatchFatal(t *testing.T) {
	_, err := NewParser(DefaultOptions()).Parse([]byte("not a workbook"))
	assert.ErrorIs(t, err, ErrUnreadableWorkbook)

	headerOnly := buildWorkbook(t, map[string][][]interface{}{
		"S": {{"name", "price"}},
	}, "S")
	_, err = NewParser(DefaultOptions()).Parse(headerOnly)
	assert.ErrorIs(t, err, ErrNoDataRows)

	empty := buildWorkbook(t, map[string][][]interface{}{"S": {}}, "S")
	_, err = NewParser(DefaultOptions()).Parse(empty)
	assert.ErrorIs(t, err, ErrEmptySheet)
}
