package xlsx

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/catalogsync/import-service/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// Parser is an XLSX parser implementation
type Parser struct {
	options XlsxParserOptions
}

// NewParser creates a new XLSX parser
func NewParser(options XlsxParserOptions) *Parser {
	return &Parser{
		options: options,
	}
}

// Parse reads the selected sheet into raw rows keyed by header cell text.
// Row numbers are spreadsheet rows: the first data row is row 2.
func (p *Parser) Parse(content []byte) (*types.ParseResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	defer f.Close()

	sheetName, err := p.selectSheet(f)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %q: %w", sheetName, err)
	}

	// Excel keeps formatted-but-empty rows around; leading ones carry no header
	for len(rows) > 0 && isEmptyRow(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySheet, sheetName)
	}

	headers := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		headers[i] = name
	}

	result := &types.ParseResult{
		Kind:   types.SourceExcel,
		Data:   make([]types.RawRow, 0, len(rows)-1),
		Errors: make([]types.RowError, 0),
	}

	for i := 1; i < len(rows); i++ {
		cells := rows[i]
		rowNumber := i + 1

		if isEmptyRow(cells) {
			continue
		}

		if len(cells) > len(headers) && !isEmptyRow(cells[len(headers):]) {
			result.AddError(rowNumber, fmt.Sprintf("row has %d cells but header has %d", len(cells), len(headers)))
			continue
		}

		row := types.NewRawRow(types.SourceExcel, rowNumber)
		for col, name := range headers {
			value := ""
			if col < len(cells) {
				value = strings.TrimSpace(cells[col])
			}
			row.Set(name, value)
		}
		result.Data = append(result.Data, row)
	}

	if len(result.Data) == 0 && len(result.Errors) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDataRows, sheetName)
	}

	log.Debug().
		Str("sheet", sheetName).
		Int("rows", len(result.Data)).
		Int("errors", len(result.Errors)).
		Msg("Excel sheet parsed")

	return result, nil
}

func (p *Parser) selectSheet(f *excelize.File) (string, error) {
	sheetList := f.GetSheetList()
	if len(sheetList) == 0 {
		return "", fmt.Errorf("%w: workbook has no sheets", ErrNoSheet)
	}

	if p.options.SheetName != "" {
		for _, name := range sheetList {
			if name == p.options.SheetName {
				return name, nil
			}
		}
		return "", fmt.Errorf("%w: %q (available: %s)", ErrNoSheet, p.options.SheetName, strings.Join(sheetList, ", "))
	}

	if p.options.SheetIndex < 0 || p.options.SheetIndex >= len(sheetList) {
		return "", fmt.Errorf("%w: index %d, workbook has %d sheets", ErrNoSheet, p.options.SheetIndex, len(sheetList))
	}
	return sheetList[p.options.SheetIndex], nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
