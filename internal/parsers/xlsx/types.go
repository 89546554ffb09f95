package xlsx

import "errors"

var (
	// ErrUnreadableWorkbook is returned when the bytes are not a valid workbook
	ErrUnreadableWorkbook = errors.New("xlsx: unreadable workbook")
	// ErrNoSheet is returned when the workbook has no matching sheet
	ErrNoSheet = errors.New("xlsx: sheet not found")
	// ErrEmptySheet is returned when the selected sheet has no rows
	ErrEmptySheet = errors.New("xlsx: sheet is empty")
	// ErrNoDataRows is returned when the sheet only has a header row
	ErrNoDataRows = errors.New("xlsx: sheet contains a header but no data rows")
)

// XlsxParserOptions represents XLSX parser options
type XlsxParserOptions struct {
	// SheetName selects a sheet by name; takes precedence over SheetIndex
	SheetName string `json:"sheetName,omitempty"`
	// SheetIndex selects a sheet by 0-based position (default: first sheet)
	SheetIndex int `json:"sheetIndex,omitempty"`
}

// DefaultOptions returns default XLSX parser options
func DefaultOptions() XlsxParserOptions {
	return XlsxParserOptions{}
}
