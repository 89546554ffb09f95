package csv

import (
	"errors"

	"github.com/catalogsync/import-service/internal/parsers/charset"
)

// CsvDelimiter represents supported CSV delimiters
type CsvDelimiter string

const (
	DelimiterComma     CsvDelimiter = ","
	DelimiterSemicolon CsvDelimiter = ";"
	DelimiterTab       CsvDelimiter = "\t"
	DelimiterPipe      CsvDelimiter = "|"
)

var (
	// ErrEmptyInput is returned when the file has no content at all
	ErrEmptyInput = errors.New("csv: file is empty")
	// ErrNoDataRows is returned when the file has a header but nothing to import
	ErrNoDataRows = errors.New("csv: file contains a header but no data rows")
	// ErrInvalidDelimiter is returned for a multi-character delimiter option
	ErrInvalidDelimiter = errors.New("csv: delimiter must be a single character")
)

// CsvParserOptions represents CSV parser options
type CsvParserOptions struct {
	// Delimiter is auto-detected when empty
	Delimiter CsvDelimiter `json:"delimiter,omitempty"`
	// Encoding is auto-detected when empty
	Encoding charset.Encoding `json:"encoding,omitempty"`
	// SkipRows counts the header: 1 reads data right after it, N skips N-1 banner rows
	SkipRows int `json:"skipRows,omitempty"`
}

// DefaultOptions returns default CSV parser options
func DefaultOptions() CsvParserOptions {
	return CsvParserOptions{
		SkipRows: 1,
	}
}

// record is one logical CSV record, possibly spanning several physical lines
type record struct {
	line   int
	fields []string
	err    string
}
