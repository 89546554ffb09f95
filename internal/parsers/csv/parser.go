package csv

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/catalogsync/import-service/internal/parsers/charset"
	"github.com/catalogsync/import-service/internal/types"
	"github.com/rs/zerolog/log"
)

// Parser implements CSV parsing with encoding and delimiter detection
type Parser struct {
	options CsvParserOptions
}

// NewParser creates a new CSV parser with the given options
func NewParser(options CsvParserOptions) *Parser {
	if options.SkipRows < 1 {
		options.SkipRows = 1
	}
	return &Parser{
		options: options,
	}
}

// Parse parses CSV content into raw rows keyed by header cell.
// Empty and header-only inputs are batch-fatal; malformed rows are recorded
// in the result and excluded from Data.
func (p *Parser) Parse(content []byte) (*types.ParseResult, error) {
	if len(bytes.TrimSpace(charset.StripBOM(content))) == 0 {
		return nil, ErrEmptyInput
	}

	opts := p.options

	decoded, err := charset.Decode(content, opts.Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}

	if opts.Delimiter == "" {
		opts.Delimiter = DetectDelimiter(decoded)
	}
	if utf8.RuneCountInString(string(opts.Delimiter)) != 1 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDelimiter, opts.Delimiter)
	}
	delim, _ := utf8.DecodeRuneInString(string(opts.Delimiter))

	records := scanRecords(decoded, delim)

	headerIdx := -1
	for i, rec := range records {
		if !isEmptyRecord(rec) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, ErrEmptyInput
	}
	if records[headerIdx].err != "" {
		return nil, fmt.Errorf("invalid header on line %d: %s", records[headerIdx].line, records[headerIdx].err)
	}
	headers := normalizeHeaders(records[headerIdx].fields)

	result := &types.ParseResult{
		Kind:   types.SourceCSV,
		Data:   make([]types.RawRow, 0, len(records)),
		Errors: make([]types.RowError, 0),
	}

	start := headerIdx + opts.SkipRows
	for i := start; i < len(records); i++ {
		rec := records[i]
		if rec.err != "" {
			result.AddError(rec.line, rec.err)
			continue
		}
		if isEmptyRecord(rec) {
			continue
		}

		if len(rec.fields) > len(headers) && !trailingEmpty(rec.fields[len(headers):]) {
			result.AddError(rec.line, fmt.Sprintf("row has %d fields but header has %d", len(rec.fields), len(headers)))
			continue
		}

		row := types.NewRawRow(types.SourceCSV, rec.line)
		for col, name := range headers {
			value := ""
			if col < len(rec.fields) {
				value = strings.TrimSpace(rec.fields[col])
			}
			row.Set(name, value)
		}
		result.Data = append(result.Data, row)
	}

	if len(result.Data) == 0 && len(result.Errors) == 0 {
		return nil, ErrNoDataRows
	}

	log.Debug().
		Str("delimiter", string(opts.Delimiter)).
		Int("columns", len(headers)).
		Int("rows", len(result.Data)).
		Int("errors", len(result.Errors)).
		Msg("CSV parsed")

	return result, nil
}

// Parse parses content with the given options
func Parse(content []byte, options CsvParserOptions) (*types.ParseResult, error) {
	return NewParser(options).Parse(content)
}

// scanRecords splits content into records, honoring quoted fields.
// Quotes are doubled to escape; delimiters and newlines inside quotes are kept.
func scanRecords(content string, delim rune) []record {
	rs := []rune(content)
	n := len(rs)

	records := make([]record, 0, strings.Count(content, "\n")+1)
	fields := make([]string, 0, 16)
	var cur strings.Builder
	inQuotes := false
	line := 1
	recordLine := 1
	pending := false

	endRecord := func() {
		fields = append(fields, cur.String())
		records = append(records, record{line: recordLine, fields: fields})
		fields = make([]string, 0, len(fields))
		cur.Reset()
		pending = false
	}

	for i := 0; i < n; i++ {
		c := rs[i]

		if inQuotes {
			if c == '"' {
				if i+1 < n && rs[i+1] == '"' {
					cur.WriteRune('"')
					i++
				} else {
					inQuotes = false
				}
				continue
			}
			if c == '\n' {
				line++
			}
			cur.WriteRune(c)
			continue
		}

		switch c {
		case '"':
			pending = true
			if cur.Len() == 0 {
				inQuotes = true
			} else {
				cur.WriteRune(c)
			}
		case delim:
			pending = true
			fields = append(fields, cur.String())
			cur.Reset()
		case '\r':
			if i+1 < n && rs[i+1] == '\n' {
				continue
			}
			pending = true
			cur.WriteRune(c)
		case '\n':
			endRecord()
			line++
			recordLine = line
		default:
			pending = true
			cur.WriteRune(c)
		}
	}

	if inQuotes {
		records = append(records, record{line: recordLine, err: "unterminated quoted field"})
	} else if pending || cur.Len() > 0 || len(fields) > 0 {
		endRecord()
	}

	return records
}

// SplitCSVLine splits a single CSV line honoring quotes
func SplitCSVLine(line string, delimiter CsvDelimiter) []string {
	delim, _ := utf8.DecodeRuneInString(string(delimiter))
	records := scanRecords(line, delim)
	if len(records) == 0 {
		return []string{}
	}
	return records[0].fields
}

// normalizeHeaders trims header cells and makes them unique and non-empty
func normalizeHeaders(cells []string) []string {
	headers := make([]string, len(cells))
	seen := make(map[string]int, len(cells))
	for i, cell := range cells {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}
		headers[i] = name
	}
	return headers
}

func isEmptyRecord(rec record) bool {
	if rec.err != "" {
		return false
	}
	return trailingEmpty(rec.fields)
}

func trailingEmpty(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
