// Package parsers selects a format parser for an input file and runs it.
package parsers

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/catalogsync/import-service/internal/parsers/charset"
	"github.com/catalogsync/import-service/internal/parsers/csv"
	"github.com/catalogsync/import-service/internal/parsers/jsonfeed"
	"github.com/catalogsync/import-service/internal/parsers/xlsx"
	"github.com/catalogsync/import-service/internal/parsers/xml"
	"github.com/catalogsync/import-service/internal/scraper"
	"github.com/catalogsync/import-service/internal/types"
)

// Format identifies an input file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
	FormatXML  Format = "xml"
	FormatHTML Format = "html"
	FormatZIP  Format = "zip"
)

var zipMagic = []byte("PK\x03\x04")

// Options bundles per-format parser options
type Options struct {
	CSV  csv.CsvParserOptions   `json:"csv"`
	JSON jsonfeed.Options       `json:"json"`
	XLSX xlsx.XlsxParserOptions `json:"xlsx"`
	XML  xml.XmlParserOptions   `json:"xml"`
	// SourceURL is the page address for HTML input; it supplies supplier_name
	SourceURL string `json:"sourceUrl,omitempty"`
}

// DefaultOptions returns default options for every format
func DefaultOptions() Options {
	return Options{
		CSV:  csv.DefaultOptions(),
		XLSX: xlsx.DefaultOptions(),
		XML:  xml.DefaultXmlOptions(),
	}
}

// ParseFormat maps a user-supplied format name to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", "tsv", "txt":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "xlsx", "excel", "xlsm":
		return FormatXLSX, nil
	case "xml", "rss", "atom":
		return FormatXML, nil
	case "html", "htm":
		return FormatHTML, nil
	case "zip":
		return FormatZIP, nil
	default:
		return "", fmt.Errorf("unsupported format: %q", s)
	}
}

// DetectFormat picks a format from the file extension, then from the content
func DetectFormat(filename string, content []byte) Format {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."); ext != "" {
		if f, err := ParseFormat(ext); err == nil {
			return f
		}
	}
	return sniff(content)
}

func sniff(content []byte) Format {
	if bytes.HasPrefix(content, zipMagic) {
		// xlsx is a zip container; the central directory lists the workbook part
		if bytes.Contains(content, []byte("xl/workbook.xml")) {
			return FormatXLSX
		}
		return FormatZIP
	}

	head := bytes.TrimSpace(charset.StripBOM(content))
	if len(head) == 0 {
		return FormatCSV
	}
	switch head[0] {
	case '{', '[':
		return FormatJSON
	case '<':
		lower := bytes.ToLower(head[:min(len(head), 512)])
		if bytes.Contains(lower, []byte("<!doctype html")) || bytes.Contains(lower, []byte("<html")) {
			return FormatHTML
		}
		return FormatXML
	}
	return FormatCSV
}

// Parse runs the parser for format over content. Batch-fatal errors are
// returned as-is so callers can match them with errors.Is.
func Parse(format Format, content []byte, opts Options) (*types.ParseResult, error) {
	switch format {
	case FormatCSV:
		return csv.Parse(content, opts.CSV)
	case FormatJSON:
		return jsonfeed.Parse(content, opts.JSON)
	case FormatXLSX:
		return xlsx.NewParser(opts.XLSX).Parse(content)
	case FormatXML:
		return xml.Parse(content, opts.XML)
	case FormatHTML:
		return scraper.Extract(content, opts.SourceURL)
	case FormatZIP:
		return nil, fmt.Errorf("zip archives must be expanded before parsing")
	default:
		return nil, fmt.Errorf("unsupported format: %q", format)
	}
}

// ParseFile detects the format of a named file and parses it
func ParseFile(filename string, content []byte, opts Options) (*types.ParseResult, Format, error) {
	format := DetectFormat(filename, content)
	result, err := Parse(format, content, opts)
	return result, format, err
}
