// Package jsonfeed parses JSON product feeds: a single object or an array of objects.
package jsonfeed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/catalogsync/import-service/internal/parsers/charset"
	"github.com/catalogsync/import-service/internal/types"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidJSON is returned when the input is not well-formed JSON
	ErrInvalidJSON = errors.New("jsonfeed: invalid JSON")
	// ErrUnsupportedRoot is returned when the root is neither an object nor an array
	ErrUnsupportedRoot = errors.New("jsonfeed: root must be an object or an array of objects")
	// ErrRecordsPathNotFound is returned when the configured records path is absent
	ErrRecordsPathNotFound = errors.New("jsonfeed: records path not found")
)

// Options configures the JSON feed parser
type Options struct {
	// RecordsPath is a dot-separated path to the product array inside a wrapper
	// object (e.g. "data.products"). Empty means the root holds the records.
	RecordsPath string `json:"recordsPath,omitempty"`
}

// Parser flattens JSON records into raw rows.
// Nested objects become dotted keys, arrays of scalars are joined with commas.
type Parser struct {
	options Options
}

// NewParser creates a new JSON feed parser
func NewParser(options Options) *Parser {
	return &Parser{options: options}
}

// Parse parses JSON content. Invalid JSON fails the whole input; array
// elements that are not objects are recorded as row errors.
func (p *Parser) Parse(content []byte) (*types.ParseResult, error) {
	content = bytes.TrimSpace(charset.StripBOM(content))
	if !json.Valid(content) {
		return nil, ErrInvalidJSON
	}

	var keys []string
	if p.options.RecordsPath != "" {
		keys = strings.Split(p.options.RecordsPath, ".")
	}

	value, dataType, _, err := jsonparser.Get(content, keys...)
	if err != nil {
		if errors.Is(err, jsonparser.KeyPathNotFoundError) {
			return nil, fmt.Errorf("%w: %s", ErrRecordsPathNotFound, p.options.RecordsPath)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	result := &types.ParseResult{
		Kind:   types.SourceJSON,
		Data:   make([]types.RawRow, 0),
		Errors: make([]types.RowError, 0),
	}

	switch dataType {
	case jsonparser.Object:
		row := types.NewRawRow(types.SourceJSON, 1)
		if err := flattenObject(&row, "", value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		result.Data = append(result.Data, row)
	case jsonparser.Array:
		index := 0
		_, err := jsonparser.ArrayEach(value, func(elem []byte, elemType jsonparser.ValueType, _ int, elemErr error) {
			index++
			if elemErr != nil {
				result.AddError(index, elemErr.Error())
				return
			}
			if elemType != jsonparser.Object {
				result.AddError(index, fmt.Sprintf("expected an object, got %s", elemType))
				return
			}
			row := types.NewRawRow(types.SourceJSON, index)
			if err := flattenObject(&row, "", elem); err != nil {
				result.AddError(index, err.Error())
				return
			}
			result.Data = append(result.Data, row)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
	default:
		return nil, fmt.Errorf("%w, got %s", ErrUnsupportedRoot, dataType)
	}

	log.Debug().
		Int("rows", len(result.Data)).
		Int("errors", len(result.Errors)).
		Msg("JSON feed parsed")

	return result, nil
}

// Parse parses content with the given options
func Parse(content []byte, options Options) (*types.ParseResult, error) {
	return NewParser(options).Parse(content)
}

func flattenObject(row *types.RawRow, prefix string, data []byte) error {
	return jsonparser.ObjectEach(data, func(key []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		return flattenValue(row, prefix+name, value, dataType)
	})
}

func flattenValue(row *types.RawRow, key string, value []byte, dataType jsonparser.ValueType) error {
	switch dataType {
	case jsonparser.Object:
		return flattenObject(row, key+".", value)
	case jsonparser.Array:
		return flattenArray(row, key, value)
	default:
		s, err := scalarString(value, dataType)
		if err != nil {
			return err
		}
		row.Set(key, s)
		return nil
	}
}

// flattenArray joins scalar arrays with commas. Arrays of objects are flattened
// per index ("offers.0.price") and the first element is also exposed without
// the index so "offers.price" resolves.
func flattenArray(row *types.RawRow, key string, value []byte) error {
	scalars := make([]string, 0)
	var firstErr error
	i := 0
	_, err := jsonparser.ArrayEach(value, func(elem []byte, elemType jsonparser.ValueType, _ int, _ error) {
		defer func() { i++ }()
		if firstErr != nil {
			return
		}
		switch elemType {
		case jsonparser.Object:
			if i == 0 {
				firstErr = flattenObject(row, key+".", elem)
				if firstErr != nil {
					return
				}
			}
			firstErr = flattenObject(row, key+"."+strconv.Itoa(i)+".", elem)
		case jsonparser.Array:
			firstErr = flattenArray(row, key+"."+strconv.Itoa(i), elem)
		default:
			s, err := scalarString(elem, elemType)
			if err != nil {
				firstErr = err
				return
			}
			if s != "" {
				scalars = append(scalars, s)
			}
		}
	})
	if err != nil {
		return err
	}
	if firstErr != nil {
		return firstErr
	}
	if len(scalars) > 0 || i == 0 {
		row.Set(key, strings.Join(scalars, ","))
	}
	return nil
}

func scalarString(value []byte, dataType jsonparser.ValueType) (string, error) {
	switch dataType {
	case jsonparser.String:
		return jsonparser.ParseString(value)
	case jsonparser.Null:
		return "", nil
	default:
		// numbers and booleans keep their literal text
		return string(value), nil
	}
}
