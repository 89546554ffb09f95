package xml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/catalogsync/import-service/internal/parsers/charset"
	"github.com/catalogsync/import-service/internal/types"
	"github.com/rs/zerolog/log"
)

var declEncodingRe = regexp.MustCompile(`<\?xml[^?]*encoding=["']([^"']+)["'][^?]*\?>`)

// Parser reads product feeds where each product is one repeated element.
// Child elements become keys by local name, so "g:price" is read as "price";
// nested children are joined with dots and repeated children with commas.
type Parser struct {
	options XmlParserOptions
}

// NewParser creates a new XML feed parser
func NewParser(options XmlParserOptions) *Parser {
	return &Parser{
		options: options,
	}
}

// Parse parses an XML feed into raw rows
func (p *Parser) Parse(content []byte) (*types.ParseResult, error) {
	decoded, err := p.decodeContent(content)
	if err != nil {
		return nil, err
	}

	decoder := xml.NewDecoder(strings.NewReader(decoded))
	decoder.Entity = xml.HTMLEntity
	// content is already UTF-8; ignore the declared charset
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	itemNames := DefaultItemElements
	if p.options.ItemElement != "" {
		itemNames = []string{p.options.ItemElement}
	}
	locked := ""

	result := &types.ParseResult{
		Kind:   types.SourceXML,
		Data:   make([]types.RawRow, 0),
		Errors: make([]types.RowError, 0),
	}
	index := 0

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		name := start.Name.Local
		if locked == "" {
			for _, candidate := range itemNames {
				if name == candidate {
					locked = name
					break
				}
			}
		}
		if name != locked {
			continue
		}

		index++
		row := types.NewRawRow(types.SourceXML, index)
		for _, attr := range start.Attr {
			appendValue(&row, attr.Name.Local, attr.Value)
		}
		if _, err := readElement(decoder, &row, ""); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrInvalidXML, index, err)
		}

		if row.IsBlank() {
			result.AddError(index, "item has no content")
			continue
		}
		result.Data = append(result.Data, row)
	}

	if index == 0 {
		return nil, ErrNoItems
	}

	log.Debug().
		Str("item_element", locked).
		Int("rows", len(result.Data)).
		Int("errors", len(result.Errors)).
		Msg("XML feed parsed")

	return result, nil
}

// Parse parses content with the given options
func Parse(content []byte, options XmlParserOptions) (*types.ParseResult, error) {
	return NewParser(options).Parse(content)
}

// readElement consumes tokens until the end of the current element, storing
// leaf text under prefix-qualified keys. It returns the element's own text.
func readElement(decoder *xml.Decoder, row *types.RawRow, prefix string) (string, error) {
	var text strings.Builder
	for {
		tok, err := decoder.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			key := prefix + t.Name.Local
			for _, attr := range t.Attr {
				appendValue(row, key+"."+attr.Name.Local, attr.Value)
			}
			childText, err := readElement(decoder, row, key+".")
			if err != nil {
				return "", err
			}
			childText = strings.TrimSpace(childText)
			if childText != "" {
				appendValue(row, key, childText)
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			return text.String(), nil
		}
	}
}

// appendValue joins repeated keys with commas (e.g. additional_image_link)
func appendValue(row *types.RawRow, key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if existing, ok := row.Get(key); ok && existing != "" {
		row.Set(key, existing+","+value)
		return
	}
	row.Set(key, value)
}

// decodeContent converts the document to UTF-8 based on its BOM, declaration or content
func (p *Parser) decodeContent(content []byte) (string, error) {
	enc := charset.Encoding(strings.ToLower(p.options.Encoding))
	if enc == "" {
		enc = detectEncodingFromDeclaration(content)
	}

	decoded, err := charset.Decode(content, enc)
	if err != nil {
		// unknown declared charsets fall back to auto-detection
		log.Debug().Err(err).Str("encoding", string(enc)).Msg("Falling back to detected encoding")
		return charset.Decode(content, "")
	}
	return decoded, nil
}

func detectEncodingFromDeclaration(content []byte) charset.Encoding {
	head := content
	if len(head) > 200 {
		head = head[:200]
	}
	match := declEncodingRe.FindSubmatch(head)
	if len(match) < 2 {
		return ""
	}
	switch strings.ToLower(string(match[1])) {
	case "utf-8", "utf8":
		return charset.EncodingUTF8
	case "windows-1252", "cp1252":
		return charset.EncodingWindows1252
	case "iso-8859-1", "latin1", "iso-8859-15":
		return charset.EncodingISO88591
	default:
		return charset.Encoding(strings.ToLower(string(match[1])))
	}
}
