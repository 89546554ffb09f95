package charset

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Encoding represents a text encoding
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingWindows1252 Encoding = "windows-1252"
	EncodingISO88591    Encoding = "iso-8859-1"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// windows1252Only are bytes that are printable in Windows-1252 but control codes in
// ISO-8859-1 (curly quotes, euro sign, oe ligature...). They tip detection to 1252.
var windows1252Only = map[byte]bool{
	0x80: true, 0x82: true, 0x84: true, 0x85: true, 0x8C: true,
	0x91: true, 0x92: true, 0x93: true, 0x94: true, 0x96: true,
	0x97: true, 0x9C: true,
}

// DetectEncoding guesses the encoding of a byte buffer.
// Spreadsheet exports from French-locale Excel are usually Windows-1252.
func DetectEncoding(data []byte) Encoding {
	if bytes.HasPrefix(data, utf8BOM) || utf8.Valid(data) {
		return EncodingUTF8
	}

	checkLen := len(data)
	if checkLen > 4096 {
		checkLen = 4096
	}
	for _, b := range data[:checkLen] {
		if windows1252Only[b] {
			return EncodingWindows1252
		}
	}

	// ISO-8859-1 is a subset of 1252 for printable bytes; prefer 1252 unless
	// the file contains C1 controls 1252 leaves undefined.
	for _, b := range data[:checkLen] {
		if b == 0x81 || b == 0x8D || b == 0x8F || b == 0x90 || b == 0x9D {
			return EncodingISO88591
		}
	}
	return EncodingWindows1252
}

// StripBOM removes a leading UTF-8 byte order mark
func StripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// Decode converts a byte buffer from the specified encoding to a UTF-8 string.
// An empty encoding means auto-detect.
func Decode(data []byte, enc Encoding) (string, error) {
	if enc == "" {
		enc = DetectEncoding(data)
	}

	switch enc {
	case EncodingUTF8:
		// Valid UTF-8 wins regardless of what the caller asked for
		if utf8.Valid(data) {
			return string(StripBOM(data)), nil
		}
		return decodeWith(charmap.Windows1252, data)
	case EncodingWindows1252:
		if utf8.Valid(data) {
			return string(StripBOM(data)), nil
		}
		return decodeWith(charmap.Windows1252, data)
	case EncodingISO88591:
		return decodeWith(charmap.ISO8859_1, data)
	default:
		return "", fmt.Errorf("unsupported encoding: %s", enc)
	}
}

func decodeWith(enc encoding.Encoding, data []byte) (string, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("failed to decode %d bytes: %w", len(data), err)
	}
	return string(out), nil
}

// ToUTF8Reader wraps a reader with a decoder to convert to UTF-8
func ToUTF8Reader(r io.Reader, enc Encoding) (io.Reader, error) {
	switch enc {
	case EncodingWindows1252:
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	case EncodingISO88591:
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case EncodingUTF8, "":
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", strings.ToLower(string(enc)))
	}
}
