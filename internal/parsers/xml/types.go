package xml

import "errors"

var (
	// ErrInvalidXML is returned when the document is not well-formed
	ErrInvalidXML = errors.New("xml: invalid document")
	// ErrNoItems is returned when no item element was found
	ErrNoItems = errors.New("xml: no product items found")
)

// DefaultItemElements are the element names tried, in order of appearance,
// when ItemElement is not set: RSS 2.0 / Google Merchant, Atom, generic feeds.
var DefaultItemElements = []string{"item", "entry", "product"}

// XmlParserOptions represents XML parser options
type XmlParserOptions struct {
	// ItemElement is the local name of the element holding one product
	ItemElement string `json:"itemElement,omitempty"`
	// Encoding overrides the declared/detected document encoding
	Encoding string `json:"encoding,omitempty"`
}

// DefaultXmlOptions returns default XML parser options
func DefaultXmlOptions() XmlParserOptions {
	return XmlParserOptions{}
}
