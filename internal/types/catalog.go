package types

import "strings"

// SourceKind identifies which format parser produced a raw row
type SourceKind string

const (
	SourceCSV     SourceKind = "csv"
	SourceJSON    SourceKind = "json"
	SourceExcel   SourceKind = "excel"
	SourceXML     SourceKind = "xml"
	SourceScraped SourceKind = "scraped"
)

// ProductStatus is the publication status of a catalog product
type ProductStatus string

const (
	StatusActive   ProductStatus = "active"
	StatusInactive ProductStatus = "inactive"
	StatusDraft    ProductStatus = "draft"
)

// Provenance tags attached to scraped products
const (
	TagStructuredData = "structured-data"
	TagCSSExtracted   = "css-extracted"
)

// RawRow is one record as it appeared in the source, before normalization.
// Keys keeps the source column order; Fields holds the values.
type RawRow struct {
	Kind   SourceKind        `json:"kind"`
	Row    int               `json:"row"`
	Keys   []string          `json:"keys"`
	Fields map[string]string `json:"fields"`
}

// NewRawRow creates an empty raw row of the given kind
func NewRawRow(kind SourceKind, row int) RawRow {
	return RawRow{
		Kind:   kind,
		Row:    row,
		Keys:   make([]string, 0, 8),
		Fields: make(map[string]string, 8),
	}
}

// Set stores a value, recording the key order on first insert
func (r *RawRow) Set(key, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	if _, ok := r.Fields[key]; !ok {
		r.Keys = append(r.Keys, key)
	}
	r.Fields[key] = value
}

// Get returns the value stored under key exactly as written
func (r RawRow) Get(key string) (string, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// IsBlank reports whether every cell of the row is empty
func (r RawRow) IsBlank() bool {
	for _, v := range r.Fields {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// RowError is a row-local failure: the row is excluded, the batch continues
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ParseResult is the output of every format parser
type ParseResult struct {
	Kind   SourceKind `json:"kind"`
	Data   []RawRow   `json:"data"`
	Errors []RowError `json:"errors"`
}

// AddError records a row-local parse error
func (p *ParseResult) AddError(row int, msg string) {
	p.Errors = append(p.Errors, RowError{Row: row, Error: msg})
}

// Option is a variant option name/value pair (e.g. Size / XL)
type Option struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Variant is a sub-SKU of a logical product
type Variant struct {
	Option1           *Option  `json:"option1,omitempty"`
	Option2           *Option  `json:"option2,omitempty"`
	Option3           *Option  `json:"option3,omitempty"`
	SKU               *string  `json:"sku,omitempty"`
	Price             *float64 `json:"price,omitempty"`
	CompareAtPrice    *float64 `json:"compare_at_price,omitempty"`
	InventoryQuantity *int     `json:"inventory_quantity,omitempty"`
	Image             *string  `json:"image,omitempty"`
}

// Options returns the non-nil options in order
func (v Variant) Options() []Option {
	out := make([]Option, 0, 3)
	for _, o := range []*Option{v.Option1, v.Option2, v.Option3} {
		if o != nil {
			out = append(out, *o)
		}
	}
	return out
}

// CoercionFlags records which numeric fields could not be parsed and were defaulted.
// A zero price with Price=false is an explicit zero; with Price=true it is a failed parse.
type CoercionFlags struct {
	Price         bool `json:"price,omitempty"`
	CostPrice     bool `json:"cost_price,omitempty"`
	StockQuantity bool `json:"stock_quantity,omitempty"`
}

// Any reports whether any field failed coercion
func (c CoercionFlags) Any() bool {
	return c.Price || c.CostPrice || c.StockQuantity
}

// CanonicalProduct is the normalized, source-independent product record
type CanonicalProduct struct {
	Name           string        `json:"name" jsonschema:"minLength=1,maxLength=200"`
	SKU            *string       `json:"sku,omitempty"`
	Price          float64       `json:"price" jsonschema:"minimum=0"`
	CostPrice      *float64      `json:"cost_price,omitempty" jsonschema:"minimum=0"`
	StockQuantity  *int          `json:"stock_quantity,omitempty" jsonschema:"minimum=0"`
	Category       *string       `json:"category,omitempty"`
	Description    *string       `json:"description,omitempty"`
	ImageURL       *string       `json:"image_url,omitempty"`
	ImageURLs      []string      `json:"image_urls,omitempty"`
	Status         ProductStatus `json:"status" jsonschema:"enum=active,enum=inactive,enum=draft"`
	Tags           []string      `json:"tags,omitempty"`
	SEOTitle       *string       `json:"seo_title,omitempty"`
	SEODescription *string       `json:"seo_description,omitempty"`
	Variants       []Variant     `json:"variants,omitempty"`

	Handle         string  `json:"handle,omitempty"`
	Vendor         *string `json:"vendor,omitempty"`
	Currency       *string `json:"currency,omitempty"`
	SupplierName   *string `json:"supplier_name,omitempty"`
	SourceURL      *string `json:"source_url,omitempty"`
	SourcePlatform *string `json:"source_platform,omitempty"`

	SourceRow int           `json:"source_row,omitempty"`
	Coercion  CoercionFlags `json:"coercion,omitempty"`
	// StatusDefaulted is set when the source had no status cell and Status is the default
	StatusDefaulted bool `json:"status_defaulted,omitempty"`
}

// ProfitMargin is derived from price and cost price; nil when either is missing or price is 0
func (p CanonicalProduct) ProfitMargin() *float64 {
	if p.CostPrice == nil || p.Price <= 0 {
		return nil
	}
	m := (p.Price - *p.CostPrice) / p.Price * 100
	return &m
}

// Images returns the primary image followed by the additional images, without duplicates
func (p CanonicalProduct) Images() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(p.ImageURLs)+1)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	if p.ImageURL != nil {
		add(*p.ImageURL)
	}
	for _, u := range p.ImageURLs {
		add(u)
	}
	return out
}

// CatalogProduct is an existing record of the tenant's catalog
type CatalogProduct struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	SKU           *string       `json:"sku,omitempty"`
	Price         float64       `json:"price"`
	CostPrice     *float64      `json:"cost_price,omitempty"`
	StockQuantity *int          `json:"stock_quantity,omitempty"`
	Category      *string       `json:"category,omitempty"`
	Status        ProductStatus `json:"status"`
}

// StringValue dereferences s, returning "" for nil
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NonEmpty returns a pointer to the trimmed string, or nil when it is empty
func NonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
