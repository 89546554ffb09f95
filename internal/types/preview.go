package types

// ConflictType describes why an incoming product could not be matched unambiguously
type ConflictType string

const (
	// ConflictTypeSKU: the SKU matches one catalog record and the name matches another
	ConflictTypeSKU ConflictType = "sku"
)

// ProductUpdate is an incoming product matched to an existing record with field changes
type ProductUpdate struct {
	Product  CanonicalProduct `json:"product"`
	Existing CatalogProduct   `json:"existingProduct"`
	Changes  []string         `json:"changes"`
}

// ProductConflict is an incoming product whose SKU and name resolve to different records.
// Existing is the SKU-matched record; NameMatch is the record the name pointed to.
type ProductConflict struct {
	Product      CanonicalProduct `json:"product"`
	Existing     CatalogProduct   `json:"existingProduct"`
	NameMatch    CatalogProduct   `json:"nameMatch"`
	ConflictType ConflictType     `json:"conflictType"`
}

// ImportError is a row-local failure surfaced to the reviewer
type ImportError struct {
	Row     int               `json:"row"`
	Product *CanonicalProduct `json:"product,omitempty"`
	Error   string            `json:"error"`
}

// ImportWarning is a non-fatal remark about a row (e.g. a numeric cell defaulted to 0)
type ImportWarning struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ImportPreview is the classified result of one import run, reviewed before commit
type ImportPreview struct {
	New       []CanonicalProduct `json:"new"`
	Updates   []ProductUpdate    `json:"updates"`
	Conflicts []ProductConflict  `json:"conflicts"`
	Errors    []ImportError      `json:"errors"`
	Warnings  []ImportWarning    `json:"warnings,omitempty"`
	Unchanged int                `json:"unchanged"`
}

// NewImportPreview returns a preview with non-nil lists so it serializes as []
func NewImportPreview() *ImportPreview {
	return &ImportPreview{
		New:       make([]CanonicalProduct, 0),
		Updates:   make([]ProductUpdate, 0),
		Conflicts: make([]ProductConflict, 0),
		Errors:    make([]ImportError, 0),
	}
}

// AddError records a row-local error
func (p *ImportPreview) AddError(row int, product *CanonicalProduct, msg string) {
	p.Errors = append(p.Errors, ImportError{Row: row, Product: product, Error: msg})
}

// PreviewSummary holds the per-class counts of a preview
type PreviewSummary struct {
	New       int `json:"new"`
	Updates   int `json:"updates"`
	Conflicts int `json:"conflicts"`
	Errors    int `json:"errors"`
	Unchanged int `json:"unchanged"`
}

// Summary returns the class counts
func (p *ImportPreview) Summary() PreviewSummary {
	return PreviewSummary{
		New:       len(p.New),
		Updates:   len(p.Updates),
		Conflicts: len(p.Conflicts),
		Errors:    len(p.Errors),
		Unchanged: p.Unchanged,
	}
}

// Total is the number of products accounted for by the preview
func (s PreviewSummary) Total() int {
	return s.New + s.Updates + s.Conflicts + s.Errors + s.Unchanged
}
