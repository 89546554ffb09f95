// Package validation checks canonical products against the catalog's field rules.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/catalogsync/import-service/internal/types"
	"github.com/go-playground/validator/v10"
)

const (
	MaxNameLength        = 200
	MaxDescriptionLength = 8000
)

// Result reports every violated rule. Warnings never make a product invalid.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

// productRules mirrors the validated subset of CanonicalProduct
type productRules struct {
	Name          string         `validate:"required,max=200"`
	Price         float64        `validate:"gte=0"`
	CostPrice     *float64       `validate:"omitempty,gte=0"`
	StockQuantity *int           `validate:"omitempty,gte=0"`
	Description   string         `validate:"max=8000"`
	Variants      []variantRules `validate:"dive"`
}

type variantRules struct {
	Price             *float64 `validate:"omitempty,gte=0"`
	CompareAtPrice    *float64 `validate:"omitempty,gte=0"`
	InventoryQuantity *int     `validate:"omitempty,gte=0"`
}

// Validator checks products without mutating them
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator
func New() *Validator {
	return &Validator{
		validate: validator.New(),
	}
}

// Validate runs all rules independently and collects every failure
func (v *Validator) Validate(p types.CanonicalProduct) Result {
	rules := productRules{
		Name:          strings.TrimSpace(p.Name),
		Price:         p.Price,
		CostPrice:     p.CostPrice,
		StockQuantity: p.StockQuantity,
		Description:   types.StringValue(p.Description),
		Variants:      make([]variantRules, len(p.Variants)),
	}
	for i, variant := range p.Variants {
		rules.Variants[i] = variantRules{
			Price:             variant.Price,
			CompareAtPrice:    variant.CompareAtPrice,
			InventoryQuantity: variant.InventoryQuantity,
		}
	}

	result := Result{Valid: true, Errors: make([]string, 0)}

	if err := v.validate.Struct(rules); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			result.Valid = false
			result.Errors = append(result.Errors, err.Error())
			return result
		}
		for _, fe := range fieldErrs {
			result.Errors = append(result.Errors, message(fe))
		}
		result.Valid = false
	}

	result.Warnings = coercionWarnings(p.Coercion)
	return result
}

// message renders a field error the way it is shown in the preview error table
func message(fe validator.FieldError) string {
	field := fieldLabel(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s (got %v)", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

var fieldLabels = map[string]string{
	"Name":              "name",
	"Price":             "price",
	"CostPrice":         "cost_price",
	"StockQuantity":     "stock_quantity",
	"Description":       "description",
	"CompareAtPrice":    "compare_at_price",
	"InventoryQuantity": "inventory_quantity",
}

// fieldLabel turns "productRules.Variants[1].Price" into "variants[1].price"
func fieldLabel(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, part := range parts {
		if strings.HasPrefix(part, "Variants[") {
			parts[i] = "variants" + strings.TrimPrefix(part, "Variants")
			continue
		}
		if label, ok := fieldLabels[part]; ok {
			parts[i] = label
		}
	}
	return strings.Join(parts, ".")
}

func coercionWarnings(c types.CoercionFlags) []string {
	if !c.Any() {
		return nil
	}
	warnings := make([]string, 0, 3)
	if c.Price {
		warnings = append(warnings, "price could not be parsed and was set to 0")
	}
	if c.CostPrice {
		warnings = append(warnings, "cost_price could not be parsed and was set to 0")
	}
	if c.StockQuantity {
		warnings = append(warnings, "stock_quantity could not be parsed and was set to 0")
	}
	return warnings
}
