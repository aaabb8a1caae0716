package ledger

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
)

const (
	maxNameLen        = 100
	maxSupplierLen    = 100
	maxDescriptionLen = 500
	maxLocationLen    = 100
	maxSKULen         = 50
)

// maxPrice is the first value a NUMERIC(18, 2) column cannot hold.
var maxPrice = decimal.New(1, 16)

func normalize(f models.StockItemFields) models.StockItemFields {
	f.Name = strings.TrimSpace(f.Name)
	f.Supplier = strings.TrimSpace(f.Supplier)
	f.Description = strings.TrimSpace(f.Description)
	f.Location = strings.TrimSpace(f.Location)
	if f.SKU != nil {
		sku := strings.TrimSpace(*f.SKU)
		if sku == "" {
			f.SKU = nil
		} else {
			f.SKU = &sku
		}
	}
	return f
}

// Validate checks the field-level invariants of a stock item. It reports
// the first violation found.
func Validate(f models.StockItemFields) error {
	switch {
	case f.Name == "":
		return invalid("name", "is required")
	case utf8.RuneCountInString(f.Name) > maxNameLen:
		return invalid("name", "must be at most 100 characters")
	case f.CategoryID <= 0:
		return invalid("category_id", "is required")
	case f.Quantity < 0:
		return invalid("quantity", "must not be negative")
	case f.Price.IsNegative():
		return invalid("price", "must not be negative")
	case !f.Price.Equal(f.Price.Round(2)):
		return invalid("price", "must have at most 2 decimal places")
	case f.Price.GreaterThanOrEqual(maxPrice):
		return invalid("price", "is too large")
	case f.Supplier == "":
		return invalid("supplier", "is required")
	case utf8.RuneCountInString(f.Supplier) > maxSupplierLen:
		return invalid("supplier", "must be at most 100 characters")
	case utf8.RuneCountInString(f.Description) > maxDescriptionLen:
		return invalid("description", "must be at most 500 characters")
	case utf8.RuneCountInString(f.Location) > maxLocationLen:
		return invalid("location", "must be at most 100 characters")
	case f.SKU != nil && utf8.RuneCountInString(*f.SKU) > maxSKULen:
		return invalid("sku", "must be at most 50 characters")
	case f.MinimumQuantity != nil && *f.MinimumQuantity < 0:
		return invalid("minimum_quantity", "must not be negative")
	case f.ReorderPoint != nil && *f.ReorderPoint < 0:
		return invalid("reorder_point", "must not be negative")
	}
	return nil
}

func invalid(field, msg string) error {
	return &database.ValidationError{Field: field, Message: msg}
}
