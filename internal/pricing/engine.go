// Package pricing turns requested (product, quantity) pairs into priced order
// lines. All money is carried as decimal.Decimal; amounts handed to the
// payment processor are converted to integer minor units.
package pricing

import (
	"context"

	"storefront/internal/apperrors"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the number of decimal places of the checkout currency.
const MinorUnitExponent = 2

// Catalog resolves a product's current price.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*models.Product, error)
}

// LineRequest is one requested line before pricing.
type LineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// Engine prices order lines against the catalog. It never writes anything.
type Engine struct {
	catalog Catalog
}

// NewEngine creates a pricing engine backed by catalog.
func NewEngine(catalog Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Price resolves every line against the catalog and snapshots its unit price.
// Repeated product ids are merged into the first line that names them. If any
// product is unknown nothing is returned.
func (e *Engine) Price(ctx context.Context, lines []LineRequest) ([]models.OrderItem, decimal.Decimal, error) {
	if len(lines) == 0 {
		return nil, decimal.Zero, apperrors.New(apperrors.KindInvalidInput, "at least one item is required")
	}

	items := make([]models.OrderItem, 0, len(lines))
	seen := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			return nil, decimal.Zero, apperrors.New(apperrors.KindInvalidInput, "product_id is required")
		}
		if line.Quantity < 1 {
			return nil, decimal.Zero, apperrors.New(apperrors.KindInvalidInput, "quantity for product %s must be at least 1", line.ProductID)
		}
		if idx, ok := seen[line.ProductID]; ok {
			items[idx].Quantity += line.Quantity
			continue
		}

		product, err := e.catalog.GetByID(ctx, line.ProductID)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				return nil, decimal.Zero, apperrors.Wrap(apperrors.KindNotFound, err, "product %s not found", line.ProductID)
			}
			return nil, decimal.Zero, apperrors.Wrap(apperrors.KindInternal, err, "failed to look up product %s", line.ProductID)
		}
		if !product.Price.IsPositive() {
			return nil, decimal.Zero, apperrors.New(apperrors.KindInvalidInput, "product %s has no valid price", line.ProductID)
		}

		seen[line.ProductID] = len(items)
		items = append(items, models.OrderItem{
			Position:    len(items),
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.Price,
		})
	}

	return items, Total(items), nil
}

// Total sums quantity times unit price over items.
func Total(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// MinorUnits converts an amount to integer minor units, e.g. 20.00 -> 2000.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(MinorUnitExponent).Round(0).IntPart()
}

// FromMinorUnits converts integer minor units back to an amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -MinorUnitExponent)
}
