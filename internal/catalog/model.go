package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/pricing"
)

type Status string

const (
	StatusDraft   Status = "draft"
	StatusPublish Status = "publish"
)

type Product struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent int             `json:"discount_percent"`
	Stock           int             `json:"stock"`
	Status          Status          `json:"status"`
}

func (p Product) Published() bool { return p.Status == StatusPublish }

// UnitPrice is the price charged per unit, after the product's own discount.
func (p Product) UnitPrice() decimal.Decimal {
	return pricing.UnitPrice(p.Price, p.DiscountPercent)
}
