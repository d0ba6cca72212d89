// Package pricing holds the money arithmetic shared by cart totals, coupon
// previews and checkout. Amounts are whole currency units; every rounding
// step rounds half up.
package pricing

import "github.com/shopspring/decimal"

// TaxPercent is the flat tax applied to coupon previews.
const TaxPercent = 9

var hundred = decimal.NewFromInt(100)

// Round rounds d to a whole unit, half up for the non-negative amounts used here.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

func percentOf(amount decimal.Decimal, percent int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(percent))).Div(hundred)
}

// UnitPrice is a product's selling price after its own discount.
func UnitPrice(price decimal.Decimal, discountPercent int) decimal.Decimal {
	if discountPercent <= 0 {
		return price
	}
	return Round(price.Sub(percentOf(price, discountPercent)))
}

func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// DiscountAmount is the coupon discount on total.
func DiscountAmount(total decimal.Decimal, percent int) decimal.Decimal {
	return Round(percentOf(total, percent))
}

// ApplyDiscount returns total minus its coupon discount.
func ApplyDiscount(total decimal.Decimal, percent int) decimal.Decimal {
	return total.Sub(DiscountAmount(total, percent))
}

func Tax(amount decimal.Decimal) decimal.Decimal {
	return Round(percentOf(amount, TaxPercent))
}
