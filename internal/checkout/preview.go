package checkout

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/coupon"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/pricing"
)

// Preview is the cart total as it would be charged with a coupon applied.
type Preview struct {
	TotalPrice      decimal.Decimal  `json:"total_price"`
	TotalTax        decimal.Decimal  `json:"total_tax"`
	DiscountPercent *int             `json:"discount_percent,omitempty"`
	DiscountAmount  *decimal.Decimal `json:"discount_amount,omitempty"`
	Valid           bool             `json:"valid"`
	Problems        []string         `json:"problems,omitempty"`
}

// PreviewCoupon prices the current cart with code. An unusable coupon is not
// an error: the undiscounted totals come back with Valid false.
func (s *Service) PreviewCoupon(ctx context.Context, userID int64, sessionID, code string) (Preview, error) {
	if code == "" {
		return Preview{}, apperr.Validation(apperr.CodeInvalidRequest, "missing coupon code")
	}

	sum, err := s.Carts.Summary(ctx, cart.Owner{SessionID: sessionID, UserID: userID})
	if err != nil {
		return Preview{}, apperr.Internal(err)
	}
	total := sum.TotalPrice

	c, err := s.Coupons.Validate(ctx, code, userID)
	if err != nil {
		var verr *coupon.ValidationError
		if !errors.As(err, &verr) {
			return Preview{}, apperr.Internal(err)
		}
		return Preview{
			TotalPrice: total,
			TotalTax:   pricing.Tax(total),
			Problems:   verr.Messages(),
		}, nil
	}

	percent := c.DiscountPercent
	discount := pricing.DiscountAmount(total, percent)
	discounted := total.Sub(discount)
	return Preview{
		TotalPrice:      discounted,
		TotalTax:        pricing.Tax(discounted),
		DiscountPercent: &percent,
		DiscountAmount:  &discount,
		Valid:           true,
	}, nil
}
