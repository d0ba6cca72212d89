package httpapi

import (
	"net/http"
	"strings"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/payment"
)

type checkoutRequest struct {
	AddressID int64  `json:"address_id"`
	Coupon    string `json:"coupon"`
}

type checkoutResponse struct {
	OrderID    int64  `json:"order_id"`
	PaymentURL string `json:"payment_url"`
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.AddressID <= 0 {
		h.writeError(w, r, apperr.Validation(apperr.CodeInvalidAddress, "address_id is required"))
		return
	}

	res, err := h.checkout.Checkout(r.Context(), checkout.Request{
		UserID:     UserID(r.Context()),
		SessionID:  SessionID(r.Context()),
		AddressID:  req.AddressID,
		CouponCode: strings.TrimSpace(req.Coupon),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{OrderID: res.OrderID, PaymentURL: res.PaymentURL})
}

type validateCouponRequest struct {
	Code string `json:"code"`
}

// ValidateCoupon previews the cart total with a coupon. An unusable coupon
// answers 400 with the undiscounted totals.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.checkout.PreviewCoupon(r.Context(), UserID(r.Context()), SessionID(r.Context()), strings.TrimSpace(req.Code))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !p.Valid {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, p)
}

// VerifyPayment handles the gateway callback. Browsers are redirected to the
// next step; API clients get the outcome as JSON.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.verifier.Verify(r.Context(), UserID(r.Context()), q.Get("Authority"), q.Get("Status"))

	if wantsHTML(r) && out.NextStep != "" {
		http.Redirect(w, r, out.NextStep, http.StatusSeeOther)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if out.Status != payment.StatusSuccess {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, out)
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
