package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder returns one of the caller's orders. Orders of other users are
// reported as missing.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		h.writeError(w, r, apperr.Validation(apperr.CodeInvalidRequest, "invalid order id"))
		return
	}

	o, err := h.orders.GetByID(r.Context(), id)
	if errors.Is(err, order.ErrNotFound) || (err == nil && o.UserID != UserID(r.Context())) {
		h.writeError(w, r, apperr.NotFound("order not found"))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
