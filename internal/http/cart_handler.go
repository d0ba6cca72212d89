package httpapi

import (
	"errors"
	"net/http"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
)

type productRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (h *Handler) CartSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.carts.Summary(r.Context(), owner(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) CartAdd(w http.ResponseWriter, r *http.Request) {
	req, ok := h.productRequest(w, r)
	if !ok {
		return
	}
	item, err := h.carts.Add(r.Context(), owner(r), req.ProductID)
	if err != nil {
		h.writeError(w, r, cartError(err))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) CartRemove(w http.ResponseWriter, r *http.Request) {
	req, ok := h.productRequest(w, r)
	if !ok {
		return
	}
	if err := h.carts.Remove(r.Context(), owner(r), req.ProductID); err != nil {
		h.writeError(w, r, cartError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) CartUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	req, ok := h.productRequest(w, r)
	if !ok {
		return
	}
	if err := h.carts.UpdateQuantity(r.Context(), owner(r), req.ProductID, req.Quantity); err != nil {
		h.writeError(w, r, cartError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "quantity": req.Quantity})
}

func (h *Handler) CartCheck(w http.ResponseWriter, r *http.Request) {
	req, ok := h.productRequest(w, r)
	if !ok {
		return
	}
	in, qty, err := h.carts.Contains(r.Context(), owner(r), req.ProductID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"in_cart": in, "quantity": qty})
}

// CartMerge folds the session cart into the logged-in user's cart.
func (h *Handler) CartMerge(w http.ResponseWriter, r *http.Request) {
	items, err := h.carts.Merge(r.Context(), SessionID(r.Context()), UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []cart.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) productRequest(w http.ResponseWriter, r *http.Request) (productRequest, bool) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return req, false
	}
	if req.ProductID <= 0 {
		h.writeError(w, r, apperr.Validation(apperr.CodeInvalidRequest, "product_id is required"))
		return req, false
	}
	return req, true
}

func cartError(err error) error {
	var stockErr *cart.StockError
	switch {
	case errors.As(err, &stockErr):
		return apperr.Conflict(apperr.CodeExceedsStock, "quantity exceeds stock").
			WithDetails(map[string]int{"max_stock": stockErr.MaxStock})
	case errors.Is(err, cart.ErrExceedsStock):
		return apperr.Conflict(apperr.CodeExceedsStock, "quantity exceeds stock")
	case errors.Is(err, cart.ErrProductNotFound):
		return apperr.NotFound("product not found")
	case errors.Is(err, cart.ErrNotInCart):
		return apperr.NotFound("product not in cart")
	case errors.Is(err, cart.ErrInvalidQuantity):
		return apperr.Validation(apperr.CodeInvalidRequest, "quantity must be positive")
	default:
		return err
	}
}
