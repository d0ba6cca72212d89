// Package httpapi exposes checkout, payment verification, cart and order
// endpoints over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/payment"
)

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (checkout.Result, error)
	PreviewCoupon(ctx context.Context, userID int64, sessionID, code string) (checkout.Preview, error)
}

type PaymentVerifier interface {
	Verify(ctx context.Context, userID int64, authority, gatewayStatus string) (payment.Outcome, error)
}

type CartService interface {
	Summary(ctx context.Context, owner cart.Owner) (cart.Summary, error)
	Add(ctx context.Context, owner cart.Owner, productID int64) (cart.Item, error)
	Remove(ctx context.Context, owner cart.Owner, productID int64) error
	UpdateQuantity(ctx context.Context, owner cart.Owner, productID int64, quantity int) error
	Contains(ctx context.Context, owner cart.Owner, productID int64) (bool, int, error)
	Merge(ctx context.Context, sessionID string, userID int64) ([]cart.Item, error)
}

type OrderReader interface {
	GetByID(ctx context.Context, orderID int64) (*order.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]order.Order, error)
}

type Handler struct {
	checkout CheckoutService
	verifier PaymentVerifier
	carts    CartService
	orders   OrderReader
	logger   logrus.FieldLogger
}

func NewHandler(co CheckoutService, v PaymentVerifier, carts CartService, orders OrderReader, logger logrus.FieldLogger) *Handler {
	return &Handler{checkout: co, verifier: v, carts: carts, orders: orders, logger: logger}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func owner(r *http.Request) cart.Owner {
	return cart.Owner{SessionID: SessionID(r.Context()), UserID: UserID(r.Context())}
}
