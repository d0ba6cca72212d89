// Package checkout turns a user's cart into a pending order and starts the
// gateway payment for it.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/catalog"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/coupon"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/payment"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/pricing"
)

type Carts interface {
	Revalidate(ctx context.Context, owner cart.Owner) ([]cart.Item, []cart.Adjustment, error)
	Summary(ctx context.Context, owner cart.Owner) (cart.Summary, error)
	Clear(ctx context.Context, owner cart.Owner) error
}

type Products interface {
	GetMany(ctx context.Context, productIDs []int64) (map[int64]catalog.Product, error)
}

type Addresses interface {
	GetForUser(ctx context.Context, addressID, userID int64) (order.Address, error)
}

type Orders interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, o *order.Order) error
	AddItemsWithTx(ctx context.Context, tx pgx.Tx, orderID int64, items []order.Item) error
	SetTotalWithTx(ctx context.Context, tx pgx.Tx, orderID int64, couponID *int64, total decimal.Decimal) error
	AttachPaymentWithTx(ctx context.Context, tx pgx.Tx, orderID, paymentID int64) error
	DeleteItemsWithTx(ctx context.Context, tx pgx.Tx, orderID int64) error
	DeleteWithTx(ctx context.Context, tx pgx.Tx, orderID int64) error
}

type Stock interface {
	ReserveWithTx(ctx context.Context, tx pgx.Tx, lines []inventory.Line) (inventory.ReserveResult, error)
	ReleaseWithTx(ctx context.Context, tx pgx.Tx, lines []inventory.Line) error
}

type Coupons interface {
	Validate(ctx context.Context, code string, userID int64) (coupon.Coupon, error)
	ValidateWithTx(ctx context.Context, tx pgx.Tx, code string, userID int64) (coupon.Coupon, error)
}

type Redemptions interface {
	RedeemWithTx(ctx context.Context, tx pgx.Tx, couponID, userID, orderID int64) error
	UnredeemWithTx(ctx context.Context, tx pgx.Tx, couponID, userID int64) error
}

type Payments interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, p *payment.Payment) error
}

type Gateway interface {
	RequestPayment(ctx context.Context, amount decimal.Decimal, description string, metadata map[string]string) (string, error)
	RedirectURL(authority string) string
}

type Publisher interface {
	PublishOrderPlaced(ctx context.Context, meta events.EventMeta, payload events.OrderPlacedPayload) error
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Pool        db.TxBeginner
	Carts       Carts
	Products    Products
	Addresses   Addresses
	Orders      Orders
	Stock       Stock
	Coupons     Coupons
	Redemptions Redemptions
	Payments    Payments
	Gateway     Gateway
	Publisher   Publisher
	Metrics     *metrics.Metrics
	Logger      logrus.FieldLogger
}

type Service struct {
	Deps
}

func NewService(d Deps) *Service {
	return &Service{Deps: d}
}

type Request struct {
	UserID     int64
	SessionID  string
	AddressID  int64
	CouponCode string
}

type Result struct {
	OrderID    int64           `json:"order_id"`
	PaymentURL string          `json:"payment_url"`
	Authority  string          `json:"authority"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// placed is what the order transaction committed and what compensation undoes.
type placed struct {
	order    *order.Order
	items    []order.Item
	reserved []inventory.Line
	couponID *int64
}

// Checkout places a pending order for the user's cart and requests a payment
// for it. Stock, order rows and the coupon redemption commit together; if the
// gateway then refuses the payment they are undone in a second transaction.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	res, err := s.checkout(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.CodeOf(err))
	}
	s.Metrics.CheckoutsTotal.WithLabelValues(outcome).Inc()
	return res, err
}

func (s *Service) checkout(ctx context.Context, req Request) (Result, error) {
	log := s.Logger.WithField("user_id", req.UserID)
	owner := cart.Owner{SessionID: req.SessionID, UserID: req.UserID}

	addr, err := s.Addresses.GetForUser(ctx, req.AddressID, req.UserID)
	if err != nil {
		if errors.Is(err, order.ErrAddressNotFound) {
			return Result{}, apperr.Validation(apperr.CodeInvalidAddress, "address not found")
		}
		return Result{}, apperr.Internal(err)
	}

	items, adjustments, err := s.Carts.Revalidate(ctx, owner)
	if err != nil {
		return Result{}, apperr.Internal(err)
	}
	if len(adjustments) > 0 {
		return Result{}, apperr.Conflict(apperr.CodePartialAdjustment, "cart was adjusted to available stock").
			WithDetails(adjustments)
	}
	if len(items) == 0 {
		return Result{}, apperr.Validation(apperr.CodeEmptyCart, "cart is empty")
	}

	products, err := s.Products.GetMany(ctx, cartProductIDs(items))
	if err != nil {
		return Result{}, apperr.Internal(err)
	}

	p, err := s.place(ctx, req, addr, items, products)
	if err != nil {
		return Result{}, err
	}
	log = log.WithField("order_id", p.order.ID)

	authority, err := s.Gateway.RequestPayment(ctx, p.order.TotalPrice,
		fmt.Sprintf("order %d", p.order.ID), nil)
	if err != nil {
		log.WithError(err).Warn("payment request failed, undoing order")
		s.compensate(ctx, log, req.UserID, p)
		return Result{}, apperr.Wrap(err, apperr.KindGateway, apperr.CodeGatewayUnavailable, "payment gateway unavailable")
	}

	if err := s.attachPayment(ctx, p.order, authority); err != nil {
		log.WithError(err).Error("record payment failed, undoing order")
		s.compensate(ctx, log, req.UserID, p)
		return Result{}, apperr.Internal(err)
	}

	if err := s.Carts.Clear(ctx, owner); err != nil {
		// the order stands; a stale cart is only a nuisance
		log.WithError(err).Warn("clear cart after checkout")
	}

	log.WithFields(logrus.Fields{
		"authority":   authority,
		"total_price": p.order.TotalPrice.String(),
	}).Info("order placed")
	s.publishPlaced(ctx, log, p, authority)

	return Result{
		OrderID:    p.order.ID,
		PaymentURL: s.Gateway.RedirectURL(authority),
		Authority:  authority,
		TotalPrice: p.order.TotalPrice,
	}, nil
}

// place runs the order transaction: create the order, reserve stock, record
// items at the current unit price and redeem the coupon.
func (s *Service) place(ctx context.Context, req Request, addr order.Address, items []cart.Item, products map[int64]catalog.Product) (*placed, error) {
	p := &placed{order: order.New(req.UserID, addr)}

	total := decimal.Zero
	lines := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		prod, ok := products[it.ProductID]
		if !ok || !prod.Published() {
			return nil, apperr.Conflict(apperr.CodeInsufficientStock, "product no longer available").
				WithDetails([]inventory.DepletedLine{{ProductID: it.ProductID, Requested: it.Quantity}})
		}
		unit := prod.UnitPrice()
		p.items = append(p.items, order.Item{ProductID: it.ProductID, Quantity: it.Quantity, Price: unit})
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
		total = total.Add(pricing.LineTotal(unit, it.Quantity))
	}
	p.order.TotalPrice = total

	err := db.WithTx(ctx, s.Pool, func(tx pgx.Tx) error {
		if err := s.Orders.CreateWithTx(ctx, tx, p.order); err != nil {
			return err
		}

		res, err := s.Stock.ReserveWithTx(ctx, tx, lines)
		if err != nil {
			return err
		}
		if len(res.Depleted) > 0 {
			return apperr.Conflict(apperr.CodeInsufficientStock, "insufficient stock").WithDetails(res.Depleted)
		}
		p.reserved = res.Reserved

		if err := s.Orders.AddItemsWithTx(ctx, tx, p.order.ID, p.items); err != nil {
			return err
		}

		if req.CouponCode != "" {
			c, err := s.redeem(ctx, tx, req, p.order.ID)
			if err != nil {
				return err
			}
			p.couponID = &c.ID
			p.order.CouponID = &c.ID
			p.order.TotalPrice = pricing.ApplyDiscount(total, c.DiscountPercent)
		}

		return s.Orders.SetTotalWithTx(ctx, tx, p.order.ID, p.couponID, p.order.TotalPrice)
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Internal(err)
	}
	return p, nil
}

func (s *Service) redeem(ctx context.Context, tx pgx.Tx, req Request, orderID int64) (coupon.Coupon, error) {
	c, err := s.Coupons.ValidateWithTx(ctx, tx, req.CouponCode, req.UserID)
	if err != nil {
		var verr *coupon.ValidationError
		if errors.As(err, &verr) {
			return c, apperr.Validation(apperr.CodeInvalidCoupon, "coupon is not valid").
				WithDetails(verr.Messages())
		}
		return c, err
	}
	if err := s.Redemptions.RedeemWithTx(ctx, tx, c.ID, req.UserID, orderID); err != nil {
		if errors.Is(err, coupon.ErrRedemptionConflict) {
			return c, apperr.Conflict(apperr.CodeCouponConflict, "coupon was redeemed concurrently")
		}
		return c, err
	}
	return c, nil
}

func (s *Service) attachPayment(ctx context.Context, o *order.Order, authority string) error {
	return db.WithTx(ctx, s.Pool, func(tx pgx.Tx) error {
		pay := &payment.Payment{
			AuthorityID: authority,
			Amount:      o.TotalPrice,
			Status:      payment.StatusPending,
		}
		if err := s.Payments.CreateWithTx(ctx, tx, pay); err != nil {
			return err
		}
		o.PaymentID = &pay.ID
		return s.Orders.AttachPaymentWithTx(ctx, tx, o.ID, pay.ID)
	})
}

// compensate undoes a committed order whose payment could not be started.
// On failure the order stays pending and the expiry sweep returns its stock.
func (s *Service) compensate(ctx context.Context, log logrus.FieldLogger, userID int64, p *placed) {
	ctx = context.WithoutCancel(ctx)
	err := db.WithTx(ctx, s.Pool, func(tx pgx.Tx) error {
		if err := s.Stock.ReleaseWithTx(ctx, tx, p.reserved); err != nil {
			return err
		}
		if p.couponID != nil {
			if err := s.Redemptions.UnredeemWithTx(ctx, tx, *p.couponID, userID); err != nil {
				return err
			}
		}
		if err := s.Orders.DeleteItemsWithTx(ctx, tx, p.order.ID); err != nil {
			return err
		}
		return s.Orders.DeleteWithTx(ctx, tx, p.order.ID)
	})
	if err != nil {
		log.WithError(err).WithField("severity", "critical").Error("undo order after payment failure")
	}
}

func (s *Service) publishPlaced(ctx context.Context, log logrus.FieldLogger, p *placed, authority string) {
	lines := make([]events.OrderLine, 0, len(p.items))
	for _, it := range p.items {
		lines = append(lines, events.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	payload := events.OrderPlacedPayload{
		OrderID:    p.order.ID,
		UserID:     p.order.UserID,
		CouponID:   p.couponID,
		TotalPrice: p.order.TotalPrice,
		Authority:  authority,
		Items:      lines,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.Publisher.PublishOrderPlaced(ctx, events.MetaFor(ctx, p.order.ID), payload); err != nil {
		s.Metrics.EventPublishFailures.WithLabelValues(events.EventTypeOrderPlaced).Inc()
		log.WithError(err).Warn("publish order placed")
	}
}

func cartProductIDs(items []cart.Item) []int64 {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}
