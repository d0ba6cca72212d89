package payment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/zarinpal"
)

const (
	// GatewayStatusOK is the callback status flag of a payment the user completed.
	GatewayStatusOK = "OK"

	NextStepCompleted = "/order/completed"
	NextStepFailed    = "/order/failed"
)

type Gateway interface {
	VerifyPayment(ctx context.Context, amount decimal.Decimal, authority string) (zarinpal.Verification, error)
}

type Orders interface {
	LockByPaymentWithTx(ctx context.Context, tx pgx.Tx, paymentID int64) ([]order.Order, error)
	SetStatusWithTx(ctx context.Context, tx pgx.Tx, orderID int64, status order.Status) error
}

type Publisher interface {
	PublishPaymentVerified(ctx context.Context, meta events.EventMeta, payload events.PaymentVerifiedPayload) error
}

// Outcome is the result reported to the user returning from the gateway.
type Outcome struct {
	Status   Status          `json:"status"`
	Detail   string          `json:"detail"`
	RefID    *int64          `json:"ref_id,omitempty"`
	OrderID  int64           `json:"order_id"`
	Amount   decimal.Decimal `json:"amount"`
	NextStep string          `json:"next_step"`
	Cached   bool            `json:"-"`
}

// Verifier finalizes an order and its payment from the gateway callback.
type Verifier struct {
	pool      db.TxBeginner
	payments  TransactionalRepository
	orders    Orders
	gateway   Gateway
	publisher Publisher
	metrics   *metrics.Metrics
	logger    logrus.FieldLogger
}

func NewVerifier(pool db.TxBeginner, payments TransactionalRepository, orders Orders, gateway Gateway, publisher Publisher, m *metrics.Metrics, logger logrus.FieldLogger) *Verifier {
	return &Verifier{
		pool:      pool,
		payments:  payments,
		orders:    orders,
		gateway:   gateway,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Verify settles the payment identified by authority for userID.
//
// The payment and order rows stay locked until the result is recorded, so
// duplicate callbacks for one authority are serialized and only the first
// reaches the gateway. A payment that already reached a final status is
// reported from storage without calling the gateway again.
func (v *Verifier) Verify(ctx context.Context, userID int64, authority, gatewayStatus string) (Outcome, error) {
	if authority == "" || gatewayStatus == "" {
		v.count("invalid")
		return Outcome{}, apperr.Validation(apperr.CodeInvalidRequest, "missing Authority or Status")
	}
	log := v.logger.WithFields(logrus.Fields{"authority": authority, "user_id": userID})

	if gatewayStatus != GatewayStatusOK {
		v.count("cancelled")
		log.Info("payment cancelled by user")
		return Outcome{Status: StatusFailed, Detail: "payment cancelled", NextStep: NextStepFailed},
			apperr.Validation(apperr.CodeUserCancelled, "payment was cancelled").
				WithDetails(map[string]string{"next_step": NextStepFailed})
	}

	tx, err := v.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		v.count("error")
		return Outcome{}, apperr.Internal(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := v.payments.LockByAuthorityWithTx(ctx, tx, authority)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			v.count("not_found")
			return Outcome{}, apperr.NotFound("payment not found")
		}
		v.count("error")
		return Outcome{}, apperr.Internal(err)
	}

	orders, err := v.orders.LockByPaymentWithTx(ctx, tx, p.ID)
	if err != nil {
		v.count("error")
		return Outcome{}, apperr.Internal(err)
	}
	switch len(orders) {
	case 1:
	case 0:
		v.count("integrity")
		log.WithFields(logrus.Fields{"payment_id": p.ID, "severity": "critical"}).
			Error("payment has no order")
		return Outcome{}, apperr.New(apperr.KindIntegrity, apperr.CodeOrphanedPayment, "payment has no order")
	default:
		v.count("integrity")
		log.WithFields(logrus.Fields{"payment_id": p.ID, "orders": len(orders), "severity": "critical"}).
			Error("payment linked to multiple orders")
		return Outcome{}, apperr.New(apperr.KindIntegrity, apperr.CodeIntegrityViolation, "payment linked to multiple orders")
	}
	o := orders[0]

	if o.UserID != userID {
		v.count("forbidden")
		log.WithField("order_id", o.ID).Warn("payment verification by another user")
		return Outcome{}, apperr.Forbidden("order belongs to another user")
	}

	if p.Status != StatusPending {
		v.count("cached")
		out := outcome(p, o.ID)
		out.Cached = true
		return out, nil
	}

	verification, err := v.gateway.VerifyPayment(ctx, p.Amount, authority)
	if err != nil {
		v.count("gateway_error")
		log.WithError(err).Warn("payment verification failed at gateway")
		return Outcome{}, apperr.Wrap(err, apperr.KindGateway, apperr.CodeGatewayUnavailable, "payment gateway unavailable")
	}

	code := verification.StatusCode
	p.RefID = verification.RefID
	p.ResponseCode = &code
	p.ResponseJSON = verification.Raw
	p.Status = StatusFailed
	orderStatus := order.StatusFailed
	if verification.Succeeded() {
		p.Status = StatusSuccess
		orderStatus = order.StatusSuccess
		if o.Status == order.StatusFailed {
			// stock was already restored by the expiry sweep
			log.WithFields(logrus.Fields{"order_id": o.ID, "severity": "critical"}).
				Error("payment settled for expired order, needs reconciliation")
		}
	}

	if err := v.payments.RecordVerificationWithTx(ctx, tx, p); err != nil {
		v.count("error")
		return Outcome{}, apperr.Internal(err)
	}
	if err := v.orders.SetStatusWithTx(ctx, tx, o.ID, orderStatus); err != nil {
		v.count("error")
		return Outcome{}, apperr.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		v.count("error")
		return Outcome{}, apperr.Internal(err)
	}

	v.count(string(p.Status))
	log.WithFields(logrus.Fields{"order_id": o.ID, "status": p.Status, "response_code": code}).Info("payment verified")

	payload := events.PaymentVerifiedPayload{
		OrderID:      o.ID,
		UserID:       o.UserID,
		Authority:    authority,
		Status:       string(p.Status),
		RefID:        p.RefID,
		ResponseCode: code,
		Amount:       p.Amount,
		Timestamp:    time.Now().UTC(),
	}
	if err := v.publisher.PublishPaymentVerified(ctx, events.MetaFor(ctx, o.ID), payload); err != nil {
		v.metrics.EventPublishFailures.WithLabelValues(events.EventTypePaymentVerified).Inc()
		log.WithError(err).Warn("publish payment verified")
	}

	return outcome(p, o.ID), nil
}

func outcome(p *Payment, orderID int64) Outcome {
	out := Outcome{
		Status:  p.Status,
		RefID:   p.RefID,
		OrderID: orderID,
		Amount:  p.Amount,
	}
	if p.Status == StatusSuccess {
		out.Detail = "payment completed"
		out.NextStep = NextStepCompleted
	} else {
		out.Detail = "payment failed"
		out.NextStep = NextStepFailed
	}
	return out
}

func (v *Verifier) count(result string) {
	v.metrics.VerificationsTotal.WithLabelValues(result).Inc()
}
