package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderLine struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderPlacedPayload struct {
	OrderID    int64           `json:"orderId"`
	UserID     int64           `json:"userId"`
	CouponID   *int64          `json:"couponId,omitempty"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Authority  string          `json:"authority"`
	Items      []OrderLine     `json:"items"`
	Timestamp  time.Time       `json:"timestamp"`
}

type PaymentVerifiedPayload struct {
	OrderID      int64           `json:"orderId"`
	UserID       int64           `json:"userId"`
	Authority    string          `json:"authority"`
	Status       string          `json:"status"`
	RefID        *int64          `json:"refId,omitempty"`
	ResponseCode int             `json:"responseCode"`
	Amount       decimal.Decimal `json:"amount"`
	Timestamp    time.Time       `json:"timestamp"`
}

type RestoredLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type OrderExpiredPayload struct {
	OrderID   int64          `json:"orderId"`
	UserID    int64          `json:"userId"`
	Restored  []RestoredLine `json:"restored"`
	Timestamp time.Time      `json:"timestamp"`
}

type OrderPlacedEvent = EventEnvelope[OrderPlacedPayload]
type PaymentVerifiedEvent = EventEnvelope[PaymentVerifiedPayload]
type OrderExpiredEvent = EventEnvelope[OrderExpiredPayload]
