package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrAddressNotFound = errors.New("address not found")
)

// Address is a user's saved shipping address. Orders copy its fields at checkout.
type Address struct {
	ID      int64  `json:"id"`
	UserID  int64  `json:"user_id"`
	Address string `json:"address"`
	State   string `json:"state"`
	City    string `json:"city"`
	ZipCode string `json:"zip_code"`
}

type Order struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	Address    string          `json:"address"`
	State      string          `json:"state"`
	City       string          `json:"city"`
	ZipCode    string          `json:"zip_code"`
	CouponID   *int64          `json:"coupon_id,omitempty"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Status     Status          `json:"status"`
	PaymentID  *int64          `json:"payment_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Items      []Item          `json:"items,omitempty"`
}

// Item is an order line with the unit price captured at checkout.
type Item struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// New builds a pending order shipped to addr.
func New(userID int64, addr Address) *Order {
	return &Order{
		UserID:     userID,
		Address:    addr.Address,
		State:      addr.State,
		City:       addr.City,
		ZipCode:    addr.ZipCode,
		TotalPrice: decimal.Zero,
		Status:     StatusPending,
	}
}
