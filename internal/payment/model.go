package payment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("payment not found")

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

type Payment struct {
	ID           int64           `json:"id"`
	AuthorityID  string          `json:"authority_id"`
	Amount       decimal.Decimal `json:"amount"`
	RefID        *int64          `json:"ref_id,omitempty"`
	ResponseCode *int            `json:"response_code,omitempty"`
	ResponseJSON []byte          `json:"-"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
