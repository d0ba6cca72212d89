package cart

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrExceedsStock    = errors.New("quantity exceeds stock")
	ErrNotInCart       = errors.New("product not in cart")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

type Item struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Owner identifies whose cart is addressed. A non-zero UserID selects the
// durable cart; otherwise the anonymous session cart is used.
type Owner struct {
	SessionID string
	UserID    int64
}

func (o Owner) Authenticated() bool { return o.UserID != 0 }

type Line struct {
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	Stock     int             `json:"stock"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type Summary struct {
	Items         []Line          `json:"items"`
	TotalQuantity int             `json:"total_quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

// Adjustment records a cart line changed to fit current stock.
type Adjustment struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
	Removed   bool  `json:"removed"`
}

// MergeItems unions two carts by product. On conflict the session quantity wins.
func MergeItems(session, durable []Item) []Item {
	qty := make(map[int64]int, len(session)+len(durable))
	for _, it := range durable {
		qty[it.ProductID] = it.Quantity
	}
	for _, it := range session {
		qty[it.ProductID] = it.Quantity
	}
	return fromMap(qty)
}

func fromMap(qty map[int64]int) []Item {
	out := make([]Item, 0, len(qty))
	for id, q := range qty {
		if q > 0 {
			out = append(out, Item{ProductID: id, Quantity: q})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func toMap(items []Item) map[int64]int {
	qty := make(map[int64]int, len(items))
	for _, it := range items {
		qty[it.ProductID] += it.Quantity
	}
	return qty
}

func productIDs(items []Item) []int64 {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}
