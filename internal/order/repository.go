package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
)

type Repository interface {
	GetByID(ctx context.Context, orderID int64) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)
}

type TransactionalRepository interface {
	Repository
	CreateWithTx(ctx context.Context, tx pgx.Tx, o *Order) error
	AddItemsWithTx(ctx context.Context, tx pgx.Tx, orderID int64, items []Item) error
	SetTotalWithTx(ctx context.Context, tx pgx.Tx, orderID int64, couponID *int64, total decimal.Decimal) error
	AttachPaymentWithTx(ctx context.Context, tx pgx.Tx, orderID, paymentID int64) error
	LockByPaymentWithTx(ctx context.Context, tx pgx.Tx, paymentID int64) ([]Order, error)
	LockPendingWithTx(ctx context.Context, tx pgx.Tx, orderID int64) (*Order, error)
	SetStatusWithTx(ctx context.Context, tx pgx.Tx, orderID int64, status Status) error
	ItemsWithTx(ctx context.Context, tx pgx.Tx, orderID int64) ([]Item, error)
	DeleteItemsWithTx(ctx context.Context, tx pgx.Tx, orderID int64) error
	DeleteWithTx(ctx context.Context, tx pgx.Tx, orderID int64) error
}

type PostgresRepository struct {
	pool db.Pool
}

func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const orderColumns = `id, user_id, address, state, city, zip_code, coupon_id, total_price, status, payment_id, created_at, updated_at`

func (r *PostgresRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, o *Order) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, address, state, city, zip_code, total_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, o.UserID, o.Address, o.State, o.City, o.ZipCode, o.TotalPrice, string(o.Status)).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddItemsWithTx(ctx context.Context, tx pgx.Tx, orderID int64, items []Item) error {
	for i := range items {
		items[i].OrderID = orderID
		err := tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, orderID, items[i].ProductID, items[i].Quantity, items[i].Price).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) SetTotalWithTx(ctx context.Context, tx pgx.Tx, orderID int64, couponID *int64, total decimal.Decimal) error {
	_, err := tx.Exec(ctx, `
		UPDATE orders SET total_price = $2, coupon_id = $3, updated_at = now()
		WHERE id = $1
	`, orderID, total, couponID)
	if err != nil {
		return fmt.Errorf("set order total: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AttachPaymentWithTx(ctx context.Context, tx pgx.Tx, orderID, paymentID int64) error {
	_, err := tx.Exec(ctx, `UPDATE orders SET payment_id = $2, updated_at = now() WHERE id = $1`, orderID, paymentID)
	if err != nil {
		return fmt.Errorf("attach payment: %w", err)
	}
	return nil
}

// LockByPaymentWithTx locks every order referencing paymentID. More than one
// result is an integrity problem the caller reports.
func (r *PostgresRepository) LockByPaymentWithTx(ctx context.Context, tx pgx.Tx, paymentID int64) ([]Order, error) {
	rows, err := tx.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_id = $1 ORDER BY id FOR UPDATE`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("lock orders by payment: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// LockPendingWithTx locks a pending order, skipping it when another
// transaction already holds the row. ErrNotFound covers both cases.
func (r *PostgresRepository) LockPendingWithTx(ctx context.Context, tx pgx.Tx, orderID int64) (*Order, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND status = 'pending'
		FOR UPDATE SKIP LOCKED
	`, orderID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) SetStatusWithTx(ctx context.Context, tx pgx.Tx, orderID int64, status Status) error {
	_, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, string(status))
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ItemsWithTx(ctx context.Context, tx pgx.Tx, orderID int64) ([]Item, error) {
	return listItems(ctx, tx, orderID)
}

func (r *PostgresRepository) DeleteItemsWithTx(ctx context.Context, tx pgx.Tx, orderID int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteWithTx(ctx context.Context, tx pgx.Tx, orderID int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, orderID int64) (*Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	items, err := listItems(ctx, r.pool, orderID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// ListStalePending returns ids of pending orders created before cutoff, oldest first.
func (r *PostgresRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM orders
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale orders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func listItems(ctx context.Context, q db.Querier, orderID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity, price
		FROM order_items WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.UserID, &o.Address, &o.State, &o.City, &o.ZipCode,
		&o.CouponID, &o.TotalPrice, &status, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	return &o, nil
}

// AddressRepository reads saved user addresses.
type AddressRepository struct {
	db db.Querier
}

func NewAddressRepository(q db.Querier) *AddressRepository {
	return &AddressRepository{db: q}
}

// GetForUser returns the address only when it belongs to userID.
func (r *AddressRepository) GetForUser(ctx context.Context, addressID, userID int64) (Address, error) {
	var a Address
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, address, state, city, zip_code
		FROM user_addresses WHERE id = $1 AND user_id = $2
	`, addressID, userID).Scan(&a.ID, &a.UserID, &a.Address, &a.State, &a.City, &a.ZipCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Address{}, ErrAddressNotFound
		}
		return Address{}, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}
