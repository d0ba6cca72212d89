package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
)

var ErrNotFound = errors.New("product not found")

type Repository interface {
	Reserve(ctx context.Context, lines []Line) (ReserveResult, error)
	Release(ctx context.Context, lines []Line) error
}

type TransactionalRepository interface {
	Repository
	ReserveWithTx(ctx context.Context, tx pgx.Tx, lines []Line) (ReserveResult, error)
	ReleaseWithTx(ctx context.Context, tx pgx.Tx, lines []Line) error
}

type PostgresRepository struct {
	pool db.Pool
}

func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Reserve decrements stock for all lines in its own transaction, or for none of them.
func (r *PostgresRepository) Reserve(ctx context.Context, lines []Line) (ReserveResult, error) {
	var res ReserveResult
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		res, err = r.ReserveWithTx(ctx, tx, lines)
		if err != nil {
			return err
		}
		if len(res.Depleted) > 0 {
			return errDepleted
		}
		return nil
	})
	if errors.Is(err, errDepleted) {
		return res, nil
	}
	return res, err
}

var errDepleted = errors.New("depleted")

// ReserveWithTx locks every product row, then decrements stock only if no line
// is short. A non-empty Depleted leaves stock untouched; the caller decides
// whether to roll back.
func (r *PostgresRepository) ReserveWithTx(ctx context.Context, tx pgx.Tx, lines []Line) (ReserveResult, error) {
	res := ReserveResult{}
	lines = normalize(lines)

	for _, line := range lines {
		// unknown products count as zero stock
		available, err := lockStock(ctx, tx, line.ProductID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return res, err
		}
		if available < line.Quantity {
			res.Depleted = append(res.Depleted, DepletedLine{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: available,
			})
		}
	}

	if len(res.Depleted) > 0 {
		return res, nil
	}

	for _, line := range lines {
		_, err := tx.Exec(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = now()
			WHERE id = $1
		`, line.ProductID, line.Quantity)
		if err != nil {
			return res, fmt.Errorf("decrement stock %d: %w", line.ProductID, err)
		}
		res.Reserved = append(res.Reserved, line)
	}

	return res, nil
}

func (r *PostgresRepository) Release(ctx context.Context, lines []Line) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return r.ReleaseWithTx(ctx, tx, lines)
	})
}

// ReleaseWithTx restores stock under the same lock order as ReserveWithTx.
// Products deleted since the reservation are skipped.
func (r *PostgresRepository) ReleaseWithTx(ctx context.Context, tx pgx.Tx, lines []Line) error {
	for _, line := range normalize(lines) {
		if _, err := lockStock(ctx, tx, line.ProductID); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE products
			SET stock = stock + $2, updated_at = now()
			WHERE id = $1
		`, line.ProductID, line.Quantity)
		if err != nil {
			return fmt.Errorf("restore stock %d: %w", line.ProductID, err)
		}
	}
	return nil
}

func lockStock(ctx context.Context, tx pgx.Tx, productID int64) (int, error) {
	var stock int
	err := tx.QueryRow(ctx, `
		SELECT stock
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("lock stock %d: %w", productID, err)
	}
	return stock, nil
}

// normalize merges duplicate products and sorts by id so concurrent
// transactions always take row locks in the same order.
func normalize(lines []Line) []Line {
	qty := make(map[int64]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		qty[l.ProductID] += l.Quantity
	}
	out := make([]Line, 0, len(qty))
	for id, q := range qty {
		out = append(out, Line{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
