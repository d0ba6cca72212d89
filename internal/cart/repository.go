package cart

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
)

// PostgresRepository stores the durable cart of authenticated users.
type PostgresRepository struct {
	pool db.Pool
}

func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Load(ctx context.Context, userID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ci.product_id, ci.quantity
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		WHERE c.user_id = $1
		ORDER BY ci.product_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Save replaces the user's cart lines in one transaction.
func (r *PostgresRepository) Save(ctx context.Context, userID int64, items []Item) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var cartID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO carts (user_id)
			VALUES ($1)
			ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
			RETURNING id
		`, userID).Scan(&cartID)
		if err != nil {
			return fmt.Errorf("upsert cart: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("delete cart items: %w", err)
		}

		for _, it := range items {
			if it.Quantity <= 0 {
				continue
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO cart_items (cart_id, product_id, quantity)
				VALUES ($1, $2, $3)
			`, cartID, it.ProductID, it.Quantity)
			if err != nil {
				return fmt.Errorf("insert cart item: %w", err)
			}
		}
		return nil
	})
}

func (r *PostgresRepository) Clear(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)
	`, userID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
