package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
)

var ErrNotFound = errors.New("product not found")

type Repository interface {
	Get(ctx context.Context, productID int64) (Product, error)
	GetMany(ctx context.Context, productIDs []int64) (map[int64]Product, error)
}

type PostgresRepository struct {
	db db.Querier
}

func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

const productColumns = `id, title, price, discount_percent, stock, status`

func (r *PostgresRepository) Get(ctx context.Context, productID int64) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, productID)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("get product %d: %w", productID, err)
	}
	return p, nil
}

// GetMany returns the products that exist among productIDs. Missing ids are absent from the map.
func (r *PostgresRepository) GetMany(ctx context.Context, productIDs []int64) (map[int64]Product, error) {
	out := make(map[int64]Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var status string
	if err := row.Scan(&p.ID, &p.Title, &p.Price, &p.DiscountPercent, &p.Stock, &status); err != nil {
		return Product{}, err
	}
	p.Status = Status(status)
	return p, nil
}
