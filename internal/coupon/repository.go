package coupon

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
)

type Repository interface {
	// Lookup loads a coupon with its usage count and whether userID already redeemed it.
	Lookup(ctx context.Context, code string, userID int64) (Coupon, bool, error)
}

type TransactionalRepository interface {
	Repository
	// LookupForUpdateWithTx is Lookup under a row lock on the coupon held until tx ends.
	LookupForUpdateWithTx(ctx context.Context, tx pgx.Tx, code string, userID int64) (Coupon, bool, error)
	RedeemWithTx(ctx context.Context, tx pgx.Tx, couponID, userID, orderID int64) error
	UnredeemWithTx(ctx context.Context, tx pgx.Tx, couponID, userID int64) error
}

type PostgresRepository struct {
	pool db.Pool
}

func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Lookup(ctx context.Context, code string, userID int64) (Coupon, bool, error) {
	return lookup(ctx, r.pool, code, userID, false)
}

func (r *PostgresRepository) LookupForUpdateWithTx(ctx context.Context, tx pgx.Tx, code string, userID int64) (Coupon, bool, error) {
	return lookup(ctx, tx, code, userID, true)
}

func lookup(ctx context.Context, q db.Querier, code string, userID int64, forUpdate bool) (Coupon, bool, error) {
	query := `
		SELECT id, code, discount_percent, max_limit_usage, expiration_date
		FROM coupons
		WHERE code = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var c Coupon
	err := q.QueryRow(ctx, query, code).Scan(&c.ID, &c.Code, &c.DiscountPercent, &c.MaxLimitUsage, &c.ExpirationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Coupon{}, false, ErrNotFound
		}
		return Coupon{}, false, fmt.Errorf("get coupon: %w", err)
	}

	var used bool
	err = q.QueryRow(ctx, `
		SELECT count(*), COALESCE(bool_or(user_id = $2), false)
		FROM coupon_redemptions
		WHERE coupon_id = $1
	`, c.ID, userID).Scan(&c.UsedBy, &used)
	if err != nil {
		return Coupon{}, false, fmt.Errorf("count coupon redemptions: %w", err)
	}
	return c, used, nil
}

// RedeemWithTx records userID in the coupon's used_by set only while usage is
// below the limit. ErrRedemptionConflict is returned when no row was written.
func (r *PostgresRepository) RedeemWithTx(ctx context.Context, tx pgx.Tx, couponID, userID, orderID int64) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO coupon_redemptions (coupon_id, user_id, order_id)
		SELECT c.id, $2, $3
		FROM coupons c
		WHERE c.id = $1
		  AND (SELECT count(*) FROM coupon_redemptions r WHERE r.coupon_id = c.id) < c.max_limit_usage
		ON CONFLICT (coupon_id, user_id) DO NOTHING
	`, couponID, userID, orderID)
	if err != nil {
		return fmt.Errorf("redeem coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRedemptionConflict
	}
	return nil
}

func (r *PostgresRepository) UnredeemWithTx(ctx context.Context, tx pgx.Tx, couponID, userID int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2`, couponID, userID)
	if err != nil {
		return fmt.Errorf("unredeem coupon: %w", err)
	}
	return nil
}
