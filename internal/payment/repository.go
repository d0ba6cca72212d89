package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type TransactionalRepository interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, p *Payment) error
	LockByAuthorityWithTx(ctx context.Context, tx pgx.Tx, authority string) (*Payment, error)
	RecordVerificationWithTx(ctx context.Context, tx pgx.Tx, p *Payment) error
}

type PostgresRepository struct{}

func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

func (r *PostgresRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, p *Payment) error {
	if p.Status == "" {
		p.Status = StatusPending
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO payments (authority_id, amount, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, p.AuthorityID, p.Amount, string(p.Status)).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LockByAuthorityWithTx(ctx context.Context, tx pgx.Tx, authority string) (*Payment, error) {
	var p Payment
	var status string
	err := tx.QueryRow(ctx, `
		SELECT id, authority_id, amount, ref_id, response_code, response_json, status, created_at, updated_at
		FROM payments
		WHERE authority_id = $1
		FOR UPDATE
	`, authority).Scan(&p.ID, &p.AuthorityID, &p.Amount, &p.RefID, &p.ResponseCode, &p.ResponseJSON, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock payment: %w", err)
	}
	p.Status = Status(status)
	return &p, nil
}

// RecordVerificationWithTx stores the gateway's verify response and the resulting status.
func (r *PostgresRepository) RecordVerificationWithTx(ctx context.Context, tx pgx.Tx, p *Payment) error {
	var raw any
	if len(p.ResponseJSON) > 0 {
		raw = string(p.ResponseJSON)
	}
	_, err := tx.Exec(ctx, `
		UPDATE payments
		SET ref_id = $2, response_code = $3, response_json = $4::jsonb, status = $5, updated_at = now()
		WHERE id = $1
	`, p.ID, p.RefID, p.ResponseCode, raw, string(p.Status))
	if err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	return nil
}
