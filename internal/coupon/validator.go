package coupon

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Validator decides whether a user may apply a coupon.
type Validator struct {
	repo TransactionalRepository
	now  func() time.Time
}

func NewValidator(repo TransactionalRepository, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{repo: repo, now: now}
}

// Validate checks code for userID without locking. It returns a
// *ValidationError listing every failed check, or the coupon when all pass.
func (v *Validator) Validate(ctx context.Context, code string, userID int64) (Coupon, error) {
	c, used, err := v.repo.Lookup(ctx, code, userID)
	return v.result(code, c, used, err)
}

// ValidateWithTx locks the coupon row before checking, so a following
// RedeemWithTx in the same tx sees no concurrent redemption.
func (v *Validator) ValidateWithTx(ctx context.Context, tx pgx.Tx, code string, userID int64) (Coupon, error) {
	c, used, err := v.repo.LookupForUpdateWithTx(ctx, tx, code, userID)
	return v.result(code, c, used, err)
}

func (v *Validator) result(code string, c Coupon, used bool, err error) (Coupon, error) {
	if errors.Is(err, ErrNotFound) {
		return Coupon{}, &ValidationError{Code: code, Problems: []Problem{ProblemInvalidCode}}
	}
	if err != nil {
		return Coupon{}, err
	}
	if problems := Check(c, used, v.now()); len(problems) > 0 {
		return c, &ValidationError{Code: code, Problems: problems}
	}
	return c, nil
}
