package coupon

import (
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("coupon not found")

// ErrRedemptionConflict means the conditional redemption insert matched no row:
// the usage limit was reached or the user already redeemed the coupon.
var ErrRedemptionConflict = errors.New("coupon redemption conflict")

type Coupon struct {
	ID              int64      `json:"id"`
	Code            string     `json:"code"`
	DiscountPercent int        `json:"discount_percent"`
	MaxLimitUsage   int        `json:"max_limit_usage"`
	ExpirationDate  *time.Time `json:"expiration_date,omitempty"`
	UsedBy          int        `json:"used_by"`
}

type Problem string

const (
	ProblemInvalidCode        Problem = "invalid_code"
	ProblemExpired            Problem = "expired"
	ProblemUsageLimitExceeded Problem = "usage_limit_exceeded"
	ProblemAlreadyUsed        Problem = "already_used"
)

var problemMessages = map[Problem]string{
	ProblemInvalidCode:        "coupon code is invalid",
	ProblemExpired:            "coupon has expired",
	ProblemUsageLimitExceeded: "coupon usage limit reached",
	ProblemAlreadyUsed:        "coupon already used by this user",
}

func (p Problem) Message() string { return problemMessages[p] }

// ValidationError lists every check a coupon failed.
type ValidationError struct {
	Code     string
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, string(p))
	}
	return "coupon " + e.Code + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Messages() []string {
	out := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		out = append(out, p.Message())
	}
	return out
}

func (e *ValidationError) Has(p Problem) bool {
	for _, got := range e.Problems {
		if got == p {
			return true
		}
	}
	return false
}

// Check runs the checks on a loaded coupon and returns every failure.
func Check(c Coupon, alreadyUsed bool, now time.Time) []Problem {
	var problems []Problem
	if c.ExpirationDate != nil && c.ExpirationDate.Before(now) {
		problems = append(problems, ProblemExpired)
	}
	if c.UsedBy >= c.MaxLimitUsage {
		problems = append(problems, ProblemUsageLimitExceeded)
	}
	if alreadyUsed {
		problems = append(problems, ProblemAlreadyUsed)
	}
	return problems
}
