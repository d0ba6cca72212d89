package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestDiscountArithmetic(t *testing.T) {
	total := d(2000)

	assert.True(t, DiscountAmount(total, 20).Equal(d(400)))
	assert.True(t, ApplyDiscount(total, 20).Equal(d(1600)))
	assert.True(t, Tax(ApplyDiscount(total, 20)).Equal(d(144)))
	assert.True(t, Tax(total).Equal(d(180)))
}

func TestRoundHalfUp(t *testing.T) {
	tests := map[string]struct {
		total   int64
		percent int
		want    int64
	}{
		"exact":          {total: 1000, percent: 10, want: 100},
		"half rounds up": {total: 1005, percent: 10, want: 101},
		"below half":     {total: 1004, percent: 10, want: 100},
		"zero percent":   {total: 1234, percent: 0, want: 0},
		"full discount":  {total: 1234, percent: 100, want: 1234},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := DiscountAmount(d(tc.total), tc.percent)
			assert.True(t, got.Equal(d(tc.want)), "got %s", got)
		})
	}
}

func TestUnitPrice(t *testing.T) {
	assert.True(t, UnitPrice(d(1000), 0).Equal(d(1000)))
	assert.True(t, UnitPrice(d(1000), 15).Equal(d(850)))
	// 999 * 0.85 = 849.15
	assert.True(t, UnitPrice(d(999), 15).Equal(d(849)))
	assert.True(t, LineTotal(d(850), 3).Equal(d(2550)))
}

func TestTaxRounding(t *testing.T) {
	// 150 * 9% = 13.5
	assert.True(t, Tax(d(150)).Equal(d(14)))
}
