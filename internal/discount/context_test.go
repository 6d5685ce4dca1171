package discount

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscountContext_AppliesInOrder(t *testing.T) {
	c := NewDiscountContext(99.99, 9.99, 0)
	assert.Equal(t, 90.0, c.RunningAmount)
	require.Len(t, c.Breakdown, 1)
	assert.Equal(t, DiscountTypeProduct, c.Breakdown[0].Type)

	applied := c.ApplyCoupons(12.3456, []string{"A", "B"})
	assert.Equal(t, 12.35, applied)
	assert.Equal(t, 77.65, c.RunningAmount)
	assert.Equal(t, "A,B", c.Breakdown[1].Code)

	c.ApplyTier(7.7689, "SILVER")
	assert.Equal(t, 7.77, c.TierDiscount)
	assert.Equal(t, 69.88, c.RunningAmount)

	assert.Equal(t, 30.11, c.TotalDiscount())
	assert.Equal(t, 69.88, c.FinalAmount())
}

func TestDiscountContext_Clamping(t *testing.T) {
	tests := []struct {
		name     string
		discount float64
		want     float64
	}{
		{name: "negative", discount: -10, want: 0},
		{name: "larger than running", discount: 500, want: 50},
		{name: "exact", discount: 50, want: 50},
		{name: "nan", discount: math.NaN(), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewDiscountContext(50, 0, 0)
			got := c.ApplyTier(tt.discount, "GOLD")
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, c.RunningAmount, 0.0)
			assert.Equal(t, 0.0, c.FinalAmount()-c.RunningAmount)
		})
	}
}

func TestDiscountContext_RunningAmountNeverIncreases(t *testing.T) {
	c := NewDiscountContext(100, 150, 30)
	assert.Equal(t, 100.0, c.ProductDiscount)
	assert.Equal(t, 0.0, c.OrderLevelDiscount)
	assert.Equal(t, 0.0, c.RunningAmount)

	prev := c.RunningAmount
	c.ApplyCoupons(-20, nil)
	assert.LessOrEqual(t, c.RunningAmount, prev)
	assert.Len(t, c.Breakdown, 1)
	assert.Equal(t, 0.0, c.FinalAmount())
}

func TestDiscountContext_SnapshotIsIndependent(t *testing.T) {
	c := NewDiscountContext(100, 10, 0)
	snap := c.Snapshot()

	c.ApplyCoupons(5, []string{"X"})
	assert.Len(t, snap.Breakdown, 1)
	assert.Equal(t, 90.0, snap.RunningAmount)
	assert.Nil(t, (*DiscountContext)(nil).Snapshot())
}
