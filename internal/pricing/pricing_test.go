package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/learnhub/backend/internal/models"
)

func coupon(t models.DiscountType, v string) *models.Coupon {
	return &models.Coupon{DiscountType: t, DiscountValue: decimal.RequireFromString(v)}
}

func TestPrice(t *testing.T) {
	tests := []struct {
		name         string
		original     string
		coupon       *models.Coupon
		wantDiscount string
		wantFinal    string
	}{
		{"no coupon", "100.00", nil, "0", "100.00"},
		{"percentage", "100.00", coupon(models.DiscountPercentage, "20"), "20.00", "80.00"},
		{"percentage rounds to cents", "19.99", coupon(models.DiscountPercentage, "15"), "3.00", "16.99"},
		{"full percentage", "49.50", coupon(models.DiscountPercentage, "100"), "49.50", "0"},
		{"percentage above 100 is clamped", "10", coupon(models.DiscountPercentage, "150"), "10", "0"},
		{"negative percentage is clamped", "10", coupon(models.DiscountPercentage, "-5"), "0", "10"},
		{"fixed", "100.00", coupon(models.DiscountFixed, "30"), "30", "70.00"},
		{"fixed above price", "25.00", coupon(models.DiscountFixed, "40"), "25.00", "0"},
		{"free course", "0", coupon(models.DiscountFixed, "10"), "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Price(decimal.RequireFromString(tt.original), tt.coupon)
			assert.True(t, q.Discount.Equal(decimal.RequireFromString(tt.wantDiscount)), "discount %s", q.Discount)
			assert.True(t, q.Final.Equal(decimal.RequireFromString(tt.wantFinal)), "final %s", q.Final)
			assert.True(t, q.Discount.Add(q.Final).Equal(q.Original))
		})
	}
}

func TestPricePercentageProperty(t *testing.T) {
	for cents := int64(0); cents <= 50000; cents += 1237 {
		original := decimal.New(cents, -2)
		for v := int64(0); v <= 100; v += 5 {
			q := Price(original, coupon(models.DiscountPercentage, decimal.NewFromInt(v).String()))
			expected := original.Mul(decimal.NewFromInt(100 - v)).Div(hundred)
			assert.True(t, q.Final.Sub(expected).Abs().LessThanOrEqual(decimal.New(1, -2)),
				"original %s v %d final %s", original, v, q.Final)
			assert.True(t, q.Discount.Add(q.Final).Equal(original))
			assert.False(t, q.Final.IsNegative())
		}
	}
}

func TestPriceFixedAboveOriginalIsFree(t *testing.T) {
	for _, p := range []string{"0.01", "9.99", "120"} {
		original := decimal.RequireFromString(p)
		q := Price(original, &models.Coupon{DiscountType: models.DiscountFixed, DiscountValue: original.Add(decimal.NewFromInt(1))})
		assert.True(t, q.Discount.Equal(original))
		assert.True(t, q.Final.IsZero())
	}
}
