// Package pricing computes the charged price of a course from an optional coupon.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/learnhub/backend/internal/models"
)

// Places is the number of decimal places money is rounded to.
const Places = 2

var hundred = decimal.NewFromInt(100)

// Quote is the priced outcome. Discount + Final always equals Original.
type Quote struct {
	Original decimal.Decimal `json:"original_price"`
	Discount decimal.Decimal `json:"discount_amount"`
	Final    decimal.Decimal `json:"final_price"`
}

// Price applies c to original. Validity of c is checked elsewhere; a nil coupon
// yields no discount.
func Price(original decimal.Decimal, c *models.Coupon) Quote {
	if original.IsNegative() {
		original = decimal.Zero
	}
	discount := decimal.Zero
	if c != nil {
		switch c.DiscountType {
		case models.DiscountPercentage:
			discount = original.Mul(c.DiscountValue).Div(hundred).Round(Places)
		case models.DiscountFixed:
			discount = decimal.Min(c.DiscountValue, original)
		}
	}
	discount = clamp(discount, original)
	return Quote{
		Original: original,
		Discount: discount,
		Final:    decimal.Max(decimal.Zero, original.Sub(discount)),
	}
}

func clamp(d, max decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(max) {
		return max
	}
	return d
}
