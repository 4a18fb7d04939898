package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount calculates the amount taken off the given subtotal. The result is
// rounded to cents and always lies within [0, subtotal].
func (a Application) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch a.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(a.DiscountValue).Div(hundred)
	case DiscountFixed:
		amount = decimal.Min(a.DiscountValue, subtotal)
	default:
		return decimal.Zero
	}

	return clamp(amount, subtotal).Round(2)
}

// clamp keeps d within [0, upper].
func clamp(d, upper decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(upper) {
		return upper
	}
	return d
}
