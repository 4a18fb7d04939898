package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestApplication_Discount(t *testing.T) {
	tests := []struct {
		name     string
		app      Application
		subtotal decimal.Decimal
		want     decimal.Decimal
	}{
		{
			name:     "10% of 100",
			app:      Application{DiscountType: DiscountPercentage, DiscountValue: d("10")},
			subtotal: d("100"),
			want:     d("10"),
		},
		{
			name:     "18% of 8.00 rounds to cents",
			app:      Application{DiscountType: DiscountPercentage, DiscountValue: d("18")},
			subtotal: d("8.00"),
			want:     d("1.44"),
		},
		{
			name:     "33% of 10.01 rounds half up",
			app:      Application{DiscountType: DiscountPercentage, DiscountValue: d("33")},
			subtotal: d("10.01"),
			want:     d("3.30"),
		},
		{
			name:     "100% equals subtotal",
			app:      Application{DiscountType: DiscountPercentage, DiscountValue: d("100")},
			subtotal: d("249.99"),
			want:     d("249.99"),
		},
		{
			name:     "percentage above 100 capped at subtotal",
			app:      Application{DiscountType: DiscountPercentage, DiscountValue: d("150")},
			subtotal: d("40"),
			want:     d("40"),
		},
		{
			name:     "0% is zero",
			app:      Application{DiscountType: DiscountPercentage, DiscountValue: d("0")},
			subtotal: d("40"),
			want:     d("0"),
		},
		{
			name:     "fixed below subtotal",
			app:      Application{DiscountType: DiscountFixed, DiscountValue: d("20")},
			subtotal: d("60"),
			want:     d("20"),
		},
		{
			name:     "fixed capped at subtotal",
			app:      Application{DiscountType: DiscountFixed, DiscountValue: d("20")},
			subtotal: d("12.50"),
			want:     d("12.50"),
		},
		{
			name:     "negative fixed value floors at zero",
			app:      Application{DiscountType: DiscountFixed, DiscountValue: d("-5")},
			subtotal: d("12.50"),
			want:     d("0"),
		},
		{
			name:     "zero subtotal",
			app:      Application{DiscountType: DiscountFixed, DiscountValue: d("5")},
			subtotal: d("0"),
			want:     d("0"),
		},
		{
			name:     "unknown type",
			app:      Application{DiscountType: "free_lowest", DiscountValue: d("5")},
			subtotal: d("100"),
			want:     d("0"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.app.Discount(tt.subtotal)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestApplication_DiscountFixedProperty(t *testing.T) {
	// For every fixed value V and subtotal S the discount is min(V, S).
	values := []string{"0", "0.01", "5", "19.99", "20", "100", "1000"}
	subtotals := []string{"0.01", "1", "19.99", "20", "20.01", "99.50", "500"}

	for _, v := range values {
		for _, s := range subtotals {
			app := Application{DiscountType: DiscountFixed, DiscountValue: d(v)}
			got := app.Discount(d(s))
			want := decimal.Min(d(v), d(s))
			assert.True(t, want.Equal(got), "V=%s S=%s: expected %s, got %s", v, s, want, got)
			assert.False(t, d(s).Sub(got).IsNegative(), "V=%s S=%s: subtotal minus discount is negative", v, s)
		}
	}
}

func TestApplication_DiscountPercentageProperty(t *testing.T) {
	// For every P in [0,100] and subtotal S the discount is S*P/100 rounded to cents.
	for p := int64(0); p <= 100; p += 5 {
		for _, s := range []string{"1", "40", "99.99", "1234.56"} {
			app := Application{DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(p)}
			got := app.Discount(d(s))
			want := d(s).Mul(decimal.NewFromInt(p)).Div(hundred).Round(2)
			assert.True(t, want.Equal(got), "P=%d S=%s: expected %s, got %s", p, s, want, got)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCode(" save10\t"))
	assert.Equal(t, "", NormalizeCode("   "))
}

func TestDiscountType_Valid(t *testing.T) {
	assert.True(t, DiscountPercentage.Valid())
	assert.True(t, DiscountFixed.Valid())
	assert.False(t, DiscountType("free_lowest").Valid())
}
