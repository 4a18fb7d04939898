package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrNotFound is returned when no active coupon matches the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrExpired is returned when the coupon's expiry time has passed.
	ErrExpired = errors.New("coupon expired")
	// ErrUsageExhausted is returned when a coupon has used up all its allowed redemptions.
	ErrUsageExhausted = errors.New("coupon usage limit reached")
	// ErrMinimumNotMet is returned when the subtotal is below the coupon's minimum order amount.
	ErrMinimumNotMet = errors.New("minimum order amount not met")
)

// Reason returns a stable machine-readable reason for a coupon error, or an
// empty string when err is not a coupon rejection.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrUsageExhausted):
		return "usage_exhausted"
	case errors.Is(err, ErrMinimumNotMet):
		return "minimum_not_met"
	default:
		return ""
	}
}

// Coupon is a discount code with its eligibility rules.
type Coupon struct {
	Code           string
	DiscountType   DiscountType
	DiscountValue  decimal.Decimal
	MinOrderAmount decimal.Decimal
	// MaxUses is nil for unlimited coupons.
	MaxUses   *int
	UsedCount int
	IsActive  bool
	// ExpiresAt is nil for coupons that never expire.
	ExpiresAt *time.Time
}

// Redeemable reports why c cannot be redeemed at now, checking active,
// expiry and usage in that order. A coupon expiring exactly at now is still
// redeemable.
func (c *Coupon) Redeemable(now time.Time) error {
	switch {
	case !c.IsActive:
		return ErrNotFound
	case c.ExpiresAt != nil && now.After(*c.ExpiresAt):
		return ErrExpired
	case c.MaxUses != nil && c.UsedCount >= *c.MaxUses:
		return ErrUsageExhausted
	default:
		return nil
	}
}

// Application is a validated coupon ready to be applied to a subtotal.
type Application struct {
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
}

// Repository provides lookup of coupons by their normalized code.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
