package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks a coupon code against the current subtotal.
type Validator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Application, error)
}

// RepoValidator implements Validator by looking up coupons from a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate normalizes the code, looks the coupon up and checks expiry, usage
// and minimum order amount, in that order. A blank code is not an error: it
// returns a nil Application. Usage counters are not touched; redemption
// happens when the order commits.
func (v *RepoValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Application, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, nil
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if err := c.Redeemable(v.now()); err != nil {
		return nil, err
	}

	if subtotal.LessThan(c.MinOrderAmount) {
		return nil, errors.Wrapf(ErrMinimumNotMet, "minimum order amount is %s", c.MinOrderAmount.StringFixed(2))
	}

	return &Application{
		Code:          c.Code,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
	}, nil
}
