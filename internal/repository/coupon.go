package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/hearth-checkout/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, discount_type, discount_value, min_order_amount,
		max_uses, used_count, is_active, expires_at
		FROM coupons WHERE code = $1`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, discount_value, min_order_amount,
		max_uses, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			min_order_amount = EXCLUDED.min_order_amount,
			max_uses = EXCLUDED.max_uses,
			is_active = EXCLUDED.is_active,
			expires_at = EXCLUDED.expires_at`

	listCouponCodesSQL = `SELECT code FROM coupons`

	existingCouponCodesSQL = `SELECT code FROM coupons WHERE code = ANY($1)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code, active or not.
// Returns coupon.ErrNotFound when no coupon has that code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// Upsert creates or replaces the coupon definition. The usage counter is
// left untouched for existing codes.
func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		c.Code, string(c.DiscountType), c.DiscountValue, c.MinOrderAmount,
		c.MaxUses, c.IsActive, c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// EachCode streams every stored coupon code to fn.
func (r *CouponRepository) EachCode(ctx context.Context, fn func(code string)) error {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return fmt.Errorf("listing coupon codes: %w", err)
	}
	var code string
	_, err = pgx.ForEachRow(rows, []any{&code}, func() error {
		fn(code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing coupon codes: %w", err)
	}
	return nil
}

// ExistingCodes returns the subset of codes already stored.
func (r *CouponRepository) ExistingCodes(ctx context.Context, codes []string) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, existingCouponCodesSQL, codes)
	if err != nil {
		return nil, fmt.Errorf("checking %d coupon codes: %w", len(codes), err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("checking %d coupon codes: %w", len(codes), err)
	}
	out := make(map[string]struct{}, len(found))
	for _, code := range found {
		out[code] = struct{}{}
	}
	return out, nil
}

// CopyCoupons bulk-inserts new coupons with COPY. Codes must not exist yet.
func (r *CouponRepository) CopyCoupons(ctx context.Context, coupons []coupon.Coupon) (int64, error) {
	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"coupons"},
		[]string{"code", "discount_type", "discount_value", "min_order_amount", "max_uses", "is_active", "expires_at"},
		pgx.CopyFromSlice(len(coupons), func(i int) ([]any, error) {
			c := coupons[i]
			return []any{
				c.Code, string(c.DiscountType), c.DiscountValue, c.MinOrderAmount,
				c.MaxUses, c.IsActive, c.ExpiresAt,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copying %d coupons: %w", len(coupons), err)
	}
	return n, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		maxUses      *int32
		usedCount    int32
		expiresAt    *time.Time
	)
	err := row.Scan(
		&c.Code, &discountType, &c.DiscountValue, &c.MinOrderAmount,
		&maxUses, &usedCount, &c.IsActive, &expiresAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	if maxUses != nil {
		v := int(*maxUses)
		c.MaxUses = &v
	}
	c.UsedCount = int(usedCount)
	c.ExpiresAt = expiresAt
	return c, err
}
