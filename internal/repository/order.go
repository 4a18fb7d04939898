package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/hearth-checkout/internal/domain/coupon"
	"github.com/xenking/hearth-checkout/internal/domain/order"
	"github.com/xenking/hearth-checkout/internal/events"
)

const (
	insertOrderSQL = `INSERT INTO orders (
		id, order_number, customer_name, customer_email, shipping_address, user_id,
		subtotal, discount_amount, delivery_charge, total_amount, coupon_code,
		payment_method, status, payment_status
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING created_at`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, line_no, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	// Conditional increment: concurrent redemptions of the last use cannot
	// both succeed.
	redeemCouponSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE code = $1
		  AND is_active
		  AND (max_uses IS NULL OR used_count < max_uses)
		  AND (expires_at IS NULL OR expires_at >= now())`

	getOrderSQL = `SELECT id::text, order_number, customer_name, customer_email, shipping_address, user_id::text,
		subtotal, discount_amount, delivery_charge, total_amount, coalesce(coupon_code, ''),
		payment_method, status, payment_status, coalesce(payment_invoice_id, ''), created_at
		FROM orders WHERE id = $1 AND NOT is_trashed`

	listOrderItemsSQL = `SELECT coalesce(product_id::text, ''), product_name, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY line_no`

	markPaidSQL = `UPDATE orders
		SET payment_status = 'paid', payment_invoice_id = $2, updated_at = now()
		WHERE id = $1 AND payment_status = 'unpaid'`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	orderNumberConstraint = "orders_order_number_key"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order header, its items, the coupon redemption and an
// order.placed outbox event in one transaction. Any failure rolls back all
// of them.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertOrderSQL,
			o.ID, o.Number, o.CustomerName, o.CustomerEmail, o.ShippingAddress, o.UserID,
			o.Subtotal, o.Discount, o.DeliveryCharge, o.Total, nullIfEmpty(o.CouponCode),
			string(o.PaymentMethod), string(o.Status), string(o.PaymentStatus),
		).Scan(&o.CreatedAt)
		if err != nil {
			if isUniqueViolation(err, orderNumberConstraint) {
				return order.ErrDuplicateNumber
			}
			return fmt.Errorf("inserting order %q: %w", o.ID, err)
		}

		batch := &pgx.Batch{}
		for i, it := range o.Items {
			batch.Queue(insertOrderItemSQL,
				o.ID, i+1, nullIfEmpty(it.ProductID), it.ProductName, it.Quantity, it.UnitPrice,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting items for order %q: %w", o.ID, err)
		}

		if o.CouponCode != "" {
			tag, err := tx.Exec(ctx, redeemCouponSQL, o.CouponCode)
			if err != nil {
				return fmt.Errorf("redeeming coupon %q: %w", o.CouponCode, err)
			}
			if tag.RowsAffected() == 0 {
				return errors.Wrapf(redeemFailure(ctx, tx, o.CouponCode), "redeem coupon %q", o.CouponCode)
			}
		}

		return insertEvent(ctx, tx, events.OrderPlaced(o))
	})
}

// redeemFailure re-reads a coupon whose redemption matched no row and
// returns the coupon error describing its current state.
func redeemFailure(ctx context.Context, tx pgx.Tx, code string) error {
	rows, err := tx.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return fmt.Errorf("re-reading coupon %q: %w", code, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return coupon.ErrNotFound
	case err != nil:
		return fmt.Errorf("re-reading coupon %q: %w", code, err)
	}
	if err := c.Redeemable(time.Now()); err != nil {
		return err
	}
	// Clock skew against the database; usage is the only condition left.
	return coupon.ErrUsageExhausted
}

// Get returns the order with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	rows, err = r.pool.Query(ctx, listOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing items for order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("listing items for order %q: %w", id, err)
	}

	return &o, nil
}

// MarkPaid flips an unpaid order to paid and records an order.paid event in
// the same transaction. It returns false without error when the order was
// already paid.
func (r *OrderRepository) MarkPaid(ctx context.Context, id, invoiceID string) (bool, error) {
	var changed bool
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, markPaidSQL, id, invoiceID)
		if err != nil {
			return fmt.Errorf("marking order %q paid: %w", id, err)
		}
		if tag.RowsAffected() == 1 {
			changed = true
			return insertEvent(ctx, tx, events.OrderPaid(id, invoiceID))
		}

		var exists bool
		if err := tx.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
			return fmt.Errorf("checking order %q: %w", id, err)
		}
		if !exists {
			return order.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                             order.Order
		method, status, paymentStatus string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerName, &o.CustomerEmail, &o.ShippingAddress, &o.UserID,
		&o.Subtotal, &o.Discount, &o.DeliveryCharge, &o.Total, &o.CouponCode,
		&method, &status, &paymentStatus, &o.PaymentInvoiceID, &o.CreatedAt,
	)
	o.PaymentMethod = order.PaymentMethod(method)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice)
	return it, err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
