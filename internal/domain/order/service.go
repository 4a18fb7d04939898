package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/hearth-checkout/internal/domain/coupon"
	"github.com/xenking/hearth-checkout/internal/domain/product"
)

// maxNumberAttempts bounds order-number regeneration on collisions.
const maxNumberAttempts = 3

// Sentinel errors for order validation.
var (
	ErrEmptyItems   = errors.New("items required")
	ErrInvalidTotal = errors.New("order total must not be negative")
)

// ValidationError indicates a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductName string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %q", e.ProductName)
}

// InvalidPriceError indicates a line item has a negative unit price.
type InvalidPriceError struct {
	ProductName string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("unit price must not be negative for product %q", e.ProductName)
}

// PersistenceError indicates the order could not be committed. No part of the
// order was stored.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "persist order: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Customer holds buyer details captured at checkout.
type Customer struct {
	Name            string
	Email           string
	ShippingAddress string
	// UserID links the order to an authenticated buyer; nil for guests.
	UserID *string
}

// CartLine is one entry of the client-held cart snapshot.
type CartLine struct {
	ProductRef string
	Name       string
	UnitPrice  decimal.Decimal
	Quantity   int
	ImageRef   string
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Customer       Customer
	Items          []CartLine
	Coupon         *coupon.Application
	DeliveryCharge decimal.Decimal
	PaymentMethod  PaymentMethod
}

// Pricing is the breakdown of an order total.
type Pricing struct {
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	DeliveryCharge decimal.Decimal
	Total          decimal.Decimal
}

// Receipt is returned for a committed order.
type Receipt struct {
	ID            string
	Number        string
	PaymentMethod PaymentMethod
	Pricing
}

// Quote is a priced cart with an optional validated coupon.
type Quote struct {
	Coupon *coupon.Application
	Pricing
}

// Price computes subtotal, discount and grand total for the given lines.
func Price(items []CartLine, app *coupon.Application, deliveryCharge decimal.Decimal) (Pricing, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	discount := decimal.Zero
	if app != nil {
		discount = app.Discount(subtotal)
	}

	total := subtotal.Sub(discount).Add(deliveryCharge)
	if total.IsNegative() {
		return Pricing{}, ErrInvalidTotal
	}

	return Pricing{
		Subtotal:       subtotal.Round(2),
		Discount:       discount.Round(2),
		DeliveryCharge: deliveryCharge.Round(2),
		Total:          total.Round(2),
	}, nil
}

// Service encapsulates order placement business logic.
type Service struct {
	products product.Resolver
	coupons  coupon.Validator
	orders   Repository
	tracer   trace.Tracer
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Resolver,
	coupons coupon.Validator,
	orders Repository,
	tp trace.TracerProvider,
) *Service {
	return &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		tracer:   tp.Tracer("checkout/order"),
	}
}

// Quote prices the cart and validates couponCode against its subtotal. It
// persists nothing.
func (s *Service) Quote(ctx context.Context, items []CartLine, couponCode string, deliveryCharge decimal.Decimal) (*Quote, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	base, err := Price(items, nil, deliveryCharge)
	if err != nil {
		return nil, err
	}

	app, err := s.coupons.Validate(ctx, couponCode, base.Subtotal)
	if err != nil {
		return nil, err
	}

	pricing, err := Price(items, app, deliveryCharge)
	if err != nil {
		return nil, err
	}
	return &Quote{Coupon: app, Pricing: pricing}, nil
}

// PlaceOrder validates the request, prices it, resolves catalog references
// and commits the order with its items in a single unit of work.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Receipt, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := validateCustomer(req.Customer); err != nil {
		return nil, err
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	method := req.PaymentMethod
	if method == "" {
		method = PaymentCOD
	}
	if method != PaymentCOD && method != PaymentOnline {
		return nil, &ValidationError{Field: "payment_method", Reason: "must be cod or online"}
	}

	pricing, err := Price(req.Items, req.Coupon, req.DeliveryCharge)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:              uuid.New().String(),
		CustomerName:    strings.TrimSpace(req.Customer.Name),
		CustomerEmail:   strings.TrimSpace(req.Customer.Email),
		ShippingAddress: strings.TrimSpace(req.Customer.ShippingAddress),
		UserID:          req.Customer.UserID,
		Subtotal:        pricing.Subtotal,
		Discount:        pricing.Discount,
		DeliveryCharge:  pricing.DeliveryCharge,
		Total:           pricing.Total,
		PaymentMethod:   method,
		Status:          StatusPending,
		PaymentStatus:   PaymentUnpaid,
		Items:           s.snapshotItems(ctx, req.Items),
	}
	if req.Coupon != nil {
		o.CouponCode = req.Coupon.Code
	}

	if err := s.create(ctx, o); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.number", o.Number),
		attribute.Int("order.items", len(o.Items)),
	)
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("total", o.Total.StringFixed(2)),
		zap.String("payment_method", string(o.PaymentMethod)),
		zap.String("coupon", o.CouponCode),
	)

	return &Receipt{
		ID:            o.ID,
		Number:        o.Number,
		PaymentMethod: o.PaymentMethod,
		Pricing:       pricing,
	}, nil
}

// create persists o, regenerating the order number on collisions.
func (s *Service) create(ctx context.Context, o *Order) error {
	for attempt := 1; ; attempt++ {
		o.Number = NewNumber()

		err := s.orders.Create(ctx, o)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrDuplicateNumber) && attempt < maxNumberAttempts:
			zctx.From(ctx).Warn("Order number collision, retrying",
				zap.String("order_number", o.Number),
				zap.Int("attempt", attempt),
			)
			continue
		case coupon.Reason(err) != "":
			// The coupon changed since validation; nothing was committed.
			return err
		default:
			return &PersistenceError{Err: err}
		}
	}
}

// snapshotItems copies cart lines into order items and attaches catalog
// product ids where the name matches exactly. Lookup failures never block
// checkout.
func (s *Service) snapshotItems(ctx context.Context, lines []CartLine) []Item {
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		names = append(names, line.Name)
	}

	ids, err := s.products.ResolveNames(ctx, names)
	if err != nil {
		zctx.From(ctx).Warn("Product name resolution failed, storing items without references",
			zap.Error(err),
		)
		ids = nil
	}

	items := make([]Item, len(lines))
	for i, line := range lines {
		items[i] = Item{
			ProductID:   ids[line.Name],
			ProductName: line.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		}
	}
	return items
}

func validateCustomer(c Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "customer_name", Reason: "is required"}
	}
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return &ValidationError{Field: "customer_email", Reason: "is required"}
	}
	if !strings.Contains(email, "@") {
		return &ValidationError{Field: "customer_email", Reason: "is not a valid email address"}
	}
	if strings.TrimSpace(c.ShippingAddress) == "" {
		return &ValidationError{Field: "shipping_address", Reason: "is required"}
	}
	if c.UserID != nil {
		if _, err := uuid.Parse(*c.UserID); err != nil {
			return &ValidationError{Field: "user_id", Reason: "must be a UUID"}
		}
	}
	return nil
}

func validateItems(items []CartLine) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			return &ValidationError{Field: "product_name", Reason: "is required"}
		}
		if item.Quantity <= 0 {
			return &InvalidQuantityError{ProductName: item.Name}
		}
		if item.UnitPrice.IsNegative() {
			return &InvalidPriceError{ProductName: item.Name}
		}
	}
	return nil
}
