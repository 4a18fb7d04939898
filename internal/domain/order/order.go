package order

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order. Only admin actions move it past
// pending.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusReturned   Status = "returned"
	StatusCanceled   Status = "canceled"
)

// PaymentStatus is the payment dimension of an order.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// PaymentMethod selects how the buyer pays.
type PaymentMethod string

const (
	// PaymentCOD is cash on delivery; no gateway is involved.
	PaymentCOD PaymentMethod = "cod"
	// PaymentOnline redirects the buyer to the payment gateway.
	PaymentOnline PaymentMethod = "online"
)

// ParsePaymentMethod parses a payment method, defaulting to cash on delivery.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "", PaymentCOD:
		return PaymentCOD, nil
	case PaymentOnline:
		return PaymentOnline, nil
	default:
		return "", &ValidationError{Field: "payment_method", Reason: "must be cod or online"}
	}
}

// Order is a single committed checkout transaction.
type Order struct {
	ID               string
	Number           string
	CustomerName     string
	CustomerEmail    string
	ShippingAddress  string
	UserID           *string
	Subtotal         decimal.Decimal
	Discount         decimal.Decimal
	DeliveryCharge   decimal.Decimal
	Total            decimal.Decimal
	CouponCode       string
	PaymentMethod    PaymentMethod
	Status           Status
	PaymentStatus    PaymentStatus
	PaymentInvoiceID string
	Items            []Item
	CreatedAt        time.Time
}

// Item is an immutable line snapshot owned by one order.
type Item struct {
	// ProductID is empty when the name did not resolve to a catalog product.
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order, its items, the coupon redemption (when
	// CouponCode is set) and an order.placed event as one transaction.
	Create(ctx context.Context, o *Order) error
	// Get returns the order header without items.
	Get(ctx context.Context, id string) (*Order, error)
	// MarkPaid moves an unpaid order to paid and records the invoice id. It
	// reports whether this call changed the row; an already paid order is
	// left untouched.
	MarkPaid(ctx context.Context, id, invoiceID string) (bool, error)
}

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateNumber is returned by repositories when the generated order
	// number collides with an existing one.
	ErrDuplicateNumber = errors.New("order number already taken")
)

// NewNumber generates a short human-facing order code such as ORD-1A2B3C4D.
// Uniqueness is enforced by storage; callers retry on ErrDuplicateNumber.
func NewNumber() string {
	id := uuid.New()
	return "ORD-" + strings.ToUpper(hex.EncodeToString(id[:4]))
}
