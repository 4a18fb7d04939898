// Package payment coordinates redirect-based online payments: it opens a
// checkout with the gateway for an unpaid order and later settles the order
// when the gateway confirms completion.
package payment

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatusCompleted is the only gateway status that settles an order.
const StatusCompleted = "COMPLETED"

// Metadata is the correlation data round-tripped through the gateway.
type Metadata struct {
	OrderID     string
	OrderNumber string
}

// ParsedOrderID returns the canonical order id if it is a valid UUID.
func (m *Metadata) ParsedOrderID() (string, bool) {
	if m == nil {
		return "", false
	}
	id, err := uuid.Parse(strings.TrimSpace(m.OrderID))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// CheckoutRequest is sent to the gateway to open a hosted payment page.
type CheckoutRequest struct {
	FullName   string
	Email      string
	Amount     decimal.Decimal
	Metadata   Metadata
	SuccessURL string
	CancelURL  string
}

// Verification is the gateway's answer for one invoice.
type Verification struct {
	Status        string
	FullName      string
	Email         string
	Amount        string
	PaymentMethod string
	TransactionID string
	InvoiceID     string
	// Metadata is nil when the gateway echoed nothing usable.
	Metadata *Metadata
}

// Gateway is an external payment processor reached through a redirect.
type Gateway interface {
	// CreateCheckout returns the URL the buyer is redirected to. A rejection
	// by the gateway is reported as *GatewayError.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
	// VerifyPayment asks the gateway for the state of an invoice.
	VerifyPayment(ctx context.Context, invoiceID string) (*Verification, error)
}

// Outcome is the result of a verification, returned to the caller.
type Outcome struct {
	Status        string
	FullName      string
	Email         string
	Amount        string
	PaymentMethod string
	TransactionID string
	InvoiceID     string
	OrderID       string
	OrderNumber   string
	// Settled reports that the referenced order is paid by this invoice.
	Settled bool
	// AlreadySettled reports that the order was paid before this call.
	AlreadySettled bool
	// DuplicatePayment reports a completed payment for an order already
	// paid by another invoice. The order is left as is and the capture
	// needs a refund.
	DuplicatePayment bool
}

// OutcomeCache stores settled outcomes by invoice id so replays skip the
// gateway.
type OutcomeCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, invoiceID string) (*Outcome, error)
	Put(ctx context.Context, invoiceID string, o *Outcome) error
}

var (
	// ErrMissingFields is matched by *MissingFieldsError.
	ErrMissingFields = errors.New("missing required fields")
	// ErrMissingInvoiceID is returned by Verify for a blank invoice id.
	ErrMissingInvoiceID = errors.New("invoice_id is required")
	// ErrOrderNotFound is returned when initiating payment for an unknown order.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAlreadyPaid is returned when initiating payment for a paid order.
	ErrAlreadyPaid = errors.New("order is already paid")
	// ErrAmountMismatch is returned when the requested amount differs from
	// the order total.
	ErrAmountMismatch = errors.New("amount does not match order total")
	// ErrGatewayRejected is matched by *GatewayError.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")
)

// MissingFieldsError lists the absent initiation fields.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *MissingFieldsError) Is(target error) bool {
	return target == ErrMissingFields
}

// GatewayError carries the gateway's own failure message.
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string {
	if e.Message == "" {
		return "Payment creation failed"
	}
	return e.Message
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrGatewayRejected
}
