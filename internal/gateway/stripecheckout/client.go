// Package stripecheckout implements payment.Gateway with Stripe Checkout
// Sessions.
package stripecheckout

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"

	"github.com/xenking/hearth-checkout/internal/domain/payment"
)

// sessionPlaceholder is expanded by Stripe into the session id on redirect.
const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// KeyProvider resolves the secret key for each call.
type KeyProvider interface {
	StripeKey(ctx context.Context) (string, error)
}

var _ payment.Gateway = (*Client)(nil)

// Client opens and inspects Stripe Checkout Sessions.
type Client struct {
	keys     KeyProvider
	currency string
	backends *stripe.Backends
}

// NewClient creates a Client charging in currency. backends may be nil.
func NewClient(keys KeyProvider, currency string, backends *stripe.Backends) *Client {
	return &Client{
		keys:     keys,
		currency: strings.ToLower(currency),
		backends: backends,
	}
}

func (c *Client) api(ctx context.Context) (*client.API, error) {
	key, err := c.keys.StripeKey(ctx)
	if err != nil {
		return nil, err
	}
	return client.New(key, c.backends), nil
}

// CreateCheckout creates a payment-mode session and returns its hosted URL.
func (c *Client) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (string, error) {
	sc, err := c.api(ctx)
	if err != nil {
		return "", err
	}

	params := sessionParams(req, c.currency)
	params.Context = ctx

	s, err := sc.CheckoutSessions.New(params)
	if err != nil {
		return "", gatewayError(err)
	}

	zctx.From(ctx).Debug("Stripe session created",
		zap.String("session_id", s.ID),
		zap.String("order_id", req.Metadata.OrderID),
	)
	return s.URL, nil
}

// VerifyPayment loads a session by id. invoiceID is the session id.
func (c *Client) VerifyPayment(ctx context.Context, invoiceID string) (*payment.Verification, error) {
	sc, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := sc.CheckoutSessions.Get(invoiceID, params)
	if err != nil {
		return nil, gatewayError(err)
	}
	return verification(s), nil
}

func sessionParams(req payment.CheckoutRequest, currency string) *stripe.CheckoutSessionParams {
	return &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withSessionID(req.SuccessURL)),
		CancelURL:         stripe.String(req.CancelURL),
		CustomerEmail:     stripe.String(req.Email),
		ClientReferenceID: stripe.String(req.Metadata.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(minorUnits(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Order " + req.Metadata.OrderNumber),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"order_id":     req.Metadata.OrderID,
			"order_number": req.Metadata.OrderNumber,
			"full_name":    req.FullName,
		},
	}
}

// withSessionID appends the session id query so the return page can verify.
func withSessionID(u string) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "invoice_id=" + sessionPlaceholder
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func verification(s *stripe.CheckoutSession) *payment.Verification {
	v := &payment.Verification{
		Status:    status(s),
		Amount:    decimal.New(s.AmountTotal, -2).StringFixed(2),
		InvoiceID: s.ID,
	}
	if s.CustomerDetails != nil {
		v.FullName = s.CustomerDetails.Name
		v.Email = s.CustomerDetails.Email
	}
	if v.FullName == "" {
		v.FullName = s.Metadata["full_name"]
	}
	if v.Email == "" {
		v.Email = s.CustomerEmail
	}
	if len(s.PaymentMethodTypes) > 0 {
		v.PaymentMethod = s.PaymentMethodTypes[0]
	}
	if s.PaymentIntent != nil {
		v.TransactionID = s.PaymentIntent.ID
	}
	if id, ok := s.Metadata["order_id"]; ok {
		v.Metadata = &payment.Metadata{
			OrderID:     id,
			OrderNumber: s.Metadata["order_number"],
		}
	}
	return v
}

// status maps a session onto the gateway status vocabulary.
func status(s *stripe.CheckoutSession) string {
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return payment.StatusCompleted
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return "EXPIRED"
	default:
		return "PENDING"
	}
}

func gatewayError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode < 500 {
		return &payment.GatewayError{Message: stripeErr.Msg}
	}
	return errors.Wrap(err, "stripe")
}
