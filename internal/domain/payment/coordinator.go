package payment

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/hearth-checkout/internal/domain/order"
)

// Orders is the slice of order persistence the coordinator needs.
type Orders interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	MarkPaid(ctx context.Context, id, invoiceID string) (bool, error)
}

// Buyer identifies the paying customer on the hosted page.
type Buyer struct {
	Name  string
	Email string
}

// RedirectURLs are where the gateway sends the buyer afterwards.
type RedirectURLs struct {
	Success string
	Cancel  string
}

// InitiateRequest opens an online payment for an existing order.
type InitiateRequest struct {
	OrderID     string
	OrderNumber string
	Amount      decimal.Decimal
	Buyer       Buyer
	URLs        RedirectURLs
}

// Checkout is the result of a successful initiation.
type Checkout struct {
	PaymentURL string
}

// Coordinator initiates gateway checkouts and settles orders on verification.
type Coordinator struct {
	gateway Gateway
	orders  Orders
	cache   OutcomeCache
	tracer  trace.Tracer

	initiated  metric.Int64Counter
	settled    metric.Int64Counter
	replays    metric.Int64Counter
	mismatches metric.Int64Counter
}

// NewCoordinator creates a Coordinator. cache may be nil.
func NewCoordinator(
	gateway Gateway,
	orders Orders,
	cache OutcomeCache,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Coordinator, error) {
	meter := mp.Meter("checkout/payment")

	c := &Coordinator{
		gateway: gateway,
		orders:  orders,
		cache:   cache,
		tracer:  tp.Tracer("checkout/payment"),
	}

	var err error
	if c.initiated, err = meter.Int64Counter("checkout.payment.initiated",
		metric.WithDescription("Online payments opened with the gateway"),
	); err != nil {
		return nil, errors.Wrap(err, "initiated counter")
	}
	if c.settled, err = meter.Int64Counter("checkout.payment.settled",
		metric.WithDescription("Orders moved from unpaid to paid"),
	); err != nil {
		return nil, errors.Wrap(err, "settled counter")
	}
	if c.replays, err = meter.Int64Counter("checkout.payment.replays",
		metric.WithDescription("Verifications for orders that were already paid"),
	); err != nil {
		return nil, errors.Wrap(err, "replays counter")
	}
	if c.mismatches, err = meter.Int64Counter("checkout.payment.mismatches",
		metric.WithDescription("Completed payments that could not be matched to an order"),
	); err != nil {
		return nil, errors.Wrap(err, "mismatches counter")
	}

	return c, nil
}

// Initiate validates the request against the stored order and opens a
// hosted checkout. It never changes the order.
func (c *Coordinator) Initiate(ctx context.Context, req InitiateRequest) (*Checkout, error) {
	ctx, span := c.tracer.Start(ctx, "payment.Initiate",
		trace.WithAttributes(attribute.String("order.id", req.OrderID)),
	)
	defer span.End()

	if err := validateInitiate(req); err != nil {
		return nil, err
	}

	orderID, err := uuid.Parse(strings.TrimSpace(req.OrderID))
	if err != nil {
		return nil, ErrOrderNotFound
	}

	o, err := c.orders.Get(ctx, orderID.String())
	switch {
	case errors.Is(err, order.ErrNotFound):
		return nil, ErrOrderNotFound
	case err != nil:
		return nil, errors.Wrap(err, "load order")
	}
	if o.PaymentStatus == order.PaymentPaid {
		return nil, ErrAlreadyPaid
	}
	if !req.Amount.Equal(o.Total) {
		return nil, errors.Wrapf(ErrAmountMismatch, "requested %s, order total %s",
			req.Amount.StringFixed(2), o.Total.StringFixed(2))
	}

	url, err := c.gateway.CreateCheckout(ctx, CheckoutRequest{
		FullName: strings.TrimSpace(req.Buyer.Name),
		Email:    strings.TrimSpace(req.Buyer.Email),
		Amount:   o.Total,
		Metadata: Metadata{
			OrderID:     o.ID,
			OrderNumber: o.Number,
		},
		SuccessURL: req.URLs.Success,
		CancelURL:  req.URLs.Cancel,
	})
	if err != nil {
		span.RecordError(err)
		zctx.From(ctx).Warn("Gateway checkout failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		if errors.Is(err, ErrGatewayRejected) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create checkout")
	}

	c.initiated.Add(ctx, 1)
	zctx.From(ctx).Info("Payment initiated",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("amount", o.Total.StringFixed(2)),
	)
	return &Checkout{PaymentURL: url}, nil
}

// Verify asks the gateway for the invoice state and settles the referenced
// order when the payment is COMPLETED. Repeated calls are safe: an order is
// moved to paid at most once. A completed invoice for an order already paid
// by another invoice is reported as a duplicate payment and never cached.
func (c *Coordinator) Verify(ctx context.Context, invoiceID string) (*Outcome, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, ErrMissingInvoiceID
	}

	ctx, span := c.tracer.Start(ctx, "payment.Verify",
		trace.WithAttributes(attribute.String("payment.invoice_id", invoiceID)),
	)
	defer span.End()

	lg := zctx.From(ctx).With(zap.String("invoice_id", invoiceID))

	if cached := c.cached(ctx, invoiceID); cached != nil {
		c.replays.Add(ctx, 1)
		lg.Debug("Returning cached settlement")
		return cached, nil
	}

	v, err := c.gateway.VerifyPayment(ctx, invoiceID)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "verify payment")
	}

	out := newOutcome(invoiceID, v)
	if v.Status != StatusCompleted {
		lg.Info("Payment not completed", zap.String("status", v.Status))
		return out, nil
	}

	orderID, ok := v.Metadata.ParsedOrderID()
	if !ok {
		c.mismatches.Add(ctx, 1)
		lg.Warn("Completed payment without a valid order reference",
			zap.String("order_id", out.OrderID),
		)
		return out, nil
	}

	changed, err := c.orders.MarkPaid(ctx, orderID, invoiceID)
	switch {
	case errors.Is(err, order.ErrNotFound):
		c.mismatches.Add(ctx, 1)
		lg.Warn("Completed payment references unknown order", zap.String("order_id", orderID))
		return out, nil
	case err != nil:
		span.RecordError(err)
		return nil, errors.Wrap(err, "mark order paid")
	}

	out.OrderID = orderID
	if changed {
		c.settled.Add(ctx, 1)
		lg.Info("Order settled", zap.String("order_id", orderID))
	} else {
		paidBy, err := c.paidInvoice(ctx, orderID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		out.AlreadySettled = true
		if paidBy != invoiceID {
			c.mismatches.Add(ctx, 1)
			lg.Warn("Duplicate payment for an already paid order",
				zap.String("order_id", orderID),
				zap.String("paid_invoice_id", paidBy),
			)
			out.DuplicatePayment = true
			return out, nil
		}
		c.replays.Add(ctx, 1)
		lg.Info("Order already settled", zap.String("order_id", orderID))
	}
	out.Settled = true

	if c.cache != nil {
		if err := c.cache.Put(ctx, invoiceID, out); err != nil {
			lg.Warn("Cache settled outcome", zap.Error(err))
		}
	}
	return out, nil
}

// paidInvoice returns the invoice recorded on a paid order.
func (c *Coordinator) paidInvoice(ctx context.Context, orderID string) (string, error) {
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return "", errors.Wrap(err, "load settled order")
	}
	return o.PaymentInvoiceID, nil
}

// cached returns a stored settled outcome marked as a replay, or nil.
func (c *Coordinator) cached(ctx context.Context, invoiceID string) *Outcome {
	if c.cache == nil {
		return nil
	}
	o, err := c.cache.Get(ctx, invoiceID)
	if err != nil {
		zctx.From(ctx).Warn("Read settled outcome cache", zap.Error(err))
		return nil
	}
	if o == nil || !o.Settled {
		return nil
	}
	replay := *o
	replay.AlreadySettled = true
	return &replay
}

func newOutcome(invoiceID string, v *Verification) *Outcome {
	out := &Outcome{
		Status:        v.Status,
		FullName:      v.FullName,
		Email:         v.Email,
		Amount:        v.Amount,
		PaymentMethod: v.PaymentMethod,
		TransactionID: v.TransactionID,
		InvoiceID:     invoiceID,
	}
	if v.Metadata != nil {
		out.OrderID = v.Metadata.OrderID
		out.OrderNumber = v.Metadata.OrderNumber
	}
	return out
}

func validateInitiate(req InitiateRequest) error {
	var missing []string
	if strings.TrimSpace(req.Buyer.Name) == "" {
		missing = append(missing, "full_name")
	}
	if strings.TrimSpace(req.Buyer.Email) == "" {
		missing = append(missing, "email")
	}
	if !req.Amount.IsPositive() {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		missing = append(missing, "order_id")
	}
	if strings.TrimSpace(req.URLs.Success) == "" {
		missing = append(missing, "redirect_url")
	}
	if strings.TrimSpace(req.URLs.Cancel) == "" {
		missing = append(missing, "cancel_url")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}
