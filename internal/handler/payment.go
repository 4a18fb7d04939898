package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/hearth-checkout/internal/domain/payment"
	"github.com/xenking/hearth-checkout/internal/domain/settings"
)

// InitiatePayment handles POST /api/payments/checkout.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req payment.InitiateRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "full_name":
			req.Buyer.Name, err = optString(d)
		case "email":
			req.Buyer.Email, err = optString(d)
		case "amount":
			var amount *decimal.Decimal
			if amount, err = optDecimal(d); amount != nil {
				req.Amount = *amount
			}
		case "order_id":
			req.OrderID, err = optString(d)
		case "order_number":
			req.OrderNumber, err = optString(d)
		case "redirect_url":
			req.URLs.Success, err = optString(d)
		case "cancel_url":
			req.URLs.Cancel, err = optString(d)
		default:
			err = d.Skip()
		}
		return fieldErr(key, err)
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	checkout, err := h.payments.Initiate(r.Context(), req)
	if err != nil {
		h.paymentError(w, r, err, "Payment initiation failed")
		return
	}

	var e jx.Encoder
	e.ObjStart()
	str(&e, "payment_url", checkout.PaymentURL)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// VerifyPayment handles POST /api/payments/verify.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var invoiceID string
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "invoice_id" {
			return d.Skip()
		}
		var err error
		invoiceID, err = optString(d)
		return fieldErr(key, err)
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.payments.Verify(r.Context(), invoiceID)
	if err != nil {
		h.paymentError(w, r, err, "Payment verification failed")
		return
	}

	var e jx.Encoder
	e.ObjStart()
	str(&e, "status", out.Status)
	str(&e, "full_name", out.FullName)
	str(&e, "email", out.Email)
	str(&e, "amount", out.Amount)
	str(&e, "payment_method", out.PaymentMethod)
	str(&e, "transaction_id", out.TransactionID)
	str(&e, "invoice_id", out.InvoiceID)
	str(&e, "order_id", out.OrderID)
	str(&e, "order_number", out.OrderNumber)
	e.FieldStart("settled")
	e.Bool(out.Settled)
	e.FieldStart("already_settled")
	e.Bool(out.AlreadySettled)
	e.FieldStart("duplicate_payment")
	e.Bool(out.DuplicatePayment)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) paymentError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var notConfigured *settings.NotConfiguredError
	switch {
	case errors.Is(err, payment.ErrMissingFields),
		errors.Is(err, payment.ErrOrderNotFound),
		errors.Is(err, payment.ErrAlreadyPaid),
		errors.Is(err, payment.ErrAmountMismatch),
		errors.Is(err, payment.ErrGatewayRejected):
		writeError(w, http.StatusBadRequest, publicMessage(err))
	case errors.Is(err, payment.ErrMissingInvoiceID):
		writeError(w, http.StatusBadRequest, "invoice_id is required")
	case errors.As(err, &notConfigured):
		zctx.From(r.Context()).Error("Payment gateway not configured", zap.Error(err))
		writeError(w, http.StatusInternalServerError, notConfigured.Error())
	default:
		zctx.From(r.Context()).Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// publicMessage strips wrapping context, keeping typed error text such as the
// gateway's own message or the list of missing fields.
func publicMessage(err error) string {
	var (
		missing *payment.MissingFieldsError
		gateway *payment.GatewayError
	)
	switch {
	case errors.As(err, &missing):
		return missing.Error()
	case errors.As(err, &gateway):
		return gateway.Error()
	case errors.Is(err, payment.ErrOrderNotFound):
		return "Order not found"
	case errors.Is(err, payment.ErrAlreadyPaid):
		return "Order is already paid"
	case errors.Is(err, payment.ErrAmountMismatch):
		return "Amount does not match the order total"
	default:
		return err.Error()
	}
}
