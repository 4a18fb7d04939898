// Package uddoktapay implements payment.Gateway over the UddoktaPay hosted
// checkout API.
package uddoktapay

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/hearth-checkout/internal/domain/payment"
	"github.com/xenking/hearth-checkout/internal/domain/settings"
)

// APIKeyHeader carries the merchant API key on every request.
const APIKeyHeader = "RT-UDDOKTAPAY-API-KEY"

const maxResponseBytes = 1 << 20

// CredentialsProvider resolves the API key and base URL for each call.
type CredentialsProvider interface {
	UddoktaPay(ctx context.Context) (settings.UddoktaPayCredentials, error)
}

var _ payment.Gateway = (*Client)(nil)

// Client talks to the UddoktaPay API.
type Client struct {
	creds CredentialsProvider
	http  *http.Client
}

// NewClient creates a Client. A nil httpClient gets a 15 second timeout.
func NewClient(creds CredentialsProvider, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{creds: creds, http: httpClient}
}

// CreateCheckout opens a hosted payment page and returns its URL.
func (c *Client) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (string, error) {
	body := encodeCheckout(req)

	resp, err := c.post(ctx, "/checkout-v2", body)
	if err != nil {
		return "", err
	}

	res, err := decodeCheckout(resp)
	if err != nil {
		return "", errors.Wrap(err, "decode checkout response")
	}
	if !res.ok || res.paymentURL == "" {
		zctx.From(ctx).Warn("UddoktaPay rejected checkout",
			zap.String("order_id", req.Metadata.OrderID),
			zap.String("message", res.message),
		)
		return "", &payment.GatewayError{Message: res.message}
	}
	return res.paymentURL, nil
}

// VerifyPayment fetches the state of an invoice.
func (c *Client) VerifyPayment(ctx context.Context, invoiceID string) (*payment.Verification, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("invoice_id")
	e.Str(invoiceID)
	e.ObjEnd()

	resp, err := c.post(ctx, "/verify-payment", e.Bytes())
	if err != nil {
		return nil, err
	}

	v, err := decodeVerification(resp)
	if err != nil {
		return nil, err
	}
	if v.InvoiceID == "" {
		v.InvoiceID = invoiceID
	}
	return v, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	creds, err := c.creds.UddoktaPay(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(APIKeyHeader, creds.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "POST %s", path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s response", path)
	}

	zctx.From(ctx).Debug("UddoktaPay call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, errors.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	// 4xx bodies carry {status:false,message} and are decoded by the caller.
	return data, nil
}
