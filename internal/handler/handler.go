// Package handler exposes the checkout operations over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/xenking/hearth-checkout/internal/domain/coupon"
	"github.com/xenking/hearth-checkout/internal/domain/order"
	"github.com/xenking/hearth-checkout/internal/domain/payment"
)

const maxBodyBytes = 1 << 20

// OrderService prices carts and places orders.
type OrderService interface {
	Quote(ctx context.Context, items []order.CartLine, couponCode string, deliveryCharge decimal.Decimal) (*order.Quote, error)
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Receipt, error)
}

// PaymentService opens and verifies online payments.
type PaymentService interface {
	Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.Checkout, error)
	Verify(ctx context.Context, invoiceID string) (*payment.Outcome, error)
}

// Config holds non-dependency handler settings.
type Config struct {
	// DeliveryCharge is added to every order total.
	DeliveryCharge decimal.Decimal
	// RequestTimeout bounds each API request.
	RequestTimeout time.Duration
}

// Handler serves the /api routes.
type Handler struct {
	orders         OrderService
	coupons        coupon.Validator
	payments       PaymentService
	deliveryCharge decimal.Decimal
	timeout        time.Duration
}

// New creates a Handler.
func New(cfg Config, orders OrderService, coupons coupon.Validator, payments PaymentService) *Handler {
	return &Handler{
		orders:         orders,
		coupons:        coupons,
		payments:       payments,
		deliveryCharge: cfg.DeliveryCharge,
		timeout:        cfg.RequestTimeout,
	}
}

// Probes are the liveness and readiness handlers mounted next to the API.
type Probes struct {
	Live  http.HandlerFunc
	Ready http.HandlerFunc
}

// Router mounts the API under /api and the probes at the root.
func (h *Handler) Router(probes Probes) http.Handler {
	r := chi.NewRouter()
	r.Get("/livez", probes.Live)
	r.Get("/readyz", probes.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequestSize(maxBodyBytes))
		r.Use(middleware.AllowContentType("application/json"))
		if h.timeout > 0 {
			r.Use(middleware.Timeout(h.timeout))
		}

		r.Post("/orders", h.PlaceOrder)
		r.Post("/coupons/validate", h.ValidateCoupon)
		r.Post("/payments/checkout", h.InitiatePayment)
		r.Post("/payments/verify", h.VerifyPayment)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}
