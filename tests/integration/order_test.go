//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"testing"
)

var orderNumberPattern = regexp.MustCompile(`^ORD-`)

func TestPlaceOrder_CashOnDeliveryWithCoupon(t *testing.T) {
	resp := doPost(t, "/api/orders", sofaOrder("save10", "cod"))
	defer resp.Body.Close()

	expectStatus(t, resp, http.StatusOK)

	order := decodeJSON[orderResponse](t, resp)
	if order.ID == "" {
		t.Fatal("order id is empty")
	}
	if !orderNumberPattern.MatchString(order.OrderNumber) {
		t.Errorf("order number: got %q", order.OrderNumber)
	}
	if order.Subtotal != 100 || order.DiscountAmount != 10 || order.DeliveryCharge != 15 {
		t.Errorf("pricing: got subtotal %v discount %v delivery %v",
			order.Subtotal, order.DiscountAmount, order.DeliveryCharge)
	}
	if order.TotalAmount != 105 {
		t.Errorf("total: got %v, want 105", order.TotalAmount)
	}
	if order.CouponCode != "SAVE10" {
		t.Errorf("coupon: got %q, want SAVE10", order.CouponCode)
	}
	if order.PaymentMethod != "cod" {
		t.Errorf("payment method: got %q, want cod", order.PaymentMethod)
	}
}

func TestPlaceOrder_CouponRejected(t *testing.T) {
	tests := []struct {
		name   string
		req    orderRequest
		reason string
	}{
		{
			name: "below minimum",
			req: orderRequest{
				CustomerName:    "Rahim Uddin",
				CustomerEmail:   "rahim@example.com",
				ShippingAddress: "Dhaka",
				CouponCode:      "FLAT20",
				PaymentMethod:   "online",
				Items:           []orderItemRequest{{ProductName: "Side Table", Quantity: 2, UnitPrice: "20.00"}},
			},
			reason: "minimum_not_met",
		},
		{name: "expired", req: sofaOrder("EXPIRED1", "cod"), reason: "expired"},
		{name: "unknown", req: sofaOrder("NOPE", "cod"), reason: "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doPost(t, "/api/orders", tt.req)
			defer resp.Body.Close()

			expectStatus(t, resp, http.StatusUnprocessableEntity)

			body := decodeJSON[errorResponse](t, resp)
			if body.Reason != tt.reason {
				t.Errorf("reason: got %q, want %q", body.Reason, tt.reason)
			}
		})
	}
}

func TestPlaceOrder_WithoutCouponAfterRejection(t *testing.T) {
	req := orderRequest{
		CustomerName:    "Rahim Uddin",
		CustomerEmail:   "rahim@example.com",
		ShippingAddress: "Dhaka",
		PaymentMethod:   "online",
		Items:           []orderItemRequest{{ProductName: "Side Table", Quantity: 2, UnitPrice: "20.00"}},
	}

	resp := doPost(t, "/api/orders", req)
	defer resp.Body.Close()

	expectStatus(t, resp, http.StatusOK)

	order := decodeJSON[orderResponse](t, resp)
	if order.TotalAmount != 55 {
		t.Errorf("total: got %v, want 55", order.TotalAmount)
	}
}

func TestPlaceOrder_SingleUseCoupon(t *testing.T) {
	first := doPost(t, "/api/orders", sofaOrder("ONCE50", "cod"))
	defer first.Body.Close()
	expectStatus(t, first, http.StatusOK)

	if order := decodeJSON[orderResponse](t, first); order.TotalAmount != 65 {
		t.Errorf("total: got %v, want 65", order.TotalAmount)
	}

	second := doPost(t, "/api/orders", sofaOrder("ONCE50", "cod"))
	defer second.Body.Close()
	expectStatus(t, second, http.StatusUnprocessableEntity)

	if body := decodeJSON[errorResponse](t, second); body.Reason != "usage_exhausted" {
		t.Errorf("reason: got %q, want usage_exhausted", body.Reason)
	}
}

func TestPlaceOrder_TotalChanged(t *testing.T) {
	req := sofaOrder("", "cod")
	req.TotalAmount = "99.00"

	resp := doPost(t, "/api/orders", req)
	defer resp.Body.Close()

	expectStatus(t, resp, http.StatusConflict)
}

func TestPlaceOrder_BadRequest(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*orderRequest)
	}{
		{name: "no items", mutate: func(r *orderRequest) { r.Items = nil }},
		{name: "zero quantity", mutate: func(r *orderRequest) { r.Items[0].Quantity = 0 }},
		{name: "missing email", mutate: func(r *orderRequest) { r.CustomerEmail = "" }},
		{name: "unknown payment method", mutate: func(r *orderRequest) { r.PaymentMethod = "crypto" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := sofaOrder("", "cod")
			tt.mutate(&req)

			resp := doPost(t, "/api/orders", req)
			defer resp.Body.Close()

			expectStatus(t, resp, http.StatusBadRequest)
		})
	}
}

func TestValidateCoupon(t *testing.T) {
	resp := doPost(t, "/api/coupons/validate", couponRequest{Code: "save10", Subtotal: "250"})
	defer resp.Body.Close()

	expectStatus(t, resp, http.StatusOK)

	body := decodeJSON[couponResponse](t, resp)
	if body.Code != "SAVE10" || body.DiscountType != "percentage" {
		t.Errorf("coupon: got %+v", body)
	}
	if body.DiscountAmount != 25 {
		t.Errorf("discount: got %v, want 25", body.DiscountAmount)
	}
}
