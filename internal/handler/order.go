package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/hearth-checkout/internal/domain/coupon"
	"github.com/xenking/hearth-checkout/internal/domain/order"
)

type orderRequest struct {
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	UserID          string
	TotalAmount     *decimal.Decimal
	DiscountAmount  *decimal.Decimal
	CouponCode      string
	PaymentMethod   string
	Items           []order.CartLine
}

func (req *orderRequest) decode(d *jx.Decoder, key string) error {
	var err error
	switch key {
	case "customer_name":
		req.CustomerName, err = optString(d)
	case "customer_email":
		req.CustomerEmail, err = optString(d)
	case "shipping_address":
		req.ShippingAddress, err = optString(d)
	case "user_id":
		req.UserID, err = optString(d)
	case "total_amount":
		req.TotalAmount, err = optDecimal(d)
	case "discount_amount":
		req.DiscountAmount, err = optDecimal(d)
	case "coupon_code":
		req.CouponCode, err = optString(d)
	case "payment_method":
		req.PaymentMethod, err = optString(d)
	case "items":
		err = d.Arr(func(d *jx.Decoder) error {
			line, err := decodeCartLine(d)
			req.Items = append(req.Items, line)
			return err
		})
	default:
		err = d.Skip()
	}
	return fieldErr(key, err)
}

func decodeCartLine(d *jx.Decoder) (order.CartLine, error) {
	var line order.CartLine
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_name":
			line.Name, err = optString(d)
		case "product_id":
			line.ProductRef, err = optString(d)
		case "image_url":
			line.ImageRef, err = optString(d)
		case "quantity":
			line.Quantity, err = d.Int()
		case "unit_price":
			var p *decimal.Decimal
			if p, err = optDecimal(d); p != nil {
				line.UnitPrice = *p
			}
		default:
			err = d.Skip()
		}
		return fieldErr(key, err)
	})
	return line, err
}

// PlaceOrder handles POST /api/orders. Prices are recomputed on the server;
// a client total or discount that disagrees is rejected with 409.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req orderRequest
	if err := decodeBody(r, req.decode); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	method, err := order.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quote, err := h.orders.Quote(ctx, req.Items, req.CouponCode, h.deliveryCharge)
	if err != nil {
		h.orderError(w, r, err)
		return
	}

	if req.DiscountAmount != nil && !req.DiscountAmount.Round(2).Equal(quote.Discount) {
		writeError(w, http.StatusConflict, "Discount changed, please review your order")
		return
	}
	if req.TotalAmount != nil && !req.TotalAmount.Round(2).Equal(quote.Total) {
		writeError(w, http.StatusConflict, "Order total changed, please review your order")
		return
	}

	var userID *string
	if id := strings.TrimSpace(req.UserID); id != "" {
		userID = &id
	}

	receipt, err := h.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		Customer: order.Customer{
			Name:            req.CustomerName,
			Email:           req.CustomerEmail,
			ShippingAddress: req.ShippingAddress,
			UserID:          userID,
		},
		Items:          req.Items,
		Coupon:         quote.Coupon,
		DeliveryCharge: h.deliveryCharge,
		PaymentMethod:  method,
	})
	if err != nil {
		h.orderError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	str(&e, "id", receipt.ID)
	str(&e, "order_number", receipt.Number)
	money(&e, "subtotal", receipt.Subtotal)
	money(&e, "discount_amount", receipt.Discount)
	money(&e, "delivery_charge", receipt.DeliveryCharge)
	money(&e, "total_amount", receipt.Total)
	str(&e, "payment_method", string(receipt.PaymentMethod))
	if quote.Coupon != nil {
		str(&e, "coupon_code", quote.Coupon.Code)
	}
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) orderError(w http.ResponseWriter, r *http.Request, err error) {
	if isOrderInputError(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if writeCouponError(w, err) {
		return
	}

	var persistErr *order.PersistenceError
	if errors.As(err, &persistErr) {
		zctx.From(r.Context()).Error("Order not persisted", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create order")
		return
	}
	zctx.From(r.Context()).Error("Place order", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func isOrderInputError(err error) bool {
	var (
		validationErr *order.ValidationError
		quantityErr   *order.InvalidQuantityError
		priceErr      *order.InvalidPriceError
	)
	return errors.Is(err, order.ErrEmptyItems) ||
		errors.Is(err, order.ErrInvalidTotal) ||
		errors.As(err, &validationErr) ||
		errors.As(err, &quantityErr) ||
		errors.As(err, &priceErr)
}

type couponRequest struct {
	Code     string
	Subtotal *decimal.Decimal
}

// ValidateCoupon handles POST /api/coupons/validate.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = optString(d)
		case "subtotal":
			req.Subtotal, err = optDecimal(d)
		default:
			err = d.Skip()
		}
		return fieldErr(key, err)
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if coupon.NormalizeCode(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.Subtotal == nil || req.Subtotal.IsNegative() {
		writeError(w, http.StatusBadRequest, "subtotal must be a non-negative number")
		return
	}

	app, err := h.coupons.Validate(r.Context(), req.Code, *req.Subtotal)
	if err != nil {
		if writeCouponError(w, err) {
			return
		}
		zctx.From(r.Context()).Error("Validate coupon", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var e jx.Encoder
	e.ObjStart()
	str(&e, "code", app.Code)
	str(&e, "discount_type", string(app.DiscountType))
	e.FieldStart("discount_value")
	e.Raw([]byte(app.DiscountValue.String()))
	money(&e, "discount_amount", app.Discount(*req.Subtotal))
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
