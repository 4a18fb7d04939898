package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/hearth-checkout/internal/domain/coupon"
	"github.com/xenking/hearth-checkout/pkg/httpmiddleware"
)

func writeError(w http.ResponseWriter, status int, msg string) {
	httpmiddleware.WriteError(w, status, msg)
}

// writeCouponError answers 422 with a human message and a machine reason so
// the storefront can explain the rejection and continue without the coupon.
func writeCouponError(w http.ResponseWriter, err error) bool {
	reason := coupon.Reason(err)
	if reason == "" {
		return false
	}

	var e jx.Encoder
	e.ObjStart()
	str(&e, "error", couponMessage(err))
	str(&e, "reason", reason)
	e.ObjEnd()
	writeJSON(w, http.StatusUnprocessableEntity, &e)
	return true
}

func couponMessage(err error) string {
	switch {
	case errors.Is(err, coupon.ErrNotFound):
		return "Invalid coupon code"
	case errors.Is(err, coupon.ErrExpired):
		return "This coupon has expired"
	case errors.Is(err, coupon.ErrUsageExhausted):
		return "This coupon has reached its usage limit"
	case errors.Is(err, coupon.ErrMinimumNotMet):
		return "Order subtotal is below the coupon minimum"
	default:
		return err.Error()
	}
}
