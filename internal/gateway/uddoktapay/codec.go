package uddoktapay

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/hearth-checkout/internal/domain/payment"
)

func encodeCheckout(req payment.CheckoutRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("full_name")
	e.Str(req.FullName)
	e.FieldStart("email")
	e.Str(req.Email)
	e.FieldStart("amount")
	e.Str(req.Amount.StringFixed(2))
	e.FieldStart("metadata")
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(req.Metadata.OrderID)
	e.FieldStart("order_number")
	e.Str(req.Metadata.OrderNumber)
	e.ObjEnd()
	e.FieldStart("redirect_url")
	e.Str(req.SuccessURL)
	e.FieldStart("return_type")
	e.Str("GET")
	e.FieldStart("cancel_url")
	e.Str(req.CancelURL)
	e.ObjEnd()
	return e.Bytes()
}

type checkoutResult struct {
	ok         bool
	message    string
	paymentURL string
}

func decodeCheckout(data []byte) (checkoutResult, error) {
	var res checkoutResult
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			res.ok, err = truthy(d)
		case "message":
			res.message, err = scalar(d)
		case "payment_url":
			res.paymentURL, err = scalar(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return res, err
}

// decodeVerification parses a verify-payment body. An error body of the form
// {"status": false, "message": ...} is returned as a *payment.GatewayError.
func decodeVerification(data []byte) (*payment.Verification, error) {
	var (
		v        payment.Verification
		rejected bool
		message  string
	)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			if d.Next() == jx.Bool {
				var ok bool
				ok, err = d.Bool()
				rejected = !ok
				return err
			}
			v.Status, err = scalar(d)
		case "message":
			message, err = scalar(d)
		case "full_name":
			v.FullName, err = scalar(d)
		case "email":
			v.Email, err = scalar(d)
		case "amount":
			v.Amount, err = scalar(d)
		case "payment_method":
			v.PaymentMethod, err = scalar(d)
		case "transaction_id":
			v.TransactionID, err = scalar(d)
		case "invoice_id":
			v.InvoiceID, err = scalar(d)
		case "metadata":
			v.Metadata, err = decodeMetadata(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode verification response")
	}
	if rejected {
		return nil, &payment.GatewayError{Message: message}
	}
	return &v, nil
}

// decodeMetadata accepts an object, a JSON-encoded object string, or any
// other value, which yields nil.
func decodeMetadata(d *jx.Decoder) (*payment.Metadata, error) {
	switch d.Next() {
	case jx.Object:
		return decodeMetadataObject(d)
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if !strings.HasPrefix(s, "{") || !jx.Valid([]byte(s)) {
			return nil, nil
		}
		return decodeMetadataObject(jx.DecodeStr(s))
	default:
		return nil, d.Skip()
	}
}

func decodeMetadataObject(d *jx.Decoder) (*payment.Metadata, error) {
	var m payment.Metadata
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order_id":
			m.OrderID, err = scalar(d)
		case "order_number":
			m.OrderNumber, err = scalar(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "metadata")
	}
	return &m, nil
}

// scalar reads a string or number as text. Other values are skipped.
func scalar(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", d.Skip()
	}
}

// truthy reads a boolean, also accepting "true", 1 and "1".
func truthy(d *jx.Decoder) (bool, error) {
	switch d.Next() {
	case jx.Bool:
		return d.Bool()
	case jx.String, jx.Number:
		s, err := scalar(d)
		return s == "true" || s == "1", err
	default:
		return false, d.Skip()
	}
}
