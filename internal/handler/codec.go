package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// errBadBody is reported for unreadable or malformed JSON.
var errBadBody = errors.New("invalid JSON body")

// decodeBody reads the request body and walks its top-level object.
func decodeBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return errBadBody
	}
	if err := jx.DecodeBytes(data).Obj(field); err != nil {
		return errors.Wrap(errBadBody, err.Error())
	}
	return nil
}

// fieldErr prefixes a field decoding error with the field name.
func fieldErr(key string, err error) error {
	if err != nil {
		return errors.Wrap(err, key)
	}
	return nil
}

// optString reads a string, treating null as empty.
func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// optDecimal reads a JSON number or numeric string. Null and "" yield nil.
func optDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		if s == "" {
			return nil, nil
		}
		raw = s
	default:
		return nil, errors.New("expected number")
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", raw)
	}
	return &v, nil
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// money writes an amount as a JSON number with two decimals.
func money(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Raw([]byte(v.StringFixed(2)))
}

func str(e *jx.Encoder, field, v string) {
	e.FieldStart(field)
	e.Str(v)
}
