// Package cache stores settled payment outcomes so repeated verifications of
// the same invoice skip the gateway round trip.
package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/hearth-checkout/internal/domain/payment"
)

const (
	keyPrefix  = "checkout:payment:"
	defaultTTL = 24 * time.Hour
)

var _ payment.OutcomeCache = (*RedisOutcomes)(nil)

// RedisOutcomes keeps outcomes in Redis keyed by invoice id.
type RedisOutcomes struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisOutcomes creates a cache. A zero ttl defaults to 24 hours.
func NewRedisOutcomes(client redis.Cmdable, ttl time.Duration) *RedisOutcomes {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisOutcomes{client: client, ttl: ttl}
}

// Get returns nil, nil on a miss.
func (c *RedisOutcomes) Get(ctx context.Context, invoiceID string) (*payment.Outcome, error) {
	data, err := c.client.Get(ctx, key(invoiceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	o, err := decodeOutcome(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode outcome")
	}
	return o, nil
}

func (c *RedisOutcomes) Put(ctx context.Context, invoiceID string, o *payment.Outcome) error {
	if err := c.client.Set(ctx, key(invoiceID), encodeOutcome(o), c.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func key(invoiceID string) string {
	return keyPrefix + invoiceID
}

func encodeOutcome(o *payment.Outcome) []byte {
	var e jx.Encoder
	e.ObjStart()
	for _, f := range []struct{ name, value string }{
		{"status", o.Status},
		{"full_name", o.FullName},
		{"email", o.Email},
		{"amount", o.Amount},
		{"payment_method", o.PaymentMethod},
		{"transaction_id", o.TransactionID},
		{"invoice_id", o.InvoiceID},
		{"order_id", o.OrderID},
		{"order_number", o.OrderNumber},
	} {
		e.FieldStart(f.name)
		e.Str(f.value)
	}
	e.FieldStart("settled")
	e.Bool(o.Settled)
	e.ObjEnd()
	return e.Bytes()
}

func decodeOutcome(data []byte) (*payment.Outcome, error) {
	var o payment.Outcome
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, k string) error {
		var err error
		switch k {
		case "status":
			o.Status, err = d.Str()
		case "full_name":
			o.FullName, err = d.Str()
		case "email":
			o.Email, err = d.Str()
		case "amount":
			o.Amount, err = d.Str()
		case "payment_method":
			o.PaymentMethod, err = d.Str()
		case "transaction_id":
			o.TransactionID, err = d.Str()
		case "invoice_id":
			o.InvoiceID, err = d.Str()
		case "order_id":
			o.OrderID, err = d.Str()
		case "order_number":
			o.OrderNumber, err = d.Str()
		case "settled":
			o.Settled, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Noop never stores anything. It stands in when Redis is not configured.
type Noop struct{}

func (Noop) Get(context.Context, string) (*payment.Outcome, error) { return nil, nil }

func (Noop) Put(context.Context, string, *payment.Outcome) error { return nil }
