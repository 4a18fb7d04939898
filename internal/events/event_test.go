package events

import (
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hearth-checkout/internal/domain/order"
)

func decodeFields(t *testing.T, payload []byte) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := jx.DecodeBytes(payload).Obj(func(d *jx.Decoder, key string) error {
		if d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		out[key] = v
		return err
	})
	require.NoError(t, err)
	return out
}

func TestOrderPlaced(t *testing.T) {
	o := &order.Order{
		ID:             "0b7f9a6e-4d3c-4b8e-9d0f-1a2b3c4d5e6f",
		Number:         "ORD-1A2B3C4D",
		CustomerEmail:  "ayesha@example.com",
		PaymentMethod:  order.PaymentOnline,
		Subtotal:       decimal.RequireFromString("100"),
		Discount:       decimal.RequireFromString("10"),
		DeliveryCharge: decimal.RequireFromString("15"),
		Total:          decimal.RequireFromString("105"),
		CouponCode:     "SAVE10",
		Items: []order.Item{
			{ProductName: "Walnut Desk", Quantity: 1, UnitPrice: decimal.RequireFromString("100")},
		},
	}

	ev := OrderPlaced(o)

	assert.Equal(t, TypeOrderPlaced, ev.Type)
	assert.Equal(t, o.ID, ev.AggregateID)
	assert.NotEmpty(t, ev.ID)
	assert.True(t, jx.Valid(ev.Payload))

	fields := decodeFields(t, ev.Payload)
	assert.Equal(t, "ORD-1A2B3C4D", fields["order_number"])
	assert.Equal(t, "105.00", fields["total_amount"])
	assert.Equal(t, "SAVE10", fields["coupon_code"])
	assert.Equal(t, "online", fields["payment_method"])
}

func TestOrderPaid(t *testing.T) {
	ev := OrderPaid("order-1", "INV-9")

	assert.Equal(t, TypeOrderPaid, ev.Type)
	assert.Equal(t, "order-1", ev.AggregateID)
	fields := decodeFields(t, ev.Payload)
	assert.Equal(t, "INV-9", fields["payment_invoice_id"])
}

func TestMessage(t *testing.T) {
	ev := OrderPaid("order-1", "INV-9")

	msg := Message(ev)

	assert.Equal(t, []byte("order-1"), msg.Key)
	assert.Equal(t, ev.Payload, msg.Value)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte(TypeOrderPaid), msg.Headers[0].Value)
}
