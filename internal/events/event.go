// Package events carries order state changes out of the database through a
// transactional outbox and relays them to Kafka.
package events

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/hearth-checkout/internal/domain/order"
)

// Event types written to the outbox.
const (
	TypeOrderPlaced = "order.placed"
	TypeOrderPaid   = "order.paid"
)

// Event is one outbox row.
type Event struct {
	ID          string
	Type        string
	AggregateID string
	Payload     []byte
	CreatedAt   time.Time
}

// OrderPlaced builds the event recorded together with a new order.
func OrderPlaced(o *order.Order) Event {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(o.ID)
	e.FieldStart("order_number")
	e.Str(o.Number)
	e.FieldStart("customer_email")
	e.Str(o.CustomerEmail)
	e.FieldStart("payment_method")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("subtotal")
	e.Str(o.Subtotal.StringFixed(2))
	e.FieldStart("discount_amount")
	e.Str(o.Discount.StringFixed(2))
	e.FieldStart("delivery_charge")
	e.Str(o.DeliveryCharge.StringFixed(2))
	e.FieldStart("total_amount")
	e.Str(o.Total.StringFixed(2))
	if o.CouponCode != "" {
		e.FieldStart("coupon_code")
		e.Str(o.CouponCode)
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		if it.ProductID != "" {
			e.FieldStart("product_id")
			e.Str(it.ProductID)
		}
		e.FieldStart("product_name")
		e.Str(it.ProductName)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unit_price")
		e.Str(it.UnitPrice.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()

	return newEvent(TypeOrderPlaced, o.ID, e.Bytes())
}

// OrderPaid builds the event recorded when an order is settled.
func OrderPaid(orderID, invoiceID string) Event {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(orderID)
	e.FieldStart("payment_invoice_id")
	e.Str(invoiceID)
	e.ObjEnd()

	return newEvent(TypeOrderPaid, orderID, e.Bytes())
}

func newEvent(typ, aggregateID string, payload []byte) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        typ,
		AggregateID: aggregateID,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
}
