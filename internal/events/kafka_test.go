package events

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestKafkaPublisher_SameOrderSamePartition(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "checkout.orders")
	defer func() { _ = p.Close() }()

	partitions := []int{0, 1, 2, 3, 4, 5}
	for _, orderID := range []string{
		"0b7f9a6e-4d3c-4b8e-9d0f-1a2b3c4d5e6f",
		"order-1",
		"order-2",
	} {
		placed := Message(Event{ID: "e1", Type: TypeOrderPlaced, AggregateID: orderID, Payload: []byte(`{"order_number":"ORD-1"}`)})
		paid := Message(OrderPaid(orderID, "INV-9"))

		// Interleave other keys so a load-based balancer would drift.
		first := p.writer.Balancer.Balance(placed, partitions...)
		for range 5 {
			p.writer.Balancer.Balance(kafka.Message{Key: []byte("other"), Value: make([]byte, 512)}, partitions...)
		}
		second := p.writer.Balancer.Balance(paid, partitions...)

		assert.Equal(t, first, second, "order %s", orderID)
	}
}
