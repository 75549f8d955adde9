package queue

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestForwardRelaysUntilSourceCloses(t *testing.T) {
	msgs := make(chan amqp.Delivery, 2)
	msgs <- amqp.Delivery{Body: []byte(`{"event":"room_assigned"}`)}
	msgs <- amqp.Delivery{Body: []byte(`{"event":"room_assigned"}`)}
	close(msgs)

	out := make(chan tagged, 2)
	forward(RoomAssignedQueue, msgs, out, make(chan struct{}))

	assert.Len(t, out, 2)
	m := <-out
	assert.Equal(t, RoomAssignedQueue, m.queue)
	assert.Equal(t, []byte(`{"event":"room_assigned"}`), m.d.Body)
}

// A forwarder stuck handing off a message must exit once the consume
// loop signals shutdown, even with nobody left receiving.
func TestForwardExitsOnShutdownWithBlockedHandoff(t *testing.T) {
	msgs := make(chan amqp.Delivery, 1)
	msgs <- amqp.Delivery{Body: []byte(`{"event":"payment_confirmed"}`)}
	out := make(chan tagged) // never drained
	done := make(chan struct{})

	finished := make(chan struct{})
	go func() {
		forward(PaymentConfirmedQueue, msgs, out, done)
		close(finished)
	}()

	close(done)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not exit after shutdown signal")
	}
}
