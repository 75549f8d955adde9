// Package service publishes notification events to RabbitMQ.
// Publishing is best-effort: errors are logged and returned so callers
// can ignore them without interrupting the main request flow.
package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/dorm-residency/internal/queue"
)

// PublishRegistrationDecided publishes a staff decision event.
func PublishRegistrationDecided(ctx context.Context, ev q.RegistrationDecidedEvent) error {
	return publish(ctx, q.RegistrationDecidedQueue, ev)
}

// PublishRoomAssigned publishes a successful allocation event.
func PublishRoomAssigned(ctx context.Context, ev q.RoomAssignedEvent) error {
	return publish(ctx, q.RoomAssignedQueue, ev)
}

// PublishPaymentConfirmed publishes a settled payment event.
func PublishPaymentConfirmed(ctx context.Context, ev q.PaymentConfirmedEvent) error {
	return publish(ctx, q.PaymentConfirmedQueue, ev)
}

// publish opens a short-lived connection, declares the durable queue
// and sends one persistent JSON message.  It never panics; any error
// is logged and handed back for the caller to drop.
func publish(ctx context.Context, queueName string, event interface{}) error {
	conn, err := amqp.Dial(q.BrokerURL())
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}
