// Package queue_publisher provides functions to publish domain events to RabbitMQ.
// Errors are logged and returned to allow callers to ignore failures without
// interrupting the main request flow.
package queue_publisher

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/lifeflow/blood-donation-service/internal/queue"
)

// PublishDonationCompleted publishes a DonationCompletedEvent to the
// donation.completed queue. Messages are persistent so they survive broker
// restarts; any error is logged and returned so the caller can choose to
// ignore it.
func PublishDonationCompleted(ctx context.Context, event q.DonationCompletedEvent) error {
	return publish(ctx, q.DonationCompletedQueue, event)
}

// PublishDonationDeferred publishes a DonationDeferredEvent to the
// donation.deferred queue.
func PublishDonationDeferred(ctx context.Context, event q.DonationDeferredEvent) error {
	return publish(ctx, q.DonationDeferredQueue, event)
}

// PublishEmailVerification hands a one-time code to the mailer service via
// the email.verification queue.
func PublishEmailVerification(ctx context.Context, event q.EmailVerificationEvent) error {
	return publish(ctx, q.EmailVerificationQueue, event)
}

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

	// Idempotent declare. Durable so messages survive broker restarts.
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
