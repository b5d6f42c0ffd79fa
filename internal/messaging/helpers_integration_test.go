//go:build integration

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// publishInbound enqueues a message for the inbound consumer the way an
// external producer would.
func (r *RabbitMQ) publishInbound(ctx context.Context, in *InboundMessage) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal inbound message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		InboundExchange,
		InboundRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish inbound message: %w", err)
	}
	return nil
}

// bindEvents attaches a private, auto-deleted queue to chat.events with a
// topic pattern such as "room.sports.#" and consumes it with auto-ack.
func (r *RabbitMQ) bindEvents(pattern string) (<-chan amqp.Delivery, error) {
	queue, err := r.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare events queue: %w", err)
	}

	if err := r.channel.QueueBind(queue.Name, pattern, EventsExchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind events queue: %w", err)
	}

	msgs, err := r.channel.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume events: %w", err)
	}

	slog.Info("started consuming message events",
		slog.String("queue", queue.Name),
		slog.String("pattern", pattern))
	return msgs, nil
}
