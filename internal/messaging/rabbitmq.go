package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"letschat/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange     = "chat.events"
	InboundExchange    = "chat.inbound"
	InboundQueue       = "chat.inbound"
	InboundRoutingKey  = "message.send"
	messageCreatedType = "message.created"
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// InboundMessage asks the chat service to send a message on behalf of another system.
type InboundMessage struct {
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// MessageEvent is published to chat.events after a message is accepted.
type MessageEvent struct {
	Type    string          `json:"type"`
	Message *domain.Message `json:"message"`
}

// EventRoutingKey returns the topic key for a room's message events.
func EventRoutingKey(roomID string) string {
	return "room." + roomID + "." + messageCreatedType
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials until it succeeds or ctx ends, doubling the wait up to 10s.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	backoff := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		rmq, err := NewRabbitMQ(url)
		if err == nil {
			return rmq, nil
		}

		slog.Warn("rabbitmq not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("giving up on rabbitmq after %d attempts: %w", attempt, err)
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		EventsExchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}

	if err := r.channel.ExchangeDeclare(
		InboundExchange, // name
		"direct",        // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	); err != nil {
		return fmt.Errorf("failed to declare inbound exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(
		InboundQueue, // name
		true,         // durable
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", InboundQueue, err)
	}

	if err := r.channel.QueueBind(
		InboundQueue,      // queue name
		InboundRoutingKey, // routing key
		InboundExchange,   // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", InboundQueue, err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// PublishMessageCreated announces an accepted message on chat.events.
func (r *RabbitMQ) PublishMessageCreated(ctx context.Context, msg *domain.Message) error {
	body, err := json.Marshal(MessageEvent{Type: messageCreatedType, Message: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		EventsExchange,
		EventRoutingKey(msg.RoomID),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%s/%d", msg.RoomID, msg.ID),
			Timestamp:    msg.Timestamp,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("published message event",
		slog.String("room_id", msg.RoomID),
		slog.Int64("message_id", msg.ID))
	return nil
}

func (r *RabbitMQ) ConsumeInbound() (<-chan amqp.Delivery, error) {
	msgs, err := r.channel.Consume(
		InboundQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming inbound messages",
		slog.String("queue", InboundQueue))
	return msgs, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
