package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"letschat/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageSender is the part of the chat service the consumer drives.
type MessageSender interface {
	Send(ctx context.Context, roomID, username, text string) (*domain.Message, error)
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeDrop
	outcomeRequeue
)

// InboundConsumer feeds messages from the chat.inbound queue into the chat service.
type InboundConsumer struct {
	rmq         *RabbitMQ
	sender      MessageSender
	sendTimeout time.Duration
}

func NewInboundConsumer(rmq *RabbitMQ, sender MessageSender) *InboundConsumer {
	return &InboundConsumer{
		rmq:         rmq,
		sender:      sender,
		sendTimeout: 5 * time.Second,
	}
}

func (c *InboundConsumer) Start(ctx context.Context) error {
	msgs, err := c.rmq.ConsumeInbound()
	if err != nil {
		return err
	}

	go c.run(ctx, msgs)
	return nil
}

func (c *InboundConsumer) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping inbound consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("inbound consumer channel closed")
				return
			}

			var err error
			switch c.process(ctx, msg.Body) {
			case outcomeAck, outcomeDrop:
				err = msg.Ack(false)
			case outcomeRequeue:
				err = msg.Nack(false, true)
			}
			if err != nil {
				slog.Error("failed to settle inbound delivery",
					slog.String("error", err.Error()))
			}
		}
	}
}

// process decides what happens to one delivery. Bad input is dropped since
// redelivery cannot fix it; storage failures are requeued.
func (c *InboundConsumer) process(ctx context.Context, body []byte) outcome {
	var in InboundMessage
	if err := json.Unmarshal(body, &in); err != nil {
		slog.Error("error unmarshaling inbound message",
			slog.String("error", err.Error()),
			slog.String("body", string(body)))
		return outcomeDrop
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	msg, err := c.sender.Send(sendCtx, in.RoomID, in.Username, in.Text)
	switch {
	case err == nil:
		slog.Info("inbound message accepted",
			slog.String("room_id", msg.RoomID),
			slog.Int64("message_id", msg.ID))
		return outcomeAck
	case errors.Is(err, domain.ErrStorage):
		slog.Warn("inbound message deferred",
			slog.String("room_id", in.RoomID),
			slog.String("error", err.Error()))
		return outcomeRequeue
	default:
		slog.Warn("inbound message rejected",
			slog.String("room_id", in.RoomID),
			slog.String("username", in.Username),
			slog.String("error", err.Error()))
		return outcomeDrop
	}
}
