package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reward-engine/internal/core/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// HandlerFunc processes one dequeued action. Returning true acknowledges
// the message; false asks for another delivery. Handlers must treat
// redelivery as normal: the executor's idempotency checks make a duplicate
// delivery a replay, not a double credit. redelivered is true once the
// broker has already delivered this message before, which is the handler's
// cue to record a terminal failure instead of retrying forever.
type HandlerFunc func(ctx context.Context, req domain.ActionRequest, redelivered bool) bool

// Consumer drains the action queue and hands messages to the worker pool.
type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	log   zerolog.Logger
}

// NewConsumer connects to the broker, declares the queue and bounds
// unacknowledged deliveries to prefetch so a slow worker cannot hoard the
// queue.
func NewConsumer(url, queue string, prefetch int, log zerolog.Logger) (*Consumer, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("setting qos: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring queue %q: %w", queue, err)
	}

	log.Info().Str("queue", queue).Int("prefetch", prefetch).Msg("RabbitMQ consumer connected")
	return &Consumer{conn: conn, ch: ch, queue: queue, log: log}, nil
}

// Start consumes until the context is cancelled or the delivery channel
// closes. Malformed payloads are acknowledged and dropped; they would
// never succeed on redelivery.
func (c *Consumer) Start(ctx context.Context, handle HandlerFunc) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("starting consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			var req domain.ActionRequest
			if err := json.Unmarshal(d.Body, &req); err != nil {
				c.log.Error().Err(err).Str("message_id", d.MessageId).Msg("dropping malformed message")
				d.Ack(false)
				continue
			}
			switch {
			case handle(ctx, req, d.Redelivered):
				d.Ack(false)
			case d.Redelivered:
				// Second strike: hand the message to the broker's
				// dead-letter policy instead of cycling it forever.
				d.Nack(false, false)
			default:
				// Brief pause keeps a persistently failing message from
				// spinning the worker at full speed.
				time.Sleep(100 * time.Millisecond)
				d.Nack(false, true)
			}
		}
	}
}

// Close shuts down the channel and connection.
func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
