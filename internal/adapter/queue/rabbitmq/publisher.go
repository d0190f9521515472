package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"reward-engine/internal/core/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const dialTimeout = 10 * time.Second

// Publisher implements ports.JobQueue over a durable RabbitMQ queue on the
// default exchange. QueueDeclare is idempotent and returns the current
// message count, which doubles as the advisory depth reported to clients.
type Publisher struct {
	conn  *amqp.Connection
	queue string
	log   zerolog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// NewPublisher connects to the broker and declares the queue.
func NewPublisher(url, queue string, log zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring queue %q: %w", queue, err)
	}

	log.Info().Str("queue", queue).Msg("RabbitMQ publisher connected")
	return &Publisher{conn: conn, queue: queue, log: log, ch: ch}, nil
}

// Publish enqueues the request as a persistent JSON message and returns the
// queue depth observed just before the publish.
func (p *Publisher) Publish(ctx context.Context, req domain.ActionRequest) (int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal action request: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	depth, err := p.publish(ctx, body, req.IdempotencyKey)
	if err != nil {
		// A broken channel stays broken; reopen once and retry before
		// reporting the queue unavailable.
		p.log.Warn().Err(err).Msg("publish failed, reopening channel")
		ch, chErr := p.conn.Channel()
		if chErr != nil {
			return 0, fmt.Errorf("reopening channel: %w", chErr)
		}
		p.ch.Close()
		p.ch = ch
		depth, err = p.publish(ctx, body, req.IdempotencyKey)
		if err != nil {
			return 0, err
		}
	}
	return depth, nil
}

func (p *Publisher) publish(ctx context.Context, body []byte, messageID string) (int, error) {
	q, err := p.ch.QueueDeclare(p.queue, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("declaring queue: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return 0, fmt.Errorf("publishing message: %w", err)
	}
	return q.Messages, nil
}

// Close shuts down the channel and connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
