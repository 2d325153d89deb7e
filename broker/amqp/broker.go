// Package amqp implements the soundcheck Broker over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/epalmerini/soundcheck"
)

// pollInterval paces queue polling while a receive waits for a message.
const pollInterval = 50 * time.Millisecond

type Config struct {
	URL string
	// Durable makes queues persistent when the broker has to create them.
	Durable bool
}

// Broker talks to one RabbitMQ node over a single connection and channel.
// It is not safe for concurrent use; a scenario run is single-threaded.
type Broker struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	config  Config
	known   map[string]bool // queues already ensured this session
}

func New(cfg Config) (*Broker, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("amqp url required")
	}

	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open channel: %w", err), conn.Close())
	}

	return &Broker{
		conn:    conn,
		channel: ch,
		config:  cfg,
		known:   make(map[string]bool),
	}, nil
}

// ensureQueue probes with a passive declare first. A failed passive
// declare closes the channel, so the fallback reopens one and declares
// the queue for real.
func (b *Broker) ensureQueue(name string) error {
	if b.known[name] {
		return nil
	}

	_, err := b.channel.QueueDeclarePassive(
		name,
		false, // durable (ignored for passive)
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		ch, chanErr := b.conn.Channel()
		if chanErr != nil {
			return fmt.Errorf("failed to reopen channel: %w", chanErr)
		}
		b.channel = ch

		_, err = b.channel.QueueDeclare(
			name,
			b.config.Durable,
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", name, err)
		}
	}

	b.known[name] = true
	return nil
}

func (b *Broker) Send(ctx context.Context, msg soundcheck.Message) error {
	if err := b.ensureQueue(msg.Queue); err != nil {
		return err
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	mode := amqp091.Transient
	if b.config.Durable {
		mode = amqp091.Persistent
	}

	err := b.channel.PublishWithContext(ctx,
		"",        // default exchange routes by queue name
		msg.Queue, // routing key
		false,     // mandatory
		false,     // immediate
		amqp091.Publishing{
			DeliveryMode: mode,
			MessageId:    id,
			Timestamp:    time.Now(),
			Headers:      toTable(msg.Headers),
			Body:         msg.Body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish to %q: %w", msg.Queue, err)
	}
	return nil
}

// Receive polls the queue with basic.get until a message arrives or wait
// elapses. Messages are auto-acked; the harness consumes destructively.
func (b *Broker) Receive(ctx context.Context, queue string, wait time.Duration) (*soundcheck.Message, error) {
	if err := b.ensureQueue(queue); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(wait)
	for {
		delivery, ok, err := b.channel.Get(queue, true)
		if err != nil {
			return nil, fmt.Errorf("failed to get from %q: %w", queue, err)
		}
		if ok {
			return &soundcheck.Message{
				Queue:   queue,
				Body:    delivery.Body,
				Headers: fromTable(delivery.Headers),
				ID:      delivery.MessageId,
			}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, soundcheck.ErrNoMessage
		}
		pause := pollInterval
		if remaining < pause {
			pause = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pause):
		}
	}
}

func (b *Broker) Purge(ctx context.Context, queue string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.ensureQueue(queue); err != nil {
		return err
	}
	if _, err := b.channel.QueuePurge(queue, false); err != nil {
		return fmt.Errorf("failed to purge %q: %w", queue, err)
	}
	return nil
}

func (b *Broker) Close() error {
	var chanErr error
	if b.channel != nil {
		chanErr = b.channel.Close()
	}
	if b.conn != nil {
		return errors.Join(chanErr, b.conn.Close())
	}
	return chanErr
}

func toTable(headers map[string]string) amqp091.Table {
	if len(headers) == 0 {
		return nil
	}
	table := make(amqp091.Table, len(headers))
	for k, v := range headers {
		table[k] = v
	}
	return table
}

func fromTable(table amqp091.Table) map[string]string {
	if len(table) == 0 {
		return nil
	}
	headers := make(map[string]string, len(table))
	for k, v := range table {
		headers[k] = fmt.Sprint(v)
	}
	return headers
}
