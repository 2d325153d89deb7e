// Package nats implements the soundcheck Broker over NATS JetStream.
//
// Queue names map to subjects on a single stream. Receives go through a
// durable consumer filtered to the subject, so repeated receives advance
// one cursor instead of re-reading the stream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/epalmerini/soundcheck"
)

const (
	// DefaultStream holds every subject the harness touches unless the
	// config names another stream.
	DefaultStream = "SOUNDCHECK"

	msgIDHeader = "Nats-Msg-Id"
)

type Config struct {
	URL    string
	Stream string
}

type Broker struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream string
	known  map[string]bool // subjects already bound to the stream
}

func New(cfg Config) (*Broker, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url required")
	}
	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("soundcheck"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Broker{
		conn:   conn,
		js:     js,
		stream: stream,
		known:  make(map[string]bool),
	}, nil
}

// ensureSubject binds the subject to the stream, creating the stream on
// first use and widening its subject list afterwards.
func (b *Broker) ensureSubject(ctx context.Context, subject string) error {
	if b.known[subject] {
		return nil
	}

	stream, err := b.js.Stream(ctx, b.stream)
	if err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return fmt.Errorf("failed to look up stream %q: %w", b.stream, err)
		}
		_, err = b.js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     b.stream,
			Subjects: []string{subject},
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %q: %w", b.stream, err)
		}
		b.known[subject] = true
		return nil
	}

	streamCfg := stream.CachedInfo().Config
	bound := false
	for _, s := range streamCfg.Subjects {
		if s == subject {
			bound = true
			break
		}
	}
	if !bound {
		streamCfg.Subjects = append(streamCfg.Subjects, subject)
		if _, err := b.js.UpdateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("failed to add subject %q to stream %q: %w", subject, b.stream, err)
		}
	}

	b.known[subject] = true
	return nil
}

func (b *Broker) Send(ctx context.Context, msg soundcheck.Message) error {
	if err := b.ensureSubject(ctx, msg.Queue); err != nil {
		return err
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}

	m := &nats.Msg{
		Subject: msg.Queue,
		Data:    msg.Body,
		Header:  make(nats.Header),
	}
	for k, v := range msg.Headers {
		m.Header.Set(k, v)
	}
	m.Header.Set(msgIDHeader, id)

	if _, err := b.js.PublishMsg(ctx, m); err != nil {
		return fmt.Errorf("failed to publish to %q: %w", msg.Queue, err)
	}
	return nil
}

func (b *Broker) Receive(ctx context.Context, queue string, wait time.Duration) (*soundcheck.Message, error) {
	if err := b.ensureSubject(ctx, queue); err != nil {
		return nil, err
	}
	if wait <= 0 {
		return nil, soundcheck.ErrNoMessage
	}

	consumer, err := b.js.CreateOrUpdateConsumer(ctx, b.stream, jetstream.ConsumerConfig{
		Durable:       consumerName(queue),
		FilterSubject: queue,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for %q: %w", queue, err)
	}

	batch, err := consumer.Fetch(1, jetstream.FetchMaxWait(wait))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from %q: %w", queue, err)
	}
	for msg := range batch.Messages() {
		if err := msg.Ack(); err != nil {
			return nil, fmt.Errorf("failed to ack message from %q: %w", queue, err)
		}
		return &soundcheck.Message{
			Queue:   queue,
			Body:    msg.Data(),
			Headers: fromHeader(msg.Headers()),
			ID:      msg.Headers().Get(msgIDHeader),
		}, nil
	}
	if err := batch.Error(); err != nil {
		return nil, fmt.Errorf("failed to fetch from %q: %w", queue, err)
	}
	return nil, soundcheck.ErrNoMessage
}

func (b *Broker) Purge(ctx context.Context, queue string) error {
	if err := b.ensureSubject(ctx, queue); err != nil {
		return err
	}
	stream, err := b.js.Stream(ctx, b.stream)
	if err != nil {
		return fmt.Errorf("failed to look up stream %q: %w", b.stream, err)
	}
	if err := stream.Purge(ctx, jetstream.WithPurgeSubject(queue)); err != nil {
		return fmt.Errorf("failed to purge %q: %w", queue, err)
	}
	return nil
}

func (b *Broker) Close() error {
	if b.conn != nil {
		b.conn.Close()
	}
	return nil
}

// consumerName derives a durable name from a subject. Consumer names may
// not contain dots or wildcard characters.
func consumerName(subject string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return "sc_" + r.Replace(subject)
}

func fromHeader(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	headers := make(map[string]string)
	for k := range h {
		if k == msgIDHeader {
			continue
		}
		headers[k] = h.Get(k)
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
