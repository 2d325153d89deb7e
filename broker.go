package soundcheck

import (
	"context"
	"errors"
	"time"
)

// ErrNoMessage is returned by Broker.Receive when no message arrived
// within the wait bound. It marks an empty queue, not a transport fault.
var ErrNoMessage = errors.New("no message within wait")

// Message is one payload on a named queue. Headers are optional transport
// metadata; duplicate keys overwrite. ID carries the transport's message
// id when the driver provides one.
type Message struct {
	Queue   string
	Body    []byte
	Headers map[string]string
	ID      string
}

// Broker is the messaging transport boundary. Implementations live under
// broker/ (AMQP, NATS JetStream, SQS); tests use in-memory fakes.
//
// Receive must not block past wait and returns ErrNoMessage once the
// bound elapses with nothing consumed; returning earlier with a message
// is fine. Purge drains a queue best-effort and treats an already empty
// queue as success. All methods honor ctx cancellation.
type Broker interface {
	Send(ctx context.Context, msg Message) error
	Receive(ctx context.Context, queue string, wait time.Duration) (*Message, error)
	Purge(ctx context.Context, queue string) error
	Close() error
}
