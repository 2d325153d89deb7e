// Package sqs implements the soundcheck Broker over Amazon SQS.
package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/epalmerini/soundcheck"
)

const (
	// maxWaitSeconds caps server-side long polling; SQS allows at most 20.
	maxWaitSeconds = 20
	// drainBatch is the page size used while purging a queue.
	drainBatch = 10
	// idAttribute carries the harness message id; SQS assigns its own
	// MessageId and offers no way to set it.
	idAttribute = "soundcheck-id"
)

// Client is the slice of the SQS API the broker needs. Declaring it here
// keeps the broker mockable in tests.
type Client interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
	GetQueueUrl(ctx context.Context, params *awssqs.GetQueueUrlInput, optFns ...func(*awssqs.Options)) (*awssqs.GetQueueUrlOutput, error)
}

// Broker maps queue names to queue URLs once and reuses them for the
// rest of the run. Receives are destructive: each received message is
// deleted before it is handed back.
type Broker struct {
	client Client
	urls   map[string]string
}

func New(client Client) (*Broker, error) {
	if client == nil {
		return nil, fmt.Errorf("sqs client required")
	}
	return &Broker{
		client: client,
		urls:   make(map[string]string),
	}, nil
}

// NewFromConfig builds a broker on the default AWS credential chain.
// An empty region defers to the environment.
func NewFromConfig(ctx context.Context, region string) (*Broker, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return New(awssqs.NewFromConfig(cfg))
}

func (b *Broker) queueURL(ctx context.Context, queue string) (string, error) {
	if url, ok := b.urls[queue]; ok {
		return url, nil
	}
	out, err := b.client.GetQueueUrl(ctx, &awssqs.GetQueueUrlInput{
		QueueName: aws.String(queue),
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve queue %q: %w", queue, err)
	}
	url := aws.ToString(out.QueueUrl)
	b.urls[queue] = url
	return url, nil
}

func (b *Broker) Send(ctx context.Context, msg soundcheck.Message) error {
	url, err := b.queueURL(ctx, msg.Queue)
	if err != nil {
		return err
	}

	attrs := toAttributes(msg.Headers)
	if msg.ID != "" {
		if attrs == nil {
			attrs = make(map[string]types.MessageAttributeValue, 1)
		}
		attrs[idAttribute] = stringAttribute(msg.ID)
	}

	_, err = b.client.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:          aws.String(url),
		MessageBody:       aws.String(string(msg.Body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to send to %q: %w", msg.Queue, err)
	}
	return nil
}

func (b *Broker) Receive(ctx context.Context, queue string, wait time.Duration) (*soundcheck.Message, error) {
	url, err := b.queueURL(ctx, queue)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, soundcheck.ErrNoMessage
		}
		waitSec := int32(remaining / time.Second)
		if waitSec > maxWaitSeconds {
			waitSec = maxWaitSeconds
		}

		out, err := b.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
			QueueUrl:              aws.String(url),
			MaxNumberOfMessages:   1,
			WaitTimeSeconds:       waitSec,
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to receive from %q: %w", queue, err)
		}
		if len(out.Messages) == 0 {
			if waitSec == 0 {
				// Sub-second remainder: pause client-side instead of
				// hammering the API with zero-wait polls.
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(remaining):
				}
			}
			continue
		}

		m := out.Messages[0]
		_, err = b.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
			QueueUrl:      aws.String(url),
			ReceiptHandle: m.ReceiptHandle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to delete message from %q: %w", queue, err)
		}

		return &soundcheck.Message{
			Queue:   queue,
			Body:    []byte(aws.ToString(m.Body)),
			Headers: fromAttributes(m.MessageAttributes),
			ID:      messageID(m),
		}, nil
	}
}

// Purge drains the queue with short polls. PurgeQueue would be one call,
// but SQS allows it only once per queue per minute.
func (b *Broker) Purge(ctx context.Context, queue string) error {
	url, err := b.queueURL(ctx, queue)
	if err != nil {
		return err
	}

	for {
		out, err := b.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
			QueueUrl:            aws.String(url),
			MaxNumberOfMessages: drainBatch,
			WaitTimeSeconds:     0,
		})
		if err != nil {
			return fmt.Errorf("failed to drain %q: %w", queue, err)
		}
		if len(out.Messages) == 0 {
			return nil
		}
		for _, m := range out.Messages {
			_, err := b.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
				QueueUrl:      aws.String(url),
				ReceiptHandle: m.ReceiptHandle,
			})
			if err != nil {
				return fmt.Errorf("failed to delete drained message from %q: %w", queue, err)
			}
		}
	}
}

func (b *Broker) Close() error {
	return nil
}

func messageID(m types.Message) string {
	if attr, ok := m.MessageAttributes[idAttribute]; ok {
		return aws.ToString(attr.StringValue)
	}
	return aws.ToString(m.MessageId)
}

func stringAttribute(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}

func toAttributes(headers map[string]string) map[string]types.MessageAttributeValue {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]types.MessageAttributeValue, len(headers))
	for k, v := range headers {
		attrs[k] = stringAttribute(v)
	}
	return attrs
}

func fromAttributes(attrs map[string]types.MessageAttributeValue) map[string]string {
	headers := make(map[string]string)
	for k, v := range attrs {
		if k == idAttribute {
			continue
		}
		if v.StringValue != nil {
			headers[k] = aws.ToString(v.StringValue)
		}
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
