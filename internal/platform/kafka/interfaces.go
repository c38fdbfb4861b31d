package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer is satisfied by the instrumented otelkafka writer.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Consumer is satisfied by the instrumented otelkafka reader.
type Consumer interface {
	ReadMessage(ctx context.Context) (*kafka.Message, error)
	Close() error
}

// Subscription describes the reader a ConsumerFactory must open. Broadcast
// readers use a group private to this instance and start at the newest offset.
type Subscription struct {
	Topic     string
	GroupID   string
	Broadcast bool
}

// ConsumerFactory opens a reader for one subscription.
type ConsumerFactory func(sub Subscription) (Consumer, error)
