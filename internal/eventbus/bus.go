// Package eventbus is the message channel between the purchase coordinator and
// the stock ledger. Delivery is at-least-once and unordered between producers.
package eventbus

import (
	"context"
	"errors"
)

var (
	// ErrPermanent marks a message that must not be redelivered.
	ErrPermanent = errors.New("permanent delivery failure")
	// ErrClosed is returned by Publish after the bus has been closed.
	ErrClosed = errors.New("event bus closed")
)

// Message is a transport-neutral event envelope. Headers carry trace context.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
	Headers map[string]string
}

// Handler processes one delivery. A nil error acknowledges the message; an error
// wrapping ErrPermanent drops it; any other error asks for redelivery.
type Handler func(ctx context.Context, msg Message) error

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type Subscriber interface {
	Subscribe(topic string, handler Handler, opts ...SubscribeOption) error
}

// SubscribeOptions tune how a transport attaches a subscription.
type SubscribeOptions struct {
	// Broadcast delivers every message to this instance instead of sharing the
	// topic with the other replicas of the service.
	Broadcast bool
}

type SubscribeOption func(*SubscribeOptions)

// Broadcast makes the subscription private to this instance.
func Broadcast() SubscribeOption {
	return func(o *SubscribeOptions) {
		o.Broadcast = true
	}
}

func ApplySubscribeOptions(opts ...SubscribeOption) SubscribeOptions {
	var o SubscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Bus is implemented by the in-memory, Kafka and AMQP transports. Subscriptions
// are registered before Run, which blocks until ctx is done.
type Bus interface {
	Publisher
	Subscriber
	Run(ctx context.Context) error
	Close() error
}
