package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"warehouseservice/internal/platform/observability"
)

// Topic binds a topic name to its JSON payload type.
type Topic[T any] struct {
	Name string
}

func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{Name: name}
}

// Publish encodes event and sends it with the trace context of ctx in the headers.
func (t Topic[T]) Publish(ctx context.Context, p Publisher, key string, event T) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", t.Name, err)
	}
	headers := make(map[string]string)
	observability.InjectHeaders(ctx, headers)
	return p.Publish(ctx, Message{
		Topic:   t.Name,
		Key:     key,
		Payload: payload,
		Headers: headers,
	})
}

// Decode parses a message payload. Malformed payloads are permanent failures.
func (t Topic[T]) Decode(msg Message) (T, error) {
	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return event, fmt.Errorf("%w: invalid %s payload: %w", ErrPermanent, t.Name, err)
	}
	return event, nil
}

// Subscribe registers a typed handler. The handler context carries the
// publisher's trace context.
func (t Topic[T]) Subscribe(s Subscriber, handler func(ctx context.Context, event T) error, opts ...SubscribeOption) error {
	return s.Subscribe(t.Name, func(ctx context.Context, msg Message) error {
		event, err := t.Decode(msg)
		if err != nil {
			return err
		}
		return handler(observability.ExtractHeaders(ctx, msg.Headers), event)
	}, opts...)
}
