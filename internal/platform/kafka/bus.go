// Package kafka carries bus messages over Kafka topics. Messages are keyed by
// product id, so events for one product land on one partition.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"warehouseservice/internal/eventbus"
	"warehouseservice/internal/product"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type subscriptionKey struct {
	topic     string
	broadcast bool
}

type Bus struct {
	producer      Producer
	newConsumer   ConsumerFactory
	groupID       string
	instanceGroup string
	logger        *zap.Logger
	maxDeliveries int

	mu        sync.Mutex
	handlers  map[subscriptionKey][]eventbus.Handler
	consumers []Consumer
	closed    bool
}

// NewBus creates a bus whose shared subscriptions join groupID. Broadcast
// subscriptions join a group unique to this bus.
func NewBus(producer Producer, newConsumer ConsumerFactory, groupID string, logger *zap.Logger, maxDeliveries int) *Bus {
	if maxDeliveries < 1 {
		maxDeliveries = 1
	}
	return &Bus{
		producer:      producer,
		newConsumer:   newConsumer,
		groupID:       groupID,
		instanceGroup: groupID + "." + uuid.NewString(),
		logger:        logger,
		maxDeliveries: maxDeliveries,
		handlers:      make(map[subscriptionKey][]eventbus.Handler),
	}
}

func (b *Bus) Publish(ctx context.Context, msg eventbus.Message) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return eventbus.ErrClosed
	}

	kmsg := kafkago.Message{
		Topic: msg.Topic,
		Key:   []byte(msg.Key),
		Value: msg.Payload,
	}
	for k, v := range msg.Headers {
		kmsg.Headers = append(kmsg.Headers, kafkago.Header{Key: k, Value: []byte(v)})
	}

	if err := b.producer.WriteMessage(ctx, kmsg); err != nil {
		return fmt.Errorf("%w: kafka write to %s: %w", product.ErrTransport, msg.Topic, err)
	}
	return nil
}

func (b *Bus) Subscribe(topic string, handler eventbus.Handler, opts ...eventbus.SubscribeOption) error {
	key := subscriptionKey{topic: topic, broadcast: eventbus.ApplySubscribeOptions(opts...).Broadcast}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return eventbus.ErrClosed
	}
	b.handlers[key] = append(b.handlers[key], handler)
	return nil
}

func (b *Bus) subscription(key subscriptionKey) Subscription {
	sub := Subscription{Topic: key.topic, GroupID: b.groupID, Broadcast: key.broadcast}
	if key.broadcast {
		sub.GroupID = b.instanceGroup
	}
	return sub
}

// Run opens one reader per subscription and consumes until ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	b.mu.Lock()
	subscriptions := make(map[subscriptionKey][]eventbus.Handler, len(b.handlers))
	for key, hs := range b.handlers {
		subscriptions[key] = append([]eventbus.Handler(nil), hs...)
	}
	b.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for key, handlers := range subscriptions {
		topic := key.topic
		consumer, err := b.newConsumer(b.subscription(key))
		if err != nil {
			return fmt.Errorf("%w: failed to create kafka reader for %s: %w", product.ErrTransport, topic, err)
		}
		b.mu.Lock()
		b.consumers = append(b.consumers, consumer)
		b.mu.Unlock()

		g.Go(func() error {
			return b.consume(gctx, topic, consumer, handlers)
		})
	}
	return g.Wait()
}

func (b *Bus) consume(ctx context.Context, topic string, consumer Consumer, handlers []eventbus.Handler) error {
	b.logger.Info("Kafka consumer started. Waiting for messages...", zap.String("topic", topic))

	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				b.logger.Info("Context done, exiting Kafka read loop.", zap.String("topic", topic), zap.Error(err))
				break
			}
			b.logger.Error("❌ Error reading from Kafka", zap.String("topic", topic), zap.Error(err))
			continue
		}

		b.logger.Debug("📨 Raw Kafka message received",
			zap.ByteString("key", msg.Key),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
		)

		busMsg := toBusMessage(topic, msg)
		// the reader commits on read, so a message still failing after the
		// last attempt is dropped
		for _, h := range handlers {
			_ = eventbus.Deliver(ctx, h, busMsg, b.maxDeliveries, b.logger)
		}
	}

	b.logger.Info("Consumer finished.", zap.String("topic", topic))
	return nil
}

func toBusMessage(topic string, msg *kafkago.Message) eventbus.Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if msg.Topic != "" {
		topic = msg.Topic
	}
	return eventbus.Message{
		Topic:   topic,
		Key:     string(msg.Key),
		Payload: msg.Value,
		Headers: headers,
	}
}

// Close stops accepting publishes and closes readers and the writer.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	consumers := b.consumers
	b.consumers = nil
	b.mu.Unlock()

	var errs []error
	for _, c := range consumers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close message consumer: %w", err))
		}
	}
	if err := b.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close message producer: %w", err))
	}
	return errors.Join(errs...)
}
