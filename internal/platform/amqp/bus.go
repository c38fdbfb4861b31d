// Package amqp carries bus messages over a RabbitMQ topic exchange. Topics are
// routing keys; every subscribed topic gets its own durable queue, and
// broadcast subscriptions get an exclusive queue owned by this connection.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"warehouseservice/internal/eventbus"
	"warehouseservice/internal/product"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	publishTimeout = 5 * time.Second
	exchangeType   = "topic"
	confirmBuffer  = 128
)

// publishChannel is the part of *amqp.Channel the producer side uses.
type publishChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type subscriptionKey struct {
	topic     string
	broadcast bool
}

type Config struct {
	URL           string
	Exchange      string
	QueuePrefix   string
	Prefetch      int
	MaxDeliveries int
}

type Bus struct {
	cfg    Config
	logger *zap.Logger

	connection    *amqp.Connection
	producerChan  publishChannel
	notifyConfirm chan amqp.Confirmation
	publishMu     sync.Mutex
	// publishTag is the delivery tag of the last successful publish; the
	// broker numbers them from 1 once the channel is in confirm mode.
	publishTag uint64

	mu       sync.Mutex
	handlers map[subscriptionKey][]eventbus.Handler
	closed   bool
}

// Dial connects, opens a producer channel in confirm mode and declares the exchange.
func Dial(cfg Config, logger *zap.Logger) (*Bus, error) {
	logger.Info("Attempting to connect to RabbitMQ", zap.String("exchange", cfg.Exchange))
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial RabbitMQ: %w", product.ErrTransport, err)
	}

	b := &Bus{
		cfg:        cfg,
		logger:     logger,
		connection: conn,
		handlers:   make(map[subscriptionKey][]eventbus.Handler),
	}
	if err := b.setupProducerChannel(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to setup producer channel: %w", product.ErrTransport, err)
	}

	logger.Info("RabbitMQ connected and producer channel initialized")
	return b, nil
}

func (b *Bus) setupProducerChannel() error {
	ch, err := b.connection.Channel()
	if err != nil {
		return fmt.Errorf("failed to open producer channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("producer channel could not be put into confirm mode: %w", err)
	}
	b.notifyConfirm = ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))
	b.publishTag = 0

	if err := ch.ExchangeDeclare(b.cfg.Exchange, exchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", b.cfg.Exchange, err)
	}
	b.producerChan = ch
	return nil
}

// Publish sends msg and waits for the broker's confirmation of that message.
// Confirmations left over from publishes that gave up waiting are skipped.
func (b *Bus) Publish(ctx context.Context, msg eventbus.Message) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return eventbus.ErrClosed
	}

	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	if err := b.producerChan.Publish(b.cfg.Exchange, msg.Topic, false, false, toPublishing(msg, time.Now())); err != nil {
		return fmt.Errorf("%w: failed to publish message: %w", product.ErrTransport, err)
	}
	b.publishTag++
	tag := b.publishTag

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	for {
		select {
		case confirm, ok := <-b.notifyConfirm:
			if !ok {
				return fmt.Errorf("%w: producer channel closed", product.ErrTransport)
			}
			if confirm.DeliveryTag < tag {
				b.logger.Debug("Discarding late publish confirmation",
					zap.Uint64("delivery_tag", confirm.DeliveryTag), zap.Uint64("awaiting", tag))
				continue
			}
			if !confirm.Ack {
				return fmt.Errorf("%w: message published but not confirmed", product.ErrTransport)
			}
			return nil
		case <-timer.C:
			return fmt.Errorf("%w: publish confirmation timeout", product.ErrTransport)
		case <-ctx.Done():
			return fmt.Errorf("%w: publish confirmation: %w", product.ErrTransport, ctx.Err())
		}
	}
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

type queueSpec struct {
	name       string
	durable    bool
	autoDelete bool
	exclusive  bool
}

// subscriptionQueue describes the queue backing a subscription. Broadcast
// queues are server-named and vanish with the connection.
func subscriptionQueue(prefix, topic string, broadcast bool) queueSpec {
	if broadcast {
		return queueSpec{autoDelete: true, exclusive: true}
	}
	return queueSpec{name: QueueName(prefix, topic), durable: true}
}

// Run declares a queue per subscription and consumes until ctx is done or
// the broker closes the channel.
func (b *Bus) Run(ctx context.Context) error {
	b.mu.Lock()
	subscriptions := make(map[subscriptionKey][]eventbus.Handler, len(b.handlers))
	for key, hs := range b.handlers {
		subscriptions[key] = append([]eventbus.Handler(nil), hs...)
	}
	b.mu.Unlock()
	if len(subscriptions) == 0 {
		<-ctx.Done()
		return nil
	}

	ch, err := b.connection.Channel()
	if err != nil {
		return fmt.Errorf("%w: failed to open consumer channel: %w", product.ErrTransport, err)
	}
	defer ch.Close()

	if err := ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("%w: failed to set QoS: %w", product.ErrTransport, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for key, handlers := range subscriptions {
		topic := key.topic
		spec := subscriptionQueue(b.cfg.QueuePrefix, topic, key.broadcast)
		declared, err := ch.QueueDeclare(spec.name, spec.durable, spec.autoDelete, spec.exclusive, false, nil)
		if err != nil {
			return fmt.Errorf("%w: failed to declare queue for %s: %w", product.ErrTransport, topic, err)
		}
		queue := declared.Name
		if err := ch.QueueBind(queue, topic, b.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("%w: failed to bind queue %s: %w", product.ErrTransport, queue, err)
		}
		deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("%w: failed to register consumer on %s: %w", product.ErrTransport, queue, err)
		}

		b.logger.Info("Consumer started.", zap.String("queue", queue), zap.String("routing_key", topic))
		g.Go(func() error {
			return b.consume(gctx, queue, deliveries, handlers)
		})
	}
	return g.Wait()
}

func (b *Bus) consume(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, handlers []eventbus.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				b.logger.Warn("Delivery channel closed. Consumer stopping.", zap.String("queue", queue))
				return fmt.Errorf("%w: delivery channel for %s closed", product.ErrTransport, queue)
			}
			b.handle(ctx, d, handlers)
		}
	}
}

// handle acks on success, drops permanent failures and requeues a transient
// failure once.
func (b *Bus) handle(ctx context.Context, d amqp.Delivery, handlers []eventbus.Handler) {
	msg := fromDelivery(d)
	var failed error
	for _, h := range handlers {
		if err := eventbus.Deliver(ctx, h, msg, b.cfg.MaxDeliveries, b.logger); err != nil {
			failed = err
		}
	}

	var err error
	switch {
	case failed == nil:
		err = d.Ack(false)
	case errors.Is(failed, eventbus.ErrPermanent) || d.Redelivered:
		err = d.Nack(false, false)
	default:
		err = d.Nack(false, true)
	}
	if err != nil {
		b.logger.Error("❌ Failed to settle delivery", zap.String("routing_key", d.RoutingKey), zap.Error(err))
	}
}

func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	if b.connection != nil && !b.connection.IsClosed() {
		return b.connection.Close()
	}
	return nil
}

func QueueName(prefix, topic string) string {
	if prefix == "" {
		return topic
	}
	return prefix + "." + topic
}

func toPublishing(msg eventbus.Message, now time.Time) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	return amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.Key,
		Timestamp:    now,
		Body:         msg.Payload,
	}
}

func fromDelivery(d amqp.Delivery) eventbus.Message {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		switch val := v.(type) {
		case string:
			headers[k] = val
		case []byte:
			headers[k] = string(val)
		}
	}
	return eventbus.Message{
		Topic:   d.RoutingKey,
		Key:     d.MessageId,
		Payload: d.Body,
		Headers: headers,
	}
}
