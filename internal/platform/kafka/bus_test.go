package kafka

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"warehouseservice/internal/eventbus"
	"warehouseservice/internal/product"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeProducer struct {
	mu       sync.Mutex
	messages []kafkago.Message
	err      error
	closed   bool
}

func (p *fakeProducer) WriteMessage(_ context.Context, msg kafkago.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeProducer) Close() error {
	p.closed = true
	return nil
}

// fakeConsumer serves queued messages and then blocks until ctx is done.
type fakeConsumer struct {
	messages chan *kafkago.Message
	closed   bool
}

func newFakeConsumer(msgs ...kafkago.Message) *fakeConsumer {
	c := &fakeConsumer{messages: make(chan *kafkago.Message, len(msgs))}
	for i := range msgs {
		c.messages <- &msgs[i]
	}
	return c
}

func (c *fakeConsumer) ReadMessage(ctx context.Context) (*kafkago.Message, error) {
	select {
	case m := <-c.messages:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConsumer) Close() error {
	c.closed = true
	return nil
}

func TestPublishWritesKeyedMessage(t *testing.T) {
	p := &fakeProducer{}
	b := NewBus(p, nil, "g", zaptest.NewLogger(t), 1)

	err := b.Publish(context.Background(), eventbus.Message{
		Topic:   "product.purchased",
		Key:     "P1",
		Payload: []byte(`{"id":"P1"}`),
		Headers: map[string]string{"traceparent": "00-abc"},
	})
	require.NoError(t, err)

	require.Len(t, p.messages, 1)
	m := p.messages[0]
	assert.Equal(t, "product.purchased", m.Topic)
	assert.Equal(t, []byte("P1"), m.Key)
	assert.Equal(t, []kafkago.Header{{Key: "traceparent", Value: []byte("00-abc")}}, m.Headers)
}

func TestPublishWrapsWriterErrors(t *testing.T) {
	b := NewBus(&fakeProducer{err: errors.New("leader not available")}, nil, "g", zaptest.NewLogger(t), 1)

	err := b.Publish(context.Background(), eventbus.Message{Topic: "t"})
	assert.ErrorIs(t, err, product.ErrTransport)
}

func TestRunDispatchesToSubscribers(t *testing.T) {
	consumer := newFakeConsumer(kafkago.Message{
		Key:     []byte("P1"),
		Value:   []byte(`{"id":"P1"}`),
		Headers: []kafkago.Header{{Key: "traceparent", Value: []byte("00-abc")}},
	})
	var opened []string
	b := NewBus(&fakeProducer{}, func(sub Subscription) (Consumer, error) {
		opened = append(opened, sub.Topic)
		return consumer, nil
	}, "g", zaptest.NewLogger(t), 3)

	got := make(chan eventbus.Message, 1)
	var attempts int
	require.NoError(t, b.Subscribe("product.purchased", func(_ context.Context, msg eventbus.Message) error {
		attempts++
		if attempts < 2 {
			return errors.New("store unavailable")
		}
		got <- msg
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	select {
	case msg := <-got:
		assert.Equal(t, "product.purchased", msg.Topic)
		assert.Equal(t, "P1", msg.Key)
		assert.Equal(t, "00-abc", msg.Headers["traceparent"])
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"product.purchased"}, opened)
	assert.Equal(t, 2, attempts)
}

func TestRunSkipsPermanentFailures(t *testing.T) {
	consumer := newFakeConsumer(kafkago.Message{Value: []byte("bad")}, kafkago.Message{Value: []byte("good")})
	b := NewBus(&fakeProducer{}, func(Subscription) (Consumer, error) { return consumer, nil }, "g", zaptest.NewLogger(t), 3)

	seen := make(chan string, 4)
	require.NoError(t, b.Subscribe("t", func(_ context.Context, msg eventbus.Message) error {
		seen <- string(msg.Payload)
		if string(msg.Payload) == "bad" {
			return eventbus.ErrPermanent
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	assert.Equal(t, "bad", <-seen)
	assert.Equal(t, "good", <-seen)
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, seen)
}

func TestRunFailsWhenReaderCannotBeCreated(t *testing.T) {
	b := NewBus(&fakeProducer{}, func(Subscription) (Consumer, error) {
		return nil, errors.New("no brokers")
	}, "g", zaptest.NewLogger(t), 1)
	require.NoError(t, b.Subscribe("t", func(context.Context, eventbus.Message) error { return nil }))

	err := b.Run(context.Background())
	assert.ErrorIs(t, err, product.ErrTransport)
}

func TestCloseClosesReadersAndWriter(t *testing.T) {
	p := &fakeProducer{}
	consumer := newFakeConsumer()
	b := NewBus(p, func(Subscription) (Consumer, error) { return consumer, nil }, "g", zaptest.NewLogger(t), 1)
	require.NoError(t, b.Subscribe("t", func(context.Context, eventbus.Message) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, b.Run(ctx))

	require.NoError(t, b.Close())
	assert.True(t, consumer.closed)
	assert.True(t, p.closed)
	assert.ErrorIs(t, b.Publish(context.Background(), eventbus.Message{Topic: "t"}), eventbus.ErrClosed)
}

func TestBroadcastSubscriptionsUseInstanceGroup(t *testing.T) {
	var mu sync.Mutex
	opened := map[string]Subscription{}
	factory := func(sub Subscription) (Consumer, error) {
		mu.Lock()
		defer mu.Unlock()
		opened[sub.Topic] = sub
		return newFakeConsumer(), nil
	}
	noop := func(context.Context, eventbus.Message) error { return nil }

	first := NewBus(&fakeProducer{}, factory, "warehouse", zaptest.NewLogger(t), 1)
	require.NoError(t, first.Subscribe("product.purchased", noop))
	require.NoError(t, first.Subscribe("product.updated", noop, eventbus.Broadcast()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, first.Run(ctx))

	shared := opened["product.purchased"]
	assert.Equal(t, "warehouse", shared.GroupID)
	assert.False(t, shared.Broadcast)

	private := opened["product.updated"]
	assert.True(t, private.Broadcast)
	assert.NotEqual(t, "warehouse", private.GroupID)
	assert.True(t, strings.HasPrefix(private.GroupID, "warehouse."))

	second := NewBus(&fakeProducer{}, factory, "warehouse", zaptest.NewLogger(t), 1)
	assert.NotEqual(t, first.subscription(subscriptionKey{topic: "product.updated", broadcast: true}).GroupID,
		second.subscription(subscriptionKey{topic: "product.updated", broadcast: true}).GroupID)
}
