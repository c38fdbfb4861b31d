package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const DefaultMaxDeliveries = 3

type MemoryOption func(*MemoryBus)

// WithMaxDeliveries bounds the attempts made for a failing message.
func WithMaxDeliveries(n int) MemoryOption {
	return func(b *MemoryBus) {
		if n > 0 {
			b.maxDeliveries = n
		}
	}
}

// MemoryBus delivers every message to every subscriber of its topic on a
// separate goroutine, so deliveries are unordered.
type MemoryBus struct {
	mu            sync.RWMutex
	handlers      map[string][]Handler
	maxDeliveries int
	logger        *zap.Logger

	closed  bool
	pending atomic.Int64
	wg      sync.WaitGroup
}

func NewMemoryBus(logger *zap.Logger, opts ...MemoryOption) *MemoryBus {
	b := &MemoryBus{
		handlers:      make(map[string][]Handler),
		maxDeliveries: DefaultMaxDeliveries,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler. Every subscription is local to the process, so
// options have no effect.
func (b *MemoryBus) Subscribe(topic string, handler Handler, _ ...SubscribeOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// Publish schedules delivery and returns immediately.
func (b *MemoryBus) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	deliveryCtx := context.WithoutCancel(ctx)
	for _, h := range b.handlers[msg.Topic] {
		b.pending.Add(1)
		b.wg.Add(1)
		go b.deliver(deliveryCtx, h, msg)
	}
	return nil
}

func (b *MemoryBus) deliver(ctx context.Context, h Handler, msg Message) {
	defer b.wg.Done()
	defer b.pending.Add(-1)
	_ = Deliver(ctx, h, msg, b.maxDeliveries, b.logger)
}

// Pending reports deliveries that have not finished yet.
func (b *MemoryBus) Pending() int64 {
	return b.pending.Load()
}

// Drain waits until every scheduled delivery, including those published by
// handlers while draining, has finished.
func (b *MemoryBus) Drain(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for b.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Run blocks until ctx is done. Deliveries start as soon as messages are published.
func (b *MemoryBus) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Close rejects further publishes and waits for in-flight deliveries.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}
