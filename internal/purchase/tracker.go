package purchase

import (
	"context"
	"sync"

	"warehouseservice/internal/eventbus"
	"warehouseservice/internal/events"
	"warehouseservice/internal/product"
)

type outcome struct {
	product  product.Product
	rejected bool
	reason   string
}

// tracker matches ledger notifications to purchases awaiting confirmation.
type tracker struct {
	mu      sync.Mutex
	waiters map[string]chan outcome
}

func newTracker() *tracker {
	return &tracker{waiters: make(map[string]chan outcome)}
}

// listen subscribes with Broadcast so every instance sees every notification
// and can resolve its own waiters.
func (t *tracker) listen(sub eventbus.Subscriber) error {
	if err := events.Updated.Subscribe(sub, func(_ context.Context, e events.ProductUpdated) error {
		t.resolve(e.CorrelationID, outcome{product: e.Product})
		return nil
	}, eventbus.Broadcast()); err != nil {
		return err
	}
	return events.Rejected.Subscribe(sub, func(_ context.Context, e events.PurchaseRejected) error {
		t.resolve(e.CorrelationID, outcome{rejected: true, reason: e.Reason})
		return nil
	}, eventbus.Broadcast())
}

// expect registers a waiter. It must be called before the purchase is
// published so a fast ledger cannot be missed.
func (t *tracker) expect(eventID string) (<-chan outcome, func()) {
	ch := make(chan outcome, 1)
	t.mu.Lock()
	t.waiters[eventID] = ch
	t.mu.Unlock()
	return ch, func() {
		t.mu.Lock()
		delete(t.waiters, eventID)
		t.mu.Unlock()
	}
}

func (t *tracker) resolve(eventID string, o outcome) {
	if eventID == "" {
		return
	}
	t.mu.Lock()
	ch, ok := t.waiters[eventID]
	delete(t.waiters, eventID)
	t.mu.Unlock()
	if ok {
		ch <- o
	}
}

func (t *tracker) waiting() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}
