// Package purchase validates buy requests against a catalog snapshot and
// announces them to the stock ledger.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warehouseservice/internal/eventbus"
	"warehouseservice/internal/events"
	"warehouseservice/internal/platform/observability"
	"warehouseservice/internal/product"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const DefaultConfirmTimeout = 5 * time.Second

var (
	// ErrPurchaseRejected is returned by BuyAndConfirm when the ledger refused the purchase.
	ErrPurchaseRejected = errors.New("purchase rejected by ledger")
	// ErrConfirmationTimeout is returned by BuyAndConfirm when the ledger did not answer in time.
	ErrConfirmationTimeout = errors.New("purchase confirmation timed out")
)

// Catalog is the snapshot read the coordinator validates against.
type Catalog interface {
	Get(ctx context.Context, id string) (product.Product, error)
}

// Confirmation is the answer to a buy request. Remaining is the coordinator's
// own computation unless Confirmed is set, in which case it comes from the ledger.
type Confirmation struct {
	EventID   string `json:"eventId"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Remaining int    `json:"remaining"`
	Confirmed bool   `json:"confirmed"`
	Message   string `json:"message"`
}

type Option func(*Coordinator)

func WithConfirmTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.confirmTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

type Coordinator struct {
	catalog        Catalog
	publisher      eventbus.Publisher
	logger         observability.Logger
	tracer         observability.Tracer
	tracker        *tracker
	confirmTimeout time.Duration
	now            func() time.Time
}

func NewCoordinator(catalog Catalog, publisher eventbus.Publisher, logger observability.Logger, tracer observability.Tracer, opts ...Option) *Coordinator {
	c := &Coordinator{
		catalog:        catalog,
		publisher:      publisher,
		logger:         logger,
		tracer:         tracer,
		tracker:        newTracker(),
		confirmTimeout: DefaultConfirmTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Listen subscribes to ledger notifications so BuyAndConfirm can observe them.
func (c *Coordinator) Listen(sub eventbus.Subscriber) error {
	return c.tracker.listen(sub)
}

// Buy validates the request, publishes exactly one purchase event and returns
// without waiting for the ledger.
func (c *Coordinator) Buy(ctx context.Context, productID string, quantity int) (Confirmation, error) {
	ctx, span := c.tracer.Start(ctx, "purchase.buy")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("purchase.requested", quantity))

	event, snapshot, err := c.prepare(ctx, productID, quantity)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Confirmation{}, err
	}
	span.SetAttributes(attribute.Int("purchase.resulting", event.Quantity))

	if err := c.publish(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Confirmation{}, err
	}

	span.SetStatus(codes.Ok, "purchase published")
	return newConfirmation(event, snapshot.Name, event.Quantity, false), nil
}

// BuyAndConfirm behaves like Buy and then waits for the ledger to apply or
// reject the purchase.
func (c *Coordinator) BuyAndConfirm(ctx context.Context, productID string, quantity int) (Confirmation, error) {
	ctx, span := c.tracer.Start(ctx, "purchase.buy_and_confirm")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("purchase.requested", quantity))

	event, snapshot, err := c.prepare(ctx, productID, quantity)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Confirmation{}, err
	}

	wait, cancel := c.tracker.expect(event.EventID)
	defer cancel()

	if err := c.publish(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Confirmation{}, err
	}

	timer := time.NewTimer(c.confirmTimeout)
	defer timer.Stop()

	select {
	case o := <-wait:
		if o.rejected {
			err := fmt.Errorf("%w: %s", ErrPurchaseRejected, o.reason)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Warn("Purchase rejected by ledger",
				zap.String("product_id", productID), zap.String("event_id", event.EventID), zap.String("reason", o.reason))
			return Confirmation{}, err
		}
		span.SetAttributes(attribute.Int("purchase.confirmed_remaining", o.product.Quantity))
		span.SetStatus(codes.Ok, "purchase confirmed")
		return newConfirmation(event, snapshot.Name, o.product.Quantity, true), nil
	case <-timer.C:
		span.SetStatus(codes.Error, ErrConfirmationTimeout.Error())
		return Confirmation{}, fmt.Errorf("%w after %s", ErrConfirmationTimeout, c.confirmTimeout)
	case <-ctx.Done():
		err := ctx.Err()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Confirmation{}, err
	}
}

func (c *Coordinator) prepare(ctx context.Context, productID string, quantity int) (events.PurchaseEvent, product.Product, error) {
	if err := product.ValidateQuantity(quantity); err != nil {
		return events.PurchaseEvent{}, product.Product{}, err
	}

	snapshot, err := c.catalog.Get(ctx, productID)
	if err != nil {
		return events.PurchaseEvent{}, product.Product{}, err
	}

	if quantity > snapshot.Quantity {
		c.logger.Info("Purchase exceeds stock",
			zap.String("product_id", productID), zap.Int("requested", quantity), zap.Int("available", snapshot.Quantity))
		return events.PurchaseEvent{}, product.Product{}, product.ErrInsufficientStock
	}

	return events.PurchaseEvent{
		ID:         snapshot.ID,
		Quantity:   snapshot.Quantity - quantity,
		Requested:  quantity,
		EventID:    uuid.NewString(),
		Version:    snapshot.Version,
		OccurredAt: c.now().UTC(),
	}, snapshot, nil
}

func (c *Coordinator) publish(ctx context.Context, event events.PurchaseEvent) error {
	if err := events.Purchased.Publish(ctx, c.publisher, event.ID, event); err != nil {
		c.logger.Error("❌ Failed to publish purchase event",
			zap.String("product_id", event.ID), zap.String("event_id", event.EventID), zap.Error(err))
		if errors.Is(err, product.ErrTransport) {
			return err
		}
		return fmt.Errorf("%w: failed to publish purchase: %w", product.ErrTransport, err)
	}

	c.logger.Info("📤 Sent purchase event",
		zap.String("product_id", event.ID),
		zap.String("event_id", event.EventID),
		zap.Int("requested", event.Requested),
		zap.Int("resulting", event.Quantity),
	)
	return nil
}

func newConfirmation(event events.PurchaseEvent, name string, remaining int, confirmed bool) Confirmation {
	return Confirmation{
		EventID:   event.EventID,
		ProductID: event.ID,
		Name:      name,
		Requested: event.Requested,
		Remaining: remaining,
		Confirmed: confirmed,
		Message:   fmt.Sprintf("%d %s Bought Successfully And Remaining Amount is %d", event.Requested, name, remaining),
	}
}
