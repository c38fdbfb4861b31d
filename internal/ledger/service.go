// Package ledger owns authoritative stock. It consumes purchase events and
// persists the resulting quantities.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"warehouseservice/internal/config"
	"warehouseservice/internal/events"
	"warehouseservice/internal/platform/observability"
	"warehouseservice/internal/product"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Policy selects how a purchase event is applied to the stored record.
type Policy string

const (
	// Overwrite stores the event's resulting quantity unconditionally. Concurrent
	// or reordered events can lose updates.
	Overwrite Policy = config.PolicyOverwrite
	// Versioned stores the resulting quantity only if the record is still at the
	// version the purchase was computed from.
	Versioned Policy = config.PolicyVersioned
	// Delta atomically subtracts the requested amount if enough stock remains.
	Delta Policy = config.PolicyDelta
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case Overwrite, Versioned, Delta:
		return p, nil
	default:
		return "", fmt.Errorf("unknown apply policy %q", s)
	}
}

// Service defines the stock mutation applied for each purchase event.
type Service interface {
	Apply(ctx context.Context, event events.PurchaseEvent) (product.Product, error)
}

// DefaultService applies purchase events to a product store.
type DefaultService struct {
	store  product.Store
	policy Policy
	logger observability.Logger
	tracer observability.Tracer
}

func NewService(store product.Store, policy Policy, logger observability.Logger, tracer observability.Tracer) Service {
	return &DefaultService{
		store:  store,
		policy: policy,
		logger: logger,
		tracer: tracer,
	}
}

// Apply persists the purchase and returns the updated record.
func (s *DefaultService) Apply(ctx context.Context, event events.PurchaseEvent) (product.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.apply")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.id", event.ID),
		attribute.String("ledger.policy", string(s.policy)),
		attribute.Int("purchase.resulting", event.Quantity),
		attribute.Int("purchase.requested", event.Requested),
		attribute.Int64("purchase.version", event.Version),
	)

	s.logger.Info("🔍 Applying purchase",
		zap.String("product_id", event.ID),
		zap.String("event_id", event.EventID),
		zap.String("policy", string(s.policy)),
	)

	updated, err := s.apply(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return product.Product{}, err
	}

	span.SetAttributes(attribute.Int("inventory.quantity", updated.Quantity), attribute.Int64("inventory.version", updated.Version))
	span.SetStatus(codes.Ok, "stock updated")
	return updated, nil
}

func (s *DefaultService) apply(ctx context.Context, event events.PurchaseEvent) (product.Product, error) {
	switch s.policy {
	case Overwrite:
		quantity := event.Quantity
		return s.store.UpdateByID(ctx, event.ID, product.Fields{Quantity: &quantity})
	case Versioned:
		if event.Version == 0 {
			return product.Product{}, fmt.Errorf("%w: event %s carries no version", product.ErrStaleVersion, event.EventID)
		}
		return s.store.CompareAndSetQuantity(ctx, event.ID, event.Version, event.Quantity)
	case Delta:
		if err := product.ValidateQuantity(event.Requested); err != nil {
			return product.Product{}, err
		}
		return s.store.DecrementQuantity(ctx, event.ID, event.Requested)
	default:
		return product.Product{}, fmt.Errorf("unknown apply policy %q", s.policy)
	}
}

// IsRejection reports whether err is a business refusal rather than a
// transport failure. Rejections are final and are not redelivered.
func IsRejection(err error) bool {
	return errors.Is(err, product.ErrStaleVersion) ||
		errors.Is(err, product.ErrInsufficientStock) ||
		errors.Is(err, product.ErrNotFound) ||
		errors.Is(err, product.ErrInvalidQuantity)
}
