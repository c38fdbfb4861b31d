package ledger

import (
	"context"

	"warehouseservice/internal/eventbus"
	"warehouseservice/internal/events"
	"warehouseservice/internal/platform/observability"

	"go.uber.org/zap"
)

// MessageHandler defines the interface for processing incoming messages.
type MessageHandler interface {
	HandlePurchase(ctx context.Context, msg eventbus.Message) error
}

// EventHandler decodes purchase messages, applies them and publishes the outcome.
type EventHandler struct {
	service   Service
	publisher eventbus.Publisher
	logger    observability.Logger
}

func NewMessageHandler(service Service, publisher eventbus.Publisher, logger observability.Logger) MessageHandler {
	return &EventHandler{
		service:   service,
		publisher: publisher,
		logger:    logger,
	}
}

// HandlePurchase processes a product.purchased message. Malformed payloads and
// rejections are final; store failures are returned for redelivery.
func (h *EventHandler) HandlePurchase(ctx context.Context, msg eventbus.Message) error {
	msgCtx := observability.ExtractHeaders(ctx, msg.Headers)

	h.logger.Info("📨 Purchase message received", zap.String("topic", msg.Topic), zap.String("key", msg.Key))

	event, err := events.Purchased.Decode(msg)
	if err != nil {
		h.logger.Error("❌ Invalid JSON in purchase event",
			zap.Error(err),
			zap.ByteString("raw_value", msg.Payload),
		)
		return err
	}

	updated, err := h.service.Apply(msgCtx, event)
	if err != nil {
		if IsRejection(err) {
			h.logger.Warn("Purchase rejected",
				zap.String("product_id", event.ID), zap.String("event_id", event.EventID), zap.Error(err))
			return h.publishRejected(msgCtx, events.PurchaseRejected{
				CorrelationID: event.EventID,
				ID:            event.ID,
				Reason:        err.Error(),
			})
		}
		h.logger.Error("❌ Failed to apply purchase", zap.Error(err), zap.String("product_id", event.ID))
		return err
	}

	h.logger.Info("✅ Stock updated",
		zap.String("product_id", updated.ID),
		zap.Int("quantity", updated.Quantity),
		zap.Int64("version", updated.Version),
	)

	return h.publishUpdated(msgCtx, events.ProductUpdated{CorrelationID: event.EventID, Product: updated})
}

func (h *EventHandler) publishUpdated(ctx context.Context, event events.ProductUpdated) error {
	if err := events.Updated.Publish(ctx, h.publisher, event.Product.ID, event); err != nil {
		h.logger.Error("❌ Failed to publish product updated event", zap.Error(err), zap.String("product_id", event.Product.ID))
		return err
	}
	h.logger.Info("📤 Sent product updated event", zap.String("product_id", event.Product.ID))
	return nil
}

func (h *EventHandler) publishRejected(ctx context.Context, event events.PurchaseRejected) error {
	if err := events.Rejected.Publish(ctx, h.publisher, event.ID, event); err != nil {
		h.logger.Error("❌ Failed to publish purchase rejected event", zap.Error(err), zap.String("product_id", event.ID))
		return err
	}
	h.logger.Info("📤 Sent purchase rejected event", zap.String("product_id", event.ID))
	return nil
}
