package eventbus

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Deliver calls h until it succeeds, fails permanently or maxDeliveries attempts
// have been made, and returns the last error.
func Deliver(ctx context.Context, h Handler, msg Message, maxDeliveries int, logger *zap.Logger) error {
	var err error
	for attempt := 1; attempt <= max(maxDeliveries, 1); attempt++ {
		if err = h(ctx, msg); err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			logger.Error("❌ Dropping undeliverable message",
				zap.String("topic", msg.Topic), zap.String("key", msg.Key), zap.Error(err))
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		logger.Warn("Delivery failed",
			zap.String("topic", msg.Topic), zap.String("key", msg.Key),
			zap.Int("attempt", attempt), zap.Error(err))
	}
	logger.Error("❌ Delivery attempts exhausted",
		zap.String("topic", msg.Topic), zap.String("key", msg.Key), zap.Int("attempts", maxDeliveries))
	return err
}
