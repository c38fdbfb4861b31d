package ledger

import (
	"warehouseservice/internal/config"
	"warehouseservice/internal/eventbus"

	"go.uber.org/zap"
)

// ConsumerService attaches the ledger's message handler to the purchase topic.
type ConsumerService interface {
	Register(sub eventbus.Subscriber) error
}

type BusConsumerService struct {
	messageHandler MessageHandler
	logger         *zap.Logger
}

func NewConsumerService(messageHandler MessageHandler, logger *zap.Logger) ConsumerService {
	return &BusConsumerService{
		messageHandler: messageHandler,
		logger:         logger,
	}
}

func (c *BusConsumerService) Register(sub eventbus.Subscriber) error {
	if err := sub.Subscribe(config.PurchasedTopic, c.messageHandler.HandlePurchase); err != nil {
		return err
	}
	c.logger.Info("Ledger consumer registered. Waiting for purchase events...", zap.String("topic", config.PurchasedTopic))
	return nil
}
