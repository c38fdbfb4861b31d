// Package events declares the payloads exchanged between the purchase
// coordinator and the stock ledger.
package events

import (
	"time"

	"warehouseservice/internal/config"
	"warehouseservice/internal/eventbus"
	"warehouseservice/internal/product"
)

// PurchaseEvent announces a validated purchase. Quantity is the resulting
// stock the coordinator computed from its snapshot, not a delta.
type PurchaseEvent struct {
	ID         string    `json:"id"`
	Quantity   int       `json:"quantity"`
	Requested  int       `json:"requested,omitempty"`
	EventID    string    `json:"eventId,omitempty"`
	Version    int64     `json:"version,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ProductUpdated is emitted after the ledger persisted a change.
type ProductUpdated struct {
	CorrelationID string          `json:"correlationId,omitempty"`
	Product       product.Product `json:"product"`
}

// PurchaseRejected is emitted when the ledger refuses to apply a purchase.
type PurchaseRejected struct {
	CorrelationID string `json:"correlationId,omitempty"`
	ID            string `json:"id"`
	Reason        string `json:"reason"`
}

var (
	Purchased = eventbus.NewTopic[PurchaseEvent](config.PurchasedTopic)
	Updated   = eventbus.NewTopic[ProductUpdated](config.UpdatedTopic)
	Rejected  = eventbus.NewTopic[PurchaseRejected](config.RejectedTopic)
)
