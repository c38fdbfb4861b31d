package events

import (
	"testing"

	"warehouseservice/internal/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseEventAcceptsMinimalPayload(t *testing.T) {
	// producers that only know id and resulting quantity
	e, err := Purchased.Decode(eventbus.Message{Payload: []byte(`{"id":"P1","quantity":7}`)})
	require.NoError(t, err)
	assert.Equal(t, "P1", e.ID)
	assert.Equal(t, 7, e.Quantity)
	assert.Zero(t, e.Requested)
	assert.Zero(t, e.Version)
	assert.Empty(t, e.EventID)
}

func TestTopicNames(t *testing.T) {
	assert.Equal(t, "product.purchased", Purchased.Name)
	assert.Equal(t, "product.updated", Updated.Name)
	assert.Equal(t, "product.purchase.rejected", Rejected.Name)
}
