package store

import (
	"context"
	"testing"

	"warehouseservice/internal/product"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) product.Store { return NewMemoryStore() })
}

func TestMemoryStoreRejectsDuplicateIDs(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.InsertMany(context.Background(), []product.Product{
		{ID: "dup", Name: "first", Quantity: 1, Price: 1},
		{ID: "dup", Name: "second", Quantity: 1, Price: 1},
	})
	assert.ErrorIs(t, err, product.ErrInvalidProduct)

	n, _ := s.Count(context.Background())
	assert.Zero(t, n)
}
