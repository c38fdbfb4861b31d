package store

import (
	"context"
	"sync"
	"testing"

	"warehouseservice/internal/product"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behavior every product.Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) product.Store) {
	ctx := context.Background()

	seed := func(t *testing.T, s product.Store) product.Product {
		t.Helper()
		inserted, err := s.InsertMany(ctx, []product.Product{
			{ID: "p1", Name: "Samsung Galaxy S10 Plus", Quantity: 10, Price: 704},
		})
		require.NoError(t, err)
		require.Len(t, inserted, 1)
		return inserted[0]
	}

	t.Run("insert assigns ids and version", func(t *testing.T) {
		s := newStore(t)
		inserted, err := s.InsertMany(ctx, []product.Product{
			{Name: "iPhone 11 Pro", Quantity: 25, Price: 999},
			{Name: "Huawei P30 Pro", Quantity: 15, Price: 679},
		})
		require.NoError(t, err)
		require.Len(t, inserted, 2)
		for _, p := range inserted {
			assert.NotEmpty(t, p.ID)
			assert.Equal(t, int64(1), p.Version)
		}
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("find missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindByID(ctx, "nope")
		assert.ErrorIs(t, err, product.ErrNotFound)
	})

	t.Run("update overwrites and bumps version", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		q := 7
		got, err := s.UpdateByID(ctx, "p1", product.Fields{Quantity: &q})
		require.NoError(t, err)
		assert.Equal(t, 7, got.Quantity)
		assert.Equal(t, "Samsung Galaxy S10 Plus", got.Name)
		assert.Equal(t, int64(2), got.Version)

		found, err := s.FindByID(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, got, found)
	})

	t.Run("update partial name and price", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		name := "Galaxy S10+"
		price := 650.5
		got, err := s.UpdateByID(ctx, "p1", product.Fields{Name: &name, Price: &price})
		require.NoError(t, err)
		assert.Equal(t, name, got.Name)
		assert.Equal(t, price, got.Price)
		assert.Equal(t, 10, got.Quantity)
	})

	t.Run("update rejects negative quantity", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		q := -1
		_, err := s.UpdateByID(ctx, "p1", product.Fields{Quantity: &q})
		assert.ErrorIs(t, err, product.ErrInvalidQuantity)
	})

	t.Run("update missing", func(t *testing.T) {
		s := newStore(t)
		q := 1
		_, err := s.UpdateByID(ctx, "nope", product.Fields{Quantity: &q})
		assert.ErrorIs(t, err, product.ErrNotFound)
	})

	t.Run("compare and set", func(t *testing.T) {
		s := newStore(t)
		p := seed(t, s)

		got, err := s.CompareAndSetQuantity(ctx, "p1", p.Version, 4)
		require.NoError(t, err)
		assert.Equal(t, 4, got.Quantity)
		assert.Equal(t, p.Version+1, got.Version)

		_, err = s.CompareAndSetQuantity(ctx, "p1", p.Version, 7)
		assert.ErrorIs(t, err, product.ErrStaleVersion)

		_, err = s.CompareAndSetQuantity(ctx, "nope", 1, 7)
		assert.ErrorIs(t, err, product.ErrNotFound)

		found, err := s.FindByID(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 4, found.Quantity)
	})

	t.Run("decrement guards stock", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)

		got, err := s.DecrementQuantity(ctx, "p1", 6)
		require.NoError(t, err)
		assert.Equal(t, 4, got.Quantity)

		_, err = s.DecrementQuantity(ctx, "p1", 6)
		assert.ErrorIs(t, err, product.ErrInsufficientStock)

		_, err = s.DecrementQuantity(ctx, "p1", 0)
		assert.ErrorIs(t, err, product.ErrInvalidQuantity)

		_, err = s.DecrementQuantity(ctx, "nope", 1)
		assert.ErrorIs(t, err, product.ErrNotFound)
	})

	t.Run("concurrent decrements never oversell", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.DecrementQuantity(ctx, "p1", 1); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 10, succeeded)
		found, err := s.FindByID(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 0, found.Quantity)
	})
}
