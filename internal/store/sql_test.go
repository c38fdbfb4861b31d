package store

import (
	"context"
	"testing"

	"warehouseservice/internal/product"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) product.Store { return setupSQLite(t) })
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mongodb", "mongodb://localhost")
	assert.Error(t, err)
}

func TestSQLStoreMigrateIsRepeatable(t *testing.T) {
	s := setupSQLite(t)
	require.NoError(t, s.migrate(context.Background()))
}

func TestSQLStoreInsertEmpty(t *testing.T) {
	s := setupSQLite(t)
	out, err := s.InsertMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSQLStoreDuplicateInsertIsRejected(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()
	_, err := s.InsertMany(ctx, []product.Product{{ID: "p1", Name: "first", Quantity: 1, Price: 1}})
	require.NoError(t, err)

	_, err = s.InsertMany(ctx, []product.Product{{ID: "p1", Name: "again", Quantity: 1, Price: 1}})
	assert.ErrorIs(t, err, product.ErrInvalidProduct)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLStoreRejectsBatchWithDuplicateIDs(t *testing.T) {
	s := setupSQLite(t)
	_, err := s.InsertMany(context.Background(), []product.Product{
		{ID: "dup", Name: "first", Quantity: 1, Price: 1},
		{ID: "dup", Name: "second", Quantity: 1, Price: 1},
	})
	assert.ErrorIs(t, err, product.ErrInvalidProduct)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
