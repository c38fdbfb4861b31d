package catalog

import (
	"context"
	"testing"

	"warehouseservice/internal/product"
	"warehouseservice/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
)

func newService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewService(st, zaptest.NewLogger(t), noop.NewTracerProvider().Tracer("test")), st
}

func TestGetQuantity(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, product.Product{ID: "P1", Name: "Samsung Galaxy S10 Plus", Price: 704, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, "P1", p.ID)

	q, err := svc.GetQuantity(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 10, q)
}

func TestGetQuantityUnknownProduct(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.GetQuantity(context.Background(), "missing")
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		product product.Product
		wantErr error
	}{
		{"short name", product.Product{Name: "ab", Price: 1, Quantity: 1}, product.ErrInvalidProduct},
		{"free product", product.Product{Name: "Pixel 4", Price: 0, Quantity: 1}, product.ErrInvalidProduct},
		{"zero quantity", product.Product{Name: "Pixel 4", Price: 599, Quantity: 0}, product.ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newService(t)
			_, err := svc.Create(context.Background(), tt.product)
			assert.ErrorIs(t, err, tt.wantErr)

			count, err := st.Count(context.Background())
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestCreateAssignsID(t *testing.T) {
	svc, _ := newService(t)

	p, err := svc.Create(context.Background(), product.Product{Name: "Pixel 4", Price: 599, Quantity: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, int64(1), p.Version)
}

func TestSeedOnlyWhenEmpty(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	n, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = svc.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStarterSetIsValid(t *testing.T) {
	for _, p := range StarterSet() {
		assert.NoError(t, product.Validate(p), p.Name)
	}
}
