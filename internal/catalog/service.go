// Package catalog is the query and creation port over the product store.
package catalog

import (
	"context"

	"warehouseservice/internal/platform/observability"
	"warehouseservice/internal/product"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// StarterSet is inserted by Seed into an empty store.
func StarterSet() []product.Product {
	return []product.Product{
		{Name: "Samsung Galaxy S10 Plus", Quantity: 10, Price: 704},
		{Name: "iPhone 11 Pro", Quantity: 25, Price: 999},
		{Name: "Huawei P30 Pro", Quantity: 15, Price: 679},
	}
}

type Service struct {
	store  product.Store
	logger observability.Logger
	tracer observability.Tracer
}

func NewService(store product.Store, logger observability.Logger, tracer observability.Tracer) *Service {
	return &Service{
		store:  store,
		logger: logger,
		tracer: tracer,
	}
}

// Get returns a snapshot of the product record.
func (s *Service) Get(ctx context.Context, id string) (product.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return product.Product{}, err
	}
	span.SetAttributes(attribute.Int("product.quantity", p.Quantity), attribute.Int64("product.version", p.Version))
	return p, nil
}

// GetQuantity reads the current stock level.
func (s *Service) GetQuantity(ctx context.Context, id string) (int, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.Quantity, nil
}

// Create validates and inserts a single product.
func (s *Service) Create(ctx context.Context, p product.Product) (product.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.create")
	defer span.End()

	if err := product.Validate(p); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return product.Product{}, err
	}

	created, err := s.store.InsertMany(ctx, []product.Product{p})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("❌ Failed to create product", zap.String("name", p.Name), zap.Error(err))
		return product.Product{}, err
	}

	span.SetAttributes(attribute.String("product.id", created[0].ID))
	s.logger.Info("✅ Product created", zap.String("product_id", created[0].ID), zap.String("name", created[0].Name))
	return created[0], nil
}

// Seed inserts the starter set when the store is empty and returns how many
// products were added.
func (s *Service) Seed(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.seed")
	defer span.End()

	count, err := s.store.Count(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if count > 0 {
		s.logger.Debug("Store already populated, skipping seed", zap.Int("count", count))
		return 0, nil
	}

	created, err := s.store.InsertMany(ctx, StarterSet())
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	for _, p := range created {
		s.logger.Info("🌱 Seeded product", zap.String("product_id", p.ID), zap.String("name", p.Name), zap.Int("quantity", p.Quantity))
	}
	span.SetAttributes(attribute.Int("catalog.seeded", len(created)))
	return len(created), nil
}
