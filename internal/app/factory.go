package app

import (
	"fmt"

	"warehouseservice/internal/api"
	"warehouseservice/internal/catalog"
	"warehouseservice/internal/ledger"
	"warehouseservice/internal/purchase"
)

// ServiceFactory creates business logic services with their dependencies
type ServiceFactory struct {
	container *Container
}

func NewServiceFactory(container *Container) *ServiceFactory {
	return &ServiceFactory{
		container: container,
	}
}

func (f *ServiceFactory) CreateCatalogService() *catalog.Service {
	return catalog.NewService(f.container.Store(), f.container.Logger(), f.container.Tracer())
}

// CreateLedgerConsumer wires the ledger's apply service and message handler
// and registers them on the bus.
func (f *ServiceFactory) CreateLedgerConsumer() (ledger.ConsumerService, error) {
	policy, err := ledger.ParsePolicy(f.container.Config().ApplyPolicy)
	if err != nil {
		return nil, err
	}
	service := ledger.NewService(f.container.Store(), policy, f.container.Logger(), f.container.Tracer())
	handler := ledger.NewMessageHandler(service, f.container.Bus(), f.container.Logger())
	consumer := ledger.NewConsumerService(handler, f.container.Logger())
	if err := consumer.Register(f.container.Bus()); err != nil {
		return nil, fmt.Errorf("failed to register ledger consumer: %w", err)
	}
	return consumer, nil
}

func (f *ServiceFactory) CreateCoordinator(cat purchase.Catalog) (*purchase.Coordinator, error) {
	coordinator := purchase.NewCoordinator(cat, f.container.Bus(), f.container.Logger(), f.container.Tracer(),
		purchase.WithConfirmTimeout(f.container.Config().ConfirmTimeout),
	)
	if err := coordinator.Listen(f.container.Bus()); err != nil {
		return nil, fmt.Errorf("failed to subscribe coordinator: %w", err)
	}
	return coordinator, nil
}

func (f *ServiceFactory) CreateAPIHandler(purchaser api.Purchaser, cat api.Catalog) *api.Handler {
	return api.NewHandler(purchaser, cat, f.container.Logger())
}
