package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warehouseservice/internal/api"
	"warehouseservice/internal/catalog"
	"warehouseservice/internal/config"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Application holds all the components and manages the application lifecycle
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *Container
	catalog   *catalog.Service
	server    *http.Server
}

// NewApplication creates and fully initializes a new Application instance
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewApplicationWithConfig(ctx, cfg)
}

// NewApplicationWithConfig builds the application from an already loaded configuration
func NewApplicationWithConfig(ctx context.Context, cfg *config.Config) (*Application, error) {
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	app := &Application{
		ctx:    appCtx,
		cancel: cancel,
	}

	container, err := NewContainer(app.ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	app.container = container

	if err := app.wire(); err != nil {
		app.Shutdown()
		return nil, err
	}

	app.container.Logger().Info("Application initialized successfully",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("apply_policy", cfg.ApplyPolicy),
	)
	return app, nil
}

func (app *Application) wire() error {
	factory := NewServiceFactory(app.container)

	app.catalog = factory.CreateCatalogService()
	if _, err := factory.CreateLedgerConsumer(); err != nil {
		return err
	}
	coordinator, err := factory.CreateCoordinator(app.catalog)
	if err != nil {
		return err
	}

	app.server = &http.Server{
		Addr:              app.container.Config().HTTPAddr,
		Handler:           api.NewRouter(factory.CreateAPIHandler(coordinator, app.catalog)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// Handler exposes the HTTP routes.
func (app *Application) Handler() http.Handler {
	return app.server.Handler
}

// Run seeds the store if configured, then serves HTTP and consumes events
// until the context is canceled or either of them fails.
func (app *Application) Run() error {
	logger := app.container.Logger()

	if app.container.Config().SeedOnStart {
		n, err := app.catalog.Seed(app.ctx)
		if err != nil {
			return fmt.Errorf("failed to seed catalog: %w", err)
		}
		logger.Info("Catalog seed finished", zap.Int("inserted", n))
	}

	g, gctx := errgroup.WithContext(app.ctx)

	g.Go(func() error {
		return app.container.Bus().Run(gctx)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), app.container.Config().ShutdownTimeout)
		defer cancel()
		return app.server.Shutdown(ctx)
	})

	return g.Wait()
}

// Shutdown gracefully shuts down all application components
func (app *Application) Shutdown() {
	if app.container != nil {
		app.container.Logger().Info("Starting application shutdown...")
	}

	if app.cancel != nil {
		app.cancel()
	}

	if app.container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.container.Config().ShutdownTimeout)
		defer cancel()
		app.container.Shutdown(ctx)
	}
}
