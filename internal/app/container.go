package app

import (
	"context"
	"fmt"

	"warehouseservice/internal/config"
	"warehouseservice/internal/eventbus"
	"warehouseservice/internal/platform/amqp"
	"warehouseservice/internal/platform/kafka"
	"warehouseservice/internal/platform/observability"
	"warehouseservice/internal/product"
	"warehouseservice/internal/store"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	config            *config.Config
	logger            *zap.Logger
	tracer            observability.Tracer
	store             product.Store
	closeStore        func() error
	bus               eventbus.Bus
	otelLogShutdown   func(context.Context) error
	otelTraceShutdown func(context.Context) error
}

// NewContainer creates and initializes all infrastructure components
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		config: cfg,
	}

	if err := container.setupLogger(); err != nil {
		return nil, err
	}

	tp, err := container.setupObservability(ctx)
	if err != nil {
		return nil, err
	}

	if err := container.setupStore(ctx); err != nil {
		container.Shutdown(ctx)
		return nil, err
	}

	if err := container.setupBus(tp); err != nil {
		container.Shutdown(ctx)
		return nil, err
	}

	return container, nil
}

// setupLogger creates the bootstrap logger used until the OTel bridge is ready
func (c *Container) setupLogger() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

// setupObservability configures OpenTelemetry logging and tracing
func (c *Container) setupObservability(ctx context.Context) (trace.TracerProvider, error) {
	otelLogShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
	}
	c.otelLogShutdown = otelLogShutdown

	tp, otelTraceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
	}
	c.otelTraceShutdown = otelTraceShutdown

	// Re-initialize logger with OTel bridge
	logger, err := observability.NewLogger(c.config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	c.logger = logger
	c.logger.Info("Logger re-initialized with OpenTelemetry bridge", zap.String("level", c.config.LogLevel))

	c.tracer = tp.Tracer(config.ServiceName)
	return tp, nil
}

func (c *Container) setupStore(ctx context.Context) error {
	switch c.config.StoreDriver {
	case config.StorePostgres, config.StoreSQLite:
		s, err := store.Open(ctx, c.config.StoreDriver, c.config.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", c.config.StoreDriver, err)
		}
		c.store = s
		c.closeStore = s.Close
	default:
		c.store = store.NewMemoryStore()
	}
	c.logger.Info("Product store ready", zap.String("driver", c.config.StoreDriver))
	return nil
}

func (c *Container) setupBus(tp trace.TracerProvider) error {
	switch c.config.BusDriver {
	case config.BusKafka:
		bus, err := c.setupKafkaWithTracer(tp)
		if err != nil {
			return err
		}
		c.bus = bus
	case config.BusAMQP:
		bus, err := amqp.Dial(amqp.Config{
			URL:           c.config.RabbitMQURL,
			Exchange:      c.config.AMQPExchange,
			QueuePrefix:   c.config.AMQPQueuePrefix,
			Prefetch:      c.config.AMQPPrefetch,
			MaxDeliveries: c.config.MaxDeliveries,
		}, c.logger)
		if err != nil {
			return err
		}
		c.bus = bus
	default:
		c.bus = eventbus.NewMemoryBus(c.logger, eventbus.WithMaxDeliveries(c.config.MaxDeliveries))
	}
	c.logger.Info("Event bus ready", zap.String("driver", c.config.BusDriver))
	return nil
}

// setupKafkaWithTracer builds a bus over instrumented Kafka readers and writer
func (c *Container) setupKafkaWithTracer(tp trace.TracerProvider) (*kafka.Bus, error) {
	// Topic is set per message; Hash keeps one product on one partition
	baseWriter := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.config.KafkaBroker),
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           config.BatchTimeout,
		BatchSize:              config.BatchSize,
		AllowAutoTopicCreation: true,
	}

	writer, err := otelkafka.NewWriter(baseWriter,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				attribute.String("messaging.kafka.client_id", config.ServiceName),
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka writer: %w", err)
	}

	newConsumer := func(sub kafka.Subscription) (kafka.Consumer, error) {
		readerConfig := kafkago.ReaderConfig{
			Brokers: []string{c.config.KafkaBroker},
			Topic:   sub.Topic,
			GroupID: sub.GroupID,
		}
		if sub.Broadcast {
			readerConfig.StartOffset = kafkago.LastOffset
		}
		return otelkafka.NewReader(kafkago.NewReader(readerConfig))
	}

	return kafka.NewBus(writer, newConsumer, config.GroupID, c.logger, c.config.MaxDeliveries), nil
}

// Shutdown gracefully shuts down all infrastructure components
func (c *Container) Shutdown(ctx context.Context) {
	c.logger.Info("Shutting down infrastructure...")

	if c.bus != nil {
		if err := c.bus.Close(); err != nil {
			c.logger.Error("Failed to close event bus", zap.Error(err))
		}
	}

	if c.closeStore != nil {
		if err := c.closeStore(); err != nil {
			c.logger.Error("Failed to close product store", zap.Error(err))
		}
	}

	if c.otelTraceShutdown != nil {
		if err := c.otelTraceShutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown OTel tracing", zap.Error(err))
		}
	}

	if c.otelLogShutdown != nil {
		if err := c.otelLogShutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown OTel logging", zap.Error(err))
		}
	}

	c.logger.Info("Infrastructure shutdown complete")
	// stdout sync fails on some terminals; nothing left to log it to
	_ = c.logger.Sync()
}

// Getters for accessing infrastructure components
func (c *Container) Config() *config.Config        { return c.config }
func (c *Container) Logger() *zap.Logger           { return c.logger }
func (c *Container) Tracer() observability.Tracer  { return c.tracer }
func (c *Container) Store() product.Store          { return c.store }
func (c *Container) Bus() eventbus.Bus             { return c.bus }
