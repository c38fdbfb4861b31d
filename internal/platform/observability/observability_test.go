package observability

import (
	"context"
	"testing"

	"warehouseservice/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug")
	require.NoError(t, err)
	logger.Debug("debug enabled")

	_, err = NewLogger("verbose")
	assert.Error(t, err)
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	cfg := &config.Config{}
	ctx := context.Background()

	logShutdown, err := SetupLoggingSDK(ctx, cfg)
	require.NoError(t, err)
	assert.NoError(t, logShutdown(ctx))

	tp, traceShutdown, err := SetupTracingSDK(ctx, cfg)
	require.NoError(t, err)
	assert.NotNil(t, tp)
	assert.NoError(t, traceShutdown(ctx))
}

func TestHeadersRoundTripTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := map[string]string{}
	InjectHeaders(ctx, headers)
	require.Contains(t, headers, "traceparent")

	extracted := ExtractHeaders(context.Background(), headers)
	sc := span.SpanContext()
	got := trace.SpanContextFromContext(extracted)
	assert.Equal(t, sc.TraceID(), got.TraceID())
}
