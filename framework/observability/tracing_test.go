package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/akriventsev/potter-commerce/framework/core"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

func TestTracingManager_Disabled(t *testing.T) {
	tm, err := NewTracingManager(TracingConfig{ServiceName: "discount-service"})
	require.NoError(t, err)
	assert.False(t, tm.Enabled())
	assert.NotNil(t, tm.Tracer())

	require.NoError(t, tm.Start(context.Background()))
	assert.True(t, tm.IsRunning())
	require.NoError(t, tm.Stop(context.Background()))
	assert.False(t, tm.IsRunning())
}

func TestTracingManager_UnknownExporter(t *testing.T) {
	_, err := NewTracingManager(TracingConfig{Enabled: true, ServiceName: "svc", Exporter: "carrier-pigeon"})
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrInvalidConfig))
}

func TestTracingManager_StdoutExporter(t *testing.T) {
	tm, err := NewTracingManager(TracingConfig{
		Enabled:      true,
		ServiceName:  "svc",
		Exporter:     ExporterStdout,
		SamplingRate: 1,
	})
	require.NoError(t, err)
	assert.True(t, tm.Enabled())
	require.NoError(t, tm.Stop(context.Background()))
}

func TestTracedHandler_ContinuesRemoteTrace(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	parentCtx, parent := provider.Tracer("test").Start(context.Background(), "publish")
	headers := map[string]string{transport.HeaderCorrelationID: "c-1"}
	otel.GetTextMapPropagator().Inject(parentCtx, propagation.MapCarrier(headers))
	parent.End()

	var seen trace.SpanContext
	handler := TracedHandler("test", func(ctx context.Context, msg *transport.Message) error {
		seen = trace.SpanContextFromContext(ctx)
		return errors.New("handler failed")
	})

	err := handler(context.Background(), &transport.Message{Subject: "coupon.validate", Headers: headers})
	require.Error(t, err)
	assert.Equal(t, parent.SpanContext().TraceID(), seen.TraceID())

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "consume coupon.validate", spans[1].Name())
	assert.Equal(t, trace.SpanKindConsumer, spans[1].SpanKind())
}
