package messagebus

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestKafkaHeaderCarrier_SetOverwrites(t *testing.T) {
	carrier := KafkaHeaderCarrier{{Key: "X-Correlation-ID", Value: []byte("c-1")}}

	carrier.Set("X-Correlation-ID", "c-2")
	carrier.Set("traceparent", "00-abc")

	assert.Equal(t, "c-2", carrier.Get("X-Correlation-ID"))
	assert.Equal(t, "00-abc", carrier.Get("traceparent"))
	assert.Equal(t, "", carrier.Get("missing"))
	assert.Equal(t, []string{"X-Correlation-ID", "traceparent"}, carrier.Keys())
}

func TestExtractTraceContext_FromKafkaHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	parent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	carrier := KafkaHeaderCarrier{{Key: "X-Reply-To", Value: []byte("replies.discount")}}
	otel.GetTextMapPropagator().Inject(parent, &carrier)
	headers := []kafka.Header(carrier)
	require.Len(t, headers, 2)

	sc := trace.SpanContextFromContext(extractTraceContext(context.Background(), headers))
	assert.True(t, sc.IsRemote())
	assert.Equal(t, traceID, sc.TraceID())
	assert.Equal(t, spanID, sc.SpanID())
}
