// Package metrics предоставляет систему метрик на основе OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics сборщик метрик request/reply движка и саг
type Metrics struct {
	meter             metric.Meter
	callsTotal        metric.Int64Counter
	callDuration      metric.Float64Histogram
	pendingReplies    metric.Int64UpDownCounter
	unmatchedReplies  metric.Int64Counter
	transportTotal    metric.Int64Counter
	transportDuration metric.Float64Histogram
	sagasTotal        metric.Int64Counter
	sagaDuration      metric.Float64Histogram
	fanoutItems       metric.Int64Counter
}

// NewMetrics создает новый сборщик метрик
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("potter-commerce")
	m := &Metrics{meter: meter}

	var err error
	if m.callsTotal, err = meter.Int64Counter(
		"reply_calls_total",
		metric.WithDescription("Total number of request/reply calls by outcome"),
	); err != nil {
		return nil, err
	}
	if m.callDuration, err = meter.Float64Histogram(
		"reply_call_duration_seconds",
		metric.WithDescription("Time from publish to settlement of a call"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.pendingReplies, err = meter.Int64UpDownCounter(
		"reply_pending",
		metric.WithDescription("Number of in-flight correlation ids"),
	); err != nil {
		return nil, err
	}
	if m.unmatchedReplies, err = meter.Int64Counter(
		"reply_unmatched_total",
		metric.WithDescription("Replies dropped because no pending call matched"),
	); err != nil {
		return nil, err
	}
	if m.transportTotal, err = meter.Int64Counter(
		"transport_publish_total",
		metric.WithDescription("Messages published by transport adapters"),
	); err != nil {
		return nil, err
	}
	if m.transportDuration, err = meter.Float64Histogram(
		"transport_publish_duration_seconds",
		metric.WithDescription("Publish latency by transport adapter"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.sagasTotal, err = meter.Int64Counter(
		"discount_sagas_total",
		metric.WithDescription("Discount computations by terminal state and stage"),
	); err != nil {
		return nil, err
	}
	if m.sagaDuration, err = meter.Float64Histogram(
		"discount_saga_duration_seconds",
		metric.WithDescription("Discount computation duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.fanoutItems, err = meter.Int64Counter(
		"enrichment_items_total",
		metric.WithDescription("Enriched items by availability"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCall записывает метрику завершенного вызова
func (m *Metrics) RecordCall(ctx context.Context, topic, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("outcome", outcome),
	)
	m.callsTotal.Add(ctx, 1, attrs)
	m.callDuration.Record(ctx, duration.Seconds(), attrs)
}

// IncPending увеличивает число ожидающих ответов
func (m *Metrics) IncPending(ctx context.Context) {
	if m == nil {
		return
	}
	m.pendingReplies.Add(ctx, 1)
}

// DecPending уменьшает число ожидающих ответов
func (m *Metrics) DecPending(ctx context.Context) {
	if m == nil {
		return
	}
	m.pendingReplies.Add(ctx, -1)
}

// RecordUnmatched записывает сброшенный ответ
func (m *Metrics) RecordUnmatched(ctx context.Context, subject string) {
	if m == nil {
		return
	}
	m.unmatchedReplies.Add(ctx, 1, metric.WithAttributes(attribute.String("subject", subject)))
}

// RecordTransport записывает метрику транспорта
func (m *Metrics) RecordTransport(ctx context.Context, transportName string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("transport", transportName),
		attribute.Bool("success", success),
	)
	m.transportTotal.Add(ctx, 1, attrs)
	m.transportDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSaga записывает метрику завершенной саги
func (m *Metrics) RecordSaga(ctx context.Context, state, stage string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("state", state),
		attribute.String("stage", stage),
	)
	m.sagasTotal.Add(ctx, 1, attrs)
	m.sagaDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordEnrichment записывает количество обогащенных элементов
func (m *Metrics) RecordEnrichment(ctx context.Context, available, unavailable int) {
	if m == nil {
		return
	}
	m.fanoutItems.Add(ctx, int64(available), metric.WithAttributes(attribute.Bool("available", true)))
	m.fanoutItems.Add(ctx, int64(unavailable), metric.WithAttributes(attribute.Bool("available", false)))
}
