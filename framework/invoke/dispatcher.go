package invoke

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-commerce/framework/core"
	"github.com/akriventsev/potter-commerce/framework/logger"
	"github.com/akriventsev/potter-commerce/framework/metrics"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

// ReplyDispatcher читает топики ответов и завершает соответствующие ожидания.
// Ответы без ожидающего вызова логируются и отбрасываются.
type ReplyDispatcher struct {
	subscriber transport.Subscriber
	registry   *Registry
	pool       *WorkerPool
	serializer transport.MessageSerializer
	metrics    *metrics.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer

	mu      sync.Mutex
	topics  []string
	running bool
}

// NewReplyDispatcher создает новый диспетчер ответов
func NewReplyDispatcher(subscriber transport.Subscriber, registry *Registry, pool *WorkerPool) *ReplyDispatcher {
	return &ReplyDispatcher{
		subscriber: subscriber,
		registry:   registry,
		pool:       pool,
		serializer: DefaultSerializer(),
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("potter-commerce/invoke"),
	}
}

// WithSerializer устанавливает сериализатор конвертов
func (d *ReplyDispatcher) WithSerializer(serializer transport.MessageSerializer) *ReplyDispatcher {
	d.serializer = serializer
	return d
}

// WithLogger устанавливает логгер
func (d *ReplyDispatcher) WithLogger(l *zap.Logger) *ReplyDispatcher {
	d.logger = logger.OrNop(l).Named("reply-dispatcher")
	return d
}

// WithMetrics устанавливает метрики
func (d *ReplyDispatcher) WithMetrics(m *metrics.Metrics) *ReplyDispatcher {
	d.metrics = m
	return d
}

// Start подписывается на топики ответов
func (d *ReplyDispatcher) Start(ctx context.Context, topics ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	for _, topic := range topics {
		if err := d.subscriber.Subscribe(ctx, topic, d.handle); err != nil {
			for _, subscribed := range d.topics {
				_ = d.subscriber.Unsubscribe(subscribed)
			}
			d.topics = nil
			return fmt.Errorf("failed to subscribe to reply topic %s: %w", topic, err)
		}
		d.topics = append(d.topics, topic)
	}

	d.running = true
	d.logger.Info("reply dispatcher started", zap.Strings("topics", topics))
	return nil
}

// Stop отписывается от топиков ответов
func (d *ReplyDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	var firstErr error
	for _, topic := range d.topics {
		if err := d.subscriber.Unsubscribe(topic); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.topics = nil
	d.running = false
	return firstErr
}

// IsRunning проверяет, запущен ли диспетчер
func (d *ReplyDispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Name возвращает имя компонента
func (d *ReplyDispatcher) Name() string {
	return "reply-dispatcher"
}

// Type возвращает тип компонента
func (d *ReplyDispatcher) Type() core.ComponentType {
	return core.ComponentTypeHandler
}

// handle передает сообщение в пул воркеров и никогда не возвращает ошибку транспорту.
// При заполненной очереди ответ разбирается в потоке транспорта: воркер,
// публикующий запрос через синхронную шину, не ждет сам себя.
func (d *ReplyDispatcher) handle(ctx context.Context, msg *transport.Message) error {
	err := d.pool.Submit(func() { d.Dispatch(ctx, msg) })
	switch {
	case err == nil:
	case core.HasCode(err, ErrPoolSaturated):
		d.logger.Debug("worker pool saturated, dispatching reply inline",
			zap.String("subject", msg.Subject))
		d.Dispatch(ctx, msg)
	default:
		d.logger.Warn("reply dropped, worker pool unavailable",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
	return nil
}

// Dispatch обрабатывает один ответ. Возвращает true, если ответ завершил ожидание.
func (d *ReplyDispatcher) Dispatch(ctx context.Context, msg *transport.Message) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("reply dispatch panicked",
				zap.String("subject", msg.Subject),
				zap.Any("panic", r))
			matched = false
		}
	}()

	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Headers))
	_, span := d.tracer.Start(ctx, "dispatch "+msg.Subject, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var env ReplyEnvelope
	decodeErr := d.serializer.Deserialize(msg.Data, &env)

	id := env.CorrelationID
	if id == "" {
		id = msg.Header(transport.HeaderCorrelationID)
	}
	if id == "" {
		d.unmatched(ctx, msg, id, "reply without correlation id")
		return false
	}

	pending, ok := d.registry.Lookup(id)
	if !ok {
		d.unmatched(ctx, msg, id, "unknown, expired or already settled correlation id")
		return false
	}

	if decodeErr != nil {
		return d.reject(id, NewDeserializationError(id, "ReplyEnvelope", decodeErr))
	}

	if !env.Success {
		return d.reject(id, NewUpstreamFailureError(id, env.ErrorMessage))
	}

	value, err := pending.Decode(env.Payload)
	if err != nil {
		return d.reject(id, NewDeserializationError(id, pending.ExpectedType, err))
	}

	if !d.registry.Resolve(id, value) {
		d.unmatched(ctx, msg, id, "settled concurrently")
		return false
	}
	return true
}

func (d *ReplyDispatcher) reject(id string, err error) bool {
	if !d.registry.Reject(id, err) {
		return false
	}
	d.logger.Warn("reply rejected", zap.String("correlation_id", id), zap.Error(err))
	return true
}

func (d *ReplyDispatcher) unmatched(ctx context.Context, msg *transport.Message, id, reason string) {
	d.metrics.RecordUnmatched(ctx, msg.Subject)
	d.logger.Warn("unmatched reply dropped",
		zap.String("subject", msg.Subject),
		zap.String("correlation_id", id),
		zap.String("reason", reason),
		zap.Error(NewUnmatchedReplyError(id)))
}
