package invoke

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-commerce/framework/logger"
	"github.com/akriventsev/potter-commerce/framework/metrics"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

// Gateway превращает публикацию в request/reply:
// регистрирует ожидание, публикует конверт запроса и возвращает Future.
type Gateway struct {
	publisher  transport.Publisher
	registry   *Registry
	pool       *WorkerPool
	serializer transport.MessageSerializer
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
	replyTo    string
	timeout    time.Duration
}

// NewGateway создает новый Gateway. replyTo топик, на который подписан ReplyDispatcher.
func NewGateway(publisher transport.Publisher, registry *Registry, pool *WorkerPool, replyTo string) *Gateway {
	return &Gateway{
		publisher:  publisher,
		registry:   registry,
		pool:       pool,
		serializer: DefaultSerializer(),
		breaker:    NewPublishBreaker(),
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("potter-commerce/invoke"),
		replyTo:    replyTo,
		timeout:    DefaultCallTimeout,
	}
}

// WithDefaultTimeout задает таймаут вызовов без WithTimeout
func (g *Gateway) WithDefaultTimeout(timeout time.Duration) *Gateway {
	if timeout > 0 {
		g.timeout = timeout
	}
	return g
}

// WithSerializer устанавливает сериализатор конвертов
func (g *Gateway) WithSerializer(serializer transport.MessageSerializer) *Gateway {
	g.serializer = serializer
	return g
}

// WithBreaker устанавливает circuit breaker публикации
func (g *Gateway) WithBreaker(breaker *gobreaker.CircuitBreaker) *Gateway {
	g.breaker = breaker
	return g
}

// WithLogger устанавливает логгер
func (g *Gateway) WithLogger(l *zap.Logger) *Gateway {
	g.logger = logger.OrNop(l).Named("gateway")
	return g
}

// WithMetrics устанавливает метрики и подписывает их на завершение вызовов
func (g *Gateway) WithMetrics(m *metrics.Metrics) *Gateway {
	g.metrics = m
	if m != nil {
		g.registry.OnSettle(func(p *PendingReply, outcome Outcome) {
			ctx := context.Background()
			m.DecPending(ctx)
			m.RecordCall(ctx, p.Topic, string(outcome), time.Since(p.RegisteredAt))
		})
	}
	return g
}

// Registry возвращает реестр ожиданий
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// ReplyTo возвращает топик ответов по умолчанию
func (g *Gateway) ReplyTo() string {
	return g.replyTo
}

// Call публикует запрос в topic и возвращает Future с ответом типа T.
// Не блокируется: публикация выполняется в пуле воркеров.
func Call[T any](ctx context.Context, g *Gateway, topic string, payload any, options ...InvokeOption) *Future[T] {
	opts := ApplyOptions(append([]InvokeOption{WithTimeout(g.timeout)}, options...)...)

	id := opts.CorrelationID
	if id == "" {
		id = GenerateCorrelationID()
	}
	replyTo := opts.ReplyTo
	if replyTo == "" {
		replyTo = g.replyTo
	}

	body, err := g.serializer.Serialize(payload)
	if err != nil {
		return failedFuture[T](id, NewSerializationError(topic, err))
	}
	data, err := g.serializer.Serialize(RequestEnvelope{
		CorrelationID: id,
		ReplyTo:       replyTo,
		Payload:       body,
		IssuedAt:      time.Now().UTC(),
	})
	if err != nil {
		return failedFuture[T](id, NewSerializationError(topic, err))
	}

	var zero T
	pending, err := g.registry.Register(
		id,
		time.Now().Add(opts.Timeout),
		ForTopic(topic),
		ExpectType(fmt.Sprintf("%T", zero), decoderFor[T](g.serializer)),
	)
	if err != nil {
		return failedFuture[T](id, err)
	}
	g.metrics.IncPending(ctx)

	headers := transport.CopyHeaders(opts.Headers)
	headers[transport.HeaderCorrelationID] = id
	headers[transport.HeaderReplyTo] = replyTo
	headers[transport.HeaderContentType] = g.serializer.ContentType()
	headers[transport.HeaderMessageKey] = id
	if opts.Key != "" {
		headers[transport.HeaderMessageKey] = opts.Key
	}

	publishCtx := context.WithoutCancel(ctx)
	task := func() {
		if err := g.publish(publishCtx, topic, data, headers); err != nil {
			// Откатываем регистрацию, чтобы не оставлять осиротевший слот
			if g.registry.Reject(id, NewPublishFailedError(topic, err)) {
				g.logger.Warn("request publish failed",
					zap.String("correlation_id", id),
					zap.String("topic", topic),
					zap.Error(err))
			}
		}
	}
	if err := g.pool.Submit(task); err != nil {
		g.registry.Reject(id, NewPublishFailedError(topic, err))
	}

	return newFuture[T](pending, g.registry.Expire)
}

// publish публикует сообщение через circuit breaker с трассировкой
func (g *Gateway) publish(ctx context.Context, topic string, data []byte, headers map[string]string) error {
	ctx, span := g.tracer.Start(ctx, "publish "+topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination", topic),
			attribute.String("messaging.message.correlation_id", headers[transport.HeaderCorrelationID]),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))

	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.publisher.Publish(ctx, topic, data, headers)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	g.logger.Debug("request published",
		zap.String("correlation_id", headers[transport.HeaderCorrelationID]),
		zap.String("topic", topic))
	return nil
}

// decoderFor возвращает декодер payload в тип T
func decoderFor[T any](serializer transport.MessageSerializer) Decoder {
	return func(payload []byte) (any, error) {
		var value T
		if RawPayload(payload).IsEmpty() {
			return value, nil
		}
		if err := serializer.Deserialize(payload, &value); err != nil {
			return nil, err
		}
		return value, nil
	}
}
