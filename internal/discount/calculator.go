package discount

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-commerce/framework/invoke"
	"github.com/akriventsev/potter-commerce/framework/logger"
	"github.com/akriventsev/potter-commerce/framework/metrics"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

// Calculator точка входа расчета скидки
type Calculator struct {
	gateway  *invoke.Gateway
	policy   Policy
	topics   invoke.TopicResolver
	validate *validator.Validate
	audit    AuditRecorder
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewCalculator создает новый Calculator
func NewCalculator(gateway *invoke.Gateway, policy Policy) *Calculator {
	return &Calculator{
		gateway:  gateway,
		policy:   policy.withDefaults(),
		topics:   DefaultTopics(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   zap.NewNop(),
	}
}

// WithTopics устанавливает резолвер топиков upstream сервисов
func (c *Calculator) WithTopics(topics invoke.TopicResolver) *Calculator {
	if topics != nil {
		c.topics = topics
	}
	return c
}

// WithAuditRecorder включает журнал расчетов
func (c *Calculator) WithAuditRecorder(audit AuditRecorder) *Calculator {
	c.audit = audit
	return c
}

// WithLogger устанавливает логгер
func (c *Calculator) WithLogger(l *zap.Logger) *Calculator {
	c.logger = logger.OrNop(l).Named("discount")
	return c
}

// WithMetrics устанавливает метрики
func (c *Calculator) WithMetrics(m *metrics.Metrics) *Calculator {
	c.metrics = m
	return c
}

// Policy возвращает текущую политику
func (c *Calculator) Policy() Policy {
	return c.policy
}

// ComputeDiscount проводит сагу расчета скидки.
// Ошибка всегда *DiscountError, кроме INVALID_REQUEST для некорректного запроса.
func (c *Calculator) ComputeDiscount(ctx context.Context, req DiscountRequest) (*DiscountResult, error) {
	if err := c.validate.StructCtx(ctx, req); err != nil {
		return nil, NewInvalidRequestError(err)
	}

	saga, err := newSaga(req, c.gateway, c.policy, c.topics, c.logger, c.metrics)
	if err != nil {
		return nil, &DiscountError{Stage: StateInit, Kind: KindInternal, Cause: err}
	}

	result, err := saga.Run(ctx)
	c.record(ctx, saga.ID(), req, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// record ошибки журнала не влияют на результат расчета
func (c *Calculator) record(ctx context.Context, sagaID string, req DiscountRequest, result *DiscountResult, sagaErr error) {
	if c.audit == nil {
		return
	}
	// Журнал пишется и для отмененных запросов
	ctx = context.WithoutCancel(ctx)
	audit := newAudit(sagaID, req, result, sagaErr)
	if err := c.audit.Record(ctx, audit); err != nil {
		c.logger.Warn("failed to record discount",
			zap.String("saga_id", sagaID),
			zap.String("state", audit.State),
			zap.Error(err))
	}
}

// Serve отвечает на запросы discount.compute через шину.
// topic пустой означает топик по имени операции.
func (c *Calculator) Serve(ctx context.Context, bus transport.MessageBus, serializer transport.MessageSerializer, topic string) error {
	if topic == "" {
		topic = OperationComputeDiscount
	}
	return invoke.Serve(ctx, bus, serializer, topic, func(ctx context.Context, req DiscountRequest) (DiscountResult, error) {
		result, err := c.ComputeDiscount(ctx, req)
		if err != nil {
			return DiscountResult{}, err
		}
		return *result, nil
	})
}
