// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-commerce/framework/core"
	"github.com/akriventsev/potter-commerce/framework/logger"
	"github.com/akriventsev/potter-commerce/framework/metrics"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

// KafkaConfig конфигурация для Kafka адаптера
type KafkaConfig struct {
	Brokers        []string
	GroupID        string
	Compression    string // none, gzip, snappy, lz4, zstd
	BatchSize      int
	FlushInterval  time.Duration
	ConsumerConfig KafkaConsumerConfig
	ProducerConfig KafkaProducerConfig
}

// Validate проверяет корректность конфигурации
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty")
	}
	for i, broker := range c.Brokers {
		if broker == "" {
			return fmt.Errorf("broker[%d] cannot be empty", i)
		}
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("broker[%d] must be in format host:port", i)
		}
	}
	return nil
}

// KafkaConsumerConfig конфигурация для Kafka consumer
type KafkaConsumerConfig struct {
	MinBytes       int
	MaxBytes       int
	MaxWait        time.Duration
	StartOffset    int64 // -2 (earliest), -1 (latest)
	CommitInterval time.Duration
}

// KafkaProducerConfig конфигурация для Kafka producer
type KafkaProducerConfig struct {
	RequiredAcks int // 0, 1, -1 (all)
	MaxAttempts  int
}

// DefaultKafkaConfig возвращает конфигурацию Kafka по умолчанию
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:       []string{"localhost:9092"},
		GroupID:       "potter-commerce",
		Compression:   "snappy",
		BatchSize:     100,
		FlushInterval: 10 * time.Millisecond,
		ConsumerConfig: KafkaConsumerConfig{
			MinBytes:       1,
			MaxBytes:       10e6, // 10MB
			MaxWait:        250 * time.Millisecond,
			StartOffset:    kafka.LastOffset,
			CommitInterval: time.Second,
		},
		ProducerConfig: KafkaProducerConfig{
			RequiredAcks: -1,
			MaxAttempts:  3,
		},
	}
}

// KafkaHeaderCarrier реализует propagation.TextMapCarrier поверх заголовков Kafka.
// Set меняет срез, поэтому в propagator передается указатель.
type KafkaHeaderCarrier []kafka.Header

var _ propagation.TextMapCarrier = (*KafkaHeaderCarrier)(nil)

// Get возвращает значение заголовка
func (c KafkaHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set устанавливает значение заголовка, перезаписывая существующее
func (c *KafkaHeaderCarrier) Set(key, value string) {
	for i := range *c {
		if (*c)[i].Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

// Keys возвращает ключи всех заголовков
func (c KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = h.Key
	}
	return keys
}

// KafkaAdapter реализация MessageBus через Kafka.
// Ключ сообщения берется из заголовка X-Message-Key, поэтому ответы
// с одним correlation id попадают в одну партицию.
type KafkaAdapter struct {
	config  KafkaConfig
	writer  *kafka.Writer
	subs    map[string]*kafkaSubscription
	mu      sync.RWMutex
	running bool
	metrics *metrics.Metrics
	logger  *zap.Logger
}

type kafkaSubscription struct {
	reader *kafka.Reader
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKafkaAdapter создает новый Kafka адаптер
func NewKafkaAdapter(config KafkaConfig) (*KafkaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}

	return &KafkaAdapter{
		config: config,
		subs:   make(map[string]*kafkaSubscription),
		logger: zap.NewNop(),
		writer: &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequiredAcks(config.ProducerConfig.RequiredAcks),
			MaxAttempts:  config.ProducerConfig.MaxAttempts,
			BatchSize:    config.BatchSize,
			BatchTimeout: config.FlushInterval,
			Compression:  getCompression(config.Compression),
		},
	}, nil
}

// WithLogger устанавливает логгер
func (k *KafkaAdapter) WithLogger(l *zap.Logger) *KafkaAdapter {
	k.logger = logger.OrNop(l).Named("kafka-bus")
	return k
}

// WithMetrics устанавливает метрики
func (k *KafkaAdapter) WithMetrics(m *metrics.Metrics) *KafkaAdapter {
	k.metrics = m
	return k
}

// getCompression преобразует строку в kafka.Compression
func getCompression(compression string) kafka.Compression {
	switch compression {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

// Start запускает адаптер (реализация core.Lifecycle)
func (k *KafkaAdapter) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.running = true
	return nil
}

// Stop останавливает readers и закрывает writer (реализация core.Lifecycle)
func (k *KafkaAdapter) Stop(ctx context.Context) error {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return nil
	}
	subs := k.subs
	k.subs = make(map[string]*kafkaSubscription)
	k.running = false
	k.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}

	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (k *KafkaAdapter) IsRunning() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.running
}

// Name возвращает имя компонента (реализация core.Component)
func (k *KafkaAdapter) Name() string {
	return "kafka-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (k *KafkaAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Publish публикует сообщение в топик
func (k *KafkaAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()

	msg := kafka.Message{
		Topic:   subject,
		Value:   data,
		Headers: make([]kafka.Header, 0, len(headers)),
	}
	for key, value := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	if key := headers[transport.HeaderMessageKey]; key != "" {
		msg.Key = []byte(key)
	}

	carrier := KafkaHeaderCarrier(msg.Headers)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	msg.Headers = carrier

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.metrics.RecordTransport(ctx, "kafka", time.Since(start), false)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	k.metrics.RecordTransport(ctx, "kafka", time.Since(start), true)
	return nil
}

// Subscribe подписывается на топик. Offset коммитится после обработки,
// в том числе неуспешной: повторная доставка ответа не нужна.
func (k *KafkaAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.config.Brokers,
		Topic:          subject,
		GroupID:        k.config.GroupID,
		MinBytes:       k.config.ConsumerConfig.MinBytes,
		MaxBytes:       k.config.ConsumerConfig.MaxBytes,
		MaxWait:        k.config.ConsumerConfig.MaxWait,
		StartOffset:    k.config.ConsumerConfig.StartOffset,
		CommitInterval: k.config.ConsumerConfig.CommitInterval,
	})

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &kafkaSubscription{reader: reader, cancel: cancel, done: make(chan struct{})}

	k.mu.Lock()
	if _, exists := k.subs[subject]; exists {
		k.mu.Unlock()
		cancel()
		_ = reader.Close()
		return fmt.Errorf("already subscribed to %s", subject)
	}
	k.subs[subject] = sub
	k.mu.Unlock()

	go k.consume(readCtx, sub, handler)
	return nil
}

func (k *KafkaAdapter) consume(ctx context.Context, sub *kafkaSubscription, handler transport.MessageHandler) {
	defer close(sub.done)

	for {
		msg, err := sub.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			k.logger.Warn("kafka fetch failed", zap.String("topic", sub.reader.Config().Topic), zap.Error(err))
			continue
		}

		mbMsg := &transport.Message{
			Subject: msg.Topic,
			Data:    msg.Value,
			Headers: make(map[string]string, len(msg.Headers)),
		}
		for _, h := range msg.Headers {
			mbMsg.Headers[h.Key] = string(h.Value)
		}

		msgCtx := extractTraceContext(ctx, msg.Headers)
		if err := handler(msgCtx, mbMsg); err != nil {
			k.logger.Warn("handler failed",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}

		if err := sub.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			k.logger.Warn("kafka commit failed", zap.String("topic", msg.Topic), zap.Error(err))
		}
	}
}

func (s *kafkaSubscription) stop() {
	s.cancel()
	_ = s.reader.Close()
	<-s.done
}

// Unsubscribe отписывается от топика
func (k *KafkaAdapter) Unsubscribe(subject string) error {
	k.mu.Lock()
	sub, exists := k.subs[subject]
	delete(k.subs, subject)
	k.mu.Unlock()

	if !exists {
		return nil
	}
	sub.stop()
	return nil
}

// extractTraceContext восстанавливает trace context из заголовков kafka сообщения
func extractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := KafkaHeaderCarrier(headers)
	return otel.GetTextMapPropagator().Extract(ctx, &carrier)
}
