// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-commerce/framework/core"
	"github.com/akriventsev/potter-commerce/framework/logger"
	"github.com/akriventsev/potter-commerce/framework/metrics"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

// RedisConfig конфигурация для Redis адаптера
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	PoolSize      int
	MaxRetries    int
	StreamMaxLen  int64 // 0 = без ограничений
	StreamPrefix  string
	ConsumerGroup string
	BlockTimeout  time.Duration
}

// Validate проверяет корректность конфигурации
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.ConsumerGroup == "" {
		return fmt.Errorf("consumer group cannot be empty")
	}
	return nil
}

// DefaultRedisConfig возвращает конфигурацию Redis по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		PoolSize:      10,
		MaxRetries:    3,
		StreamMaxLen:  10000,
		StreamPrefix:  "stream:",
		ConsumerGroup: "potter-commerce",
		BlockTimeout:  time.Second,
	}
}

// RedisAdapter реализация MessageBus через Redis Streams
type RedisAdapter struct {
	config  RedisConfig
	client  *redis.Client
	subs    map[string]*redisSubscription
	mu      sync.RWMutex
	running bool
	metrics *metrics.Metrics
	logger  *zap.Logger
}

type redisSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisAdapter создает новый Redis адаптер. Подключение проверяется в Start.
func NewRedisAdapter(config RedisConfig) (*RedisAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		PoolSize:   config.PoolSize,
		MaxRetries: config.MaxRetries,
	})

	return &RedisAdapter{
		config: config,
		client: client,
		subs:   make(map[string]*redisSubscription),
		logger: zap.NewNop(),
	}, nil
}

// WithLogger устанавливает логгер
func (r *RedisAdapter) WithLogger(l *zap.Logger) *RedisAdapter {
	r.logger = logger.OrNop(l).Named("redis-bus")
	return r
}

// WithMetrics устанавливает метрики
func (r *RedisAdapter) WithMetrics(m *metrics.Metrics) *RedisAdapter {
	r.metrics = m
	return r
}

// Start проверяет подключение к Redis (реализация core.Lifecycle)
func (r *RedisAdapter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.running = true
	return nil
}

// Stop останавливает consumers и закрывает клиента (реализация core.Lifecycle)
func (r *RedisAdapter) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	subs := r.subs
	r.subs = make(map[string]*redisSubscription)
	r.running = false
	r.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}

	return r.client.Close()
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (r *RedisAdapter) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Name возвращает имя компонента (реализация core.Component)
func (r *RedisAdapter) Name() string {
	return "redis-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *RedisAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Publish публикует сообщение в stream (XADD)
func (r *RedisAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()

	values := map[string]interface{}{"data": data}
	if len(headers) > 0 {
		encoded, err := json.Marshal(headers)
		if err != nil {
			return fmt.Errorf("failed to encode headers: %w", err)
		}
		values["headers"] = encoded
	}

	args := redis.XAddArgs{
		Stream: r.streamName(subject),
		Values: values,
	}
	if r.config.StreamMaxLen > 0 {
		args.MaxLen = r.config.StreamMaxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, &args).Err(); err != nil {
		r.metrics.RecordTransport(ctx, "redis", time.Since(start), false)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	r.metrics.RecordTransport(ctx, "redis", time.Since(start), true)
	return nil
}

// Subscribe подписывается на stream через consumer group (XREADGROUP)
func (r *RedisAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	stream := r.streamName(subject)

	err := r.client.XGroupCreateMkStream(ctx, stream, r.config.ConsumerGroup, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &redisSubscription{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	if _, exists := r.subs[stream]; exists {
		r.mu.Unlock()
		cancel()
		return fmt.Errorf("already subscribed to %s", subject)
	}
	r.subs[stream] = sub
	r.mu.Unlock()

	consumer := "consumer-" + uuid.NewString()
	go r.consume(readCtx, sub, subject, stream, consumer, handler)
	return nil
}

func (r *RedisAdapter) consume(ctx context.Context, sub *redisSubscription, subject, stream, consumer string, handler transport.MessageHandler) {
	defer close(sub.done)

	for ctx.Err() == nil {
		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.config.ConsumerGroup,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    r.config.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			r.logger.Warn("xreadgroup failed", zap.String("stream", stream), zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, entry := range s.Messages {
				msg := decodeStreamEntry(subject, entry)
				if err := handler(ctx, msg); err != nil {
					r.logger.Warn("handler failed",
						zap.String("stream", stream),
						zap.String("entry_id", entry.ID),
						zap.Error(err))
				}
				if err := r.client.XAck(ctx, stream, r.config.ConsumerGroup, entry.ID).Err(); err != nil && ctx.Err() == nil {
					r.logger.Warn("xack failed", zap.String("stream", stream), zap.Error(err))
				}
			}
		}
	}
}

func decodeStreamEntry(subject string, entry redis.XMessage) *transport.Message {
	msg := &transport.Message{
		Subject: subject,
		Headers: make(map[string]string),
	}
	if data, ok := entry.Values["data"].(string); ok {
		msg.Data = []byte(data)
	}
	if headers, ok := entry.Values["headers"].(string); ok {
		_ = json.Unmarshal([]byte(headers), &msg.Headers)
	}
	return msg
}

// Unsubscribe отписывается от stream
func (r *RedisAdapter) Unsubscribe(subject string) error {
	stream := r.streamName(subject)

	r.mu.Lock()
	sub, exists := r.subs[stream]
	delete(r.subs, stream)
	r.mu.Unlock()

	if exists {
		sub.cancel()
		<-sub.done
	}
	return nil
}

func (r *RedisAdapter) streamName(subject string) string {
	return r.config.StreamPrefix + subject
}
