// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/potter-commerce/framework/core"
	"github.com/akriventsev/potter-commerce/framework/logger"
	"github.com/akriventsev/potter-commerce/framework/metrics"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

// InMemoryConfig конфигурация для InMemory адаптера
type InMemoryConfig struct {
	EnableOrdering bool // синхронная доставка в порядке публикации
}

// DefaultInMemoryConfig возвращает конфигурацию InMemory по умолчанию
func DefaultInMemoryConfig() InMemoryConfig {
	return InMemoryConfig{
		EnableOrdering: false,
	}
}

// InMemoryAdapter реализация MessageBus в памяти
type InMemoryAdapter struct {
	config      InMemoryConfig
	subscribers map[string][]transport.MessageHandler
	mu          sync.RWMutex
	inflight    sync.WaitGroup
	running     bool
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewInMemoryAdapter создает новый InMemory адаптер
func NewInMemoryAdapter(config InMemoryConfig) *InMemoryAdapter {
	return &InMemoryAdapter{
		config:      config,
		subscribers: make(map[string][]transport.MessageHandler),
		logger:      zap.NewNop(),
	}
}

// WithLogger устанавливает логгер
func (i *InMemoryAdapter) WithLogger(l *zap.Logger) *InMemoryAdapter {
	i.logger = logger.OrNop(l).Named("inmemory-bus")
	return i
}

// WithMetrics устанавливает метрики
func (i *InMemoryAdapter) WithMetrics(m *metrics.Metrics) *InMemoryAdapter {
	i.metrics = m
	return i
}

// Start запускает адаптер (реализация core.Lifecycle)
func (i *InMemoryAdapter) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.running = true
	return nil
}

// Stop останавливает адаптер и дожидается доставки начатых сообщений
func (i *InMemoryAdapter) Stop(ctx context.Context) error {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return nil
	}
	i.running = false
	i.mu.Unlock()

	done := make(chan struct{})
	go func() {
		i.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (i *InMemoryAdapter) IsRunning() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.running
}

// Name возвращает имя компонента (реализация core.Component)
func (i *InMemoryAdapter) Name() string {
	return "inmemory-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (i *InMemoryAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Publish публикует сообщение в subject.
// Остановленный адаптер возвращает NOT_RUNNING.
func (i *InMemoryAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()

	i.mu.RLock()
	if !i.running {
		i.mu.RUnlock()
		i.metrics.RecordTransport(ctx, "inmemory", time.Since(start), false)
		return core.NewError(core.ErrNotRunning, "inmemory adapter is not running")
	}
	handlers := append([]transport.MessageHandler(nil), i.subscribers[subject]...)
	// Проверяем wildcard подписки
	for subj, h := range i.subscribers {
		if subj != subject && matchSubject(subject, subj) {
			handlers = append(handlers, h...)
		}
	}
	// Stop ждет inflight только после снятия running, поэтому Add выполняется под блокировкой
	if !i.config.EnableOrdering {
		i.inflight.Add(len(handlers))
	}
	i.mu.RUnlock()

	i.metrics.RecordTransport(ctx, "inmemory", time.Since(start), true)

	// Каждому подписчику своя копия сообщения
	for _, handler := range handlers {
		msg := &transport.Message{
			Subject: subject,
			Data:    append([]byte(nil), data...),
			Headers: transport.CopyHeaders(headers),
		}
		if i.config.EnableOrdering {
			i.deliver(ctx, handler, msg)
			continue
		}
		go func(h transport.MessageHandler) {
			defer i.inflight.Done()
			i.deliver(ctx, h, msg)
		}(handler)
	}

	return nil
}

func (i *InMemoryAdapter) deliver(ctx context.Context, handler transport.MessageHandler, msg *transport.Message) {
	if err := handler(ctx, msg); err != nil {
		i.logger.Warn("handler failed", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// Subscribe подписывается на subject
func (i *InMemoryAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.subscribers[subject] = append(i.subscribers[subject], handler)
	return nil
}

// Unsubscribe отписывается от subject
func (i *InMemoryAdapter) Unsubscribe(subject string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.subscribers, subject)
	return nil
}

// SubscriberCount возвращает количество подписчиков для subject
func (i *InMemoryAdapter) SubscriberCount(subject string) int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.subscribers[subject])
}

// matchSubject проверяет соответствие subject с wildcard паттерном.
// Поддерживает NATS-style wildcards: * (один токен) и > (все оставшиеся токены).
func matchSubject(subject, pattern string) bool {
	subjectParts := strings.Split(subject, ".")
	patternParts := strings.Split(pattern, ".")

	for idx, part := range patternParts {
		if part == ">" {
			return idx < len(subjectParts)
		}
		if idx >= len(subjectParts) {
			return false
		}
		if part != "*" && part != subjectParts[idx] {
			return false
		}
	}

	return len(patternParts) == len(subjectParts)
}
