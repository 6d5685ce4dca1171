// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/akriventsev/potter-commerce/framework/core"
	"github.com/akriventsev/potter-commerce/framework/metrics"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

// Bus транспорт с управляемым жизненным циклом
type Bus interface {
	transport.MessageBus
	core.Lifecycle
	core.Component
}

// Dependencies общие зависимости, передаваемые в адаптеры
type Dependencies struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Creator создает адаптер по конфигурации
type Creator func(config interface{}, deps Dependencies) (Bus, error)

// MessageBusFactory интерфейс фабрики для создания MessageBus адаптеров
type MessageBusFactory interface {
	Create(busType string, config interface{}, deps Dependencies) (Bus, error)
	Register(name string, creator Creator) error
}

// DefaultMessageBusFactory реализация фабрики MessageBus
type DefaultMessageBusFactory struct {
	creators map[string]Creator
	mu       sync.RWMutex
}

// NewMessageBusFactory создает новую фабрику MessageBus со встроенными адаптерами
func NewMessageBusFactory() *DefaultMessageBusFactory {
	factory := &DefaultMessageBusFactory{
		creators: make(map[string]Creator),
	}

	_ = factory.Register("nats", func(config interface{}, deps Dependencies) (Bus, error) {
		cfg, ok := config.(NATSConfig)
		if !ok {
			if url, ok := config.(string); ok {
				cfg = DefaultNATSConfig()
				cfg.URL = url
			} else {
				return nil, fmt.Errorf("invalid NATS config type: %T", config)
			}
		}
		return NewNATSAdapterBuilder().
			WithConfig(cfg).
			WithLogger(deps.Logger).
			WithMetrics(deps.Metrics).
			Build()
	})

	_ = factory.Register("kafka", func(config interface{}, deps Dependencies) (Bus, error) {
		cfg, ok := config.(KafkaConfig)
		if !ok {
			return nil, fmt.Errorf("invalid Kafka config type: %T", config)
		}
		adapter, err := NewKafkaAdapter(cfg)
		if err != nil {
			return nil, err
		}
		return adapter.WithLogger(deps.Logger).WithMetrics(deps.Metrics), nil
	})

	_ = factory.Register("redis", func(config interface{}, deps Dependencies) (Bus, error) {
		cfg, ok := config.(RedisConfig)
		if !ok {
			return nil, fmt.Errorf("invalid Redis config type: %T", config)
		}
		adapter, err := NewRedisAdapter(cfg)
		if err != nil {
			return nil, err
		}
		return adapter.WithLogger(deps.Logger).WithMetrics(deps.Metrics), nil
	})

	_ = factory.Register("rabbitmq", func(config interface{}, deps Dependencies) (Bus, error) {
		cfg, ok := config.(RabbitMQConfig)
		if !ok {
			return nil, fmt.Errorf("invalid RabbitMQ config type: %T", config)
		}
		adapter, err := NewRabbitMQAdapter(cfg)
		if err != nil {
			return nil, err
		}
		return adapter.WithLogger(deps.Logger).WithMetrics(deps.Metrics), nil
	})

	_ = factory.Register("inmemory", func(config interface{}, deps Dependencies) (Bus, error) {
		cfg, ok := config.(InMemoryConfig)
		if !ok {
			cfg = DefaultInMemoryConfig()
		}
		return NewInMemoryAdapter(cfg).WithLogger(deps.Logger).WithMetrics(deps.Metrics), nil
	})

	return factory
}

// Create создает MessageBus адаптер указанного типа
func (f *DefaultMessageBusFactory) Create(busType string, config interface{}, deps Dependencies) (Bus, error) {
	f.mu.RLock()
	creator, exists := f.creators[busType]
	f.mu.RUnlock()

	if !exists {
		return nil, core.NewError(core.ErrNotFound, fmt.Sprintf("unknown message bus type: %s", busType))
	}

	adapter, err := creator(config, deps)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInitializationFailed, fmt.Sprintf("failed to create %s adapter", busType))
	}

	return adapter, nil
}

// Register регистрирует custom адаптер
func (f *DefaultMessageBusFactory) Register(name string, creator Creator) error {
	if name == "" {
		return fmt.Errorf("adapter name cannot be empty")
	}
	if creator == nil {
		return fmt.Errorf("creator function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.creators[name]; exists {
		return core.NewError(core.ErrAlreadyExists, fmt.Sprintf("adapter %s already registered", name))
	}

	f.creators[name] = creator
	return nil
}

// ListRegistered возвращает отсортированный список зарегистрированных адаптеров
func (f *DefaultMessageBusFactory) ListRegistered() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
