// Package container управляет жизненным циклом компонентов сервиса.
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/potter-commerce/framework/core"
	"github.com/akriventsev/potter-commerce/framework/logger"
)

// Component компонент с именем и жизненным циклом
type Component interface {
	core.Component
	core.Lifecycle
}

// Config конфигурация контейнера
type Config struct {
	ShutdownTimeout time.Duration
}

// Container запускает компоненты в порядке регистрации и останавливает в обратном
type Container struct {
	config Config
	logger *zap.Logger

	mu         sync.RWMutex
	components []Component
	byName     map[string]Component
	started    []Component
}

// NewContainer создает новый контейнер
func NewContainer(config *Config) *Container {
	if config == nil {
		config = &Config{ShutdownTimeout: 30 * time.Second}
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	return &Container{
		config: *config,
		logger: zap.NewNop(),
		byName: make(map[string]Component),
	}
}

// WithLogger устанавливает логгер
func (c *Container) WithLogger(l *zap.Logger) *Container {
	c.logger = logger.OrNop(l).Named("container")
	return c
}

// Register добавляет компонент. Имена должны быть уникальны.
func (c *Container) Register(component Component) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := component.Name()
	if _, exists := c.byName[name]; exists {
		return core.NewError(core.ErrAlreadyExists, fmt.Sprintf("component %s already registered", name))
	}
	c.byName[name] = component
	c.components = append(c.components, component)
	return nil
}

// MustRegister регистрирует компонент и паникует при дубликате
func (c *Container) MustRegister(components ...Component) {
	for _, component := range components {
		if err := c.Register(component); err != nil {
			panic(err)
		}
	}
}

// Get[T] получает компонент по имени с приведением типа
func Get[T any](c *Container, name string) (T, error) {
	var zero T
	c.mu.RLock()
	defer c.mu.RUnlock()

	component, exists := c.byName[name]
	if !exists {
		return zero, core.NewError(core.ErrNotFound, fmt.Sprintf("component %s not found", name))
	}

	typed, ok := component.(T)
	if !ok {
		return zero, fmt.Errorf("component %s has wrong type %T", name, component)
	}
	return typed, nil
}

// Components возвращает имена компонентов в порядке запуска
func (c *Container) Components() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.components))
	for _, component := range c.components {
		names = append(names, component.Name())
	}
	return names
}

// Start запускает компоненты по порядку. При ошибке уже запущенные останавливаются.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	components := append([]Component(nil), c.components...)
	c.mu.Unlock()

	for _, component := range components {
		if err := component.Start(ctx); err != nil {
			c.logger.Error("component failed to start",
				zap.String("component", component.Name()),
				zap.Error(err))
			if stopErr := c.Shutdown(context.WithoutCancel(ctx)); stopErr != nil {
				err = errors.Join(err, stopErr)
			}
			return core.Wrap(err, core.ErrInitializationFailed, fmt.Sprintf("failed to start %s", component.Name()))
		}

		c.mu.Lock()
		c.started = append(c.started, component)
		c.mu.Unlock()
		c.logger.Debug("component started", zap.String("component", component.Name()))
	}
	return nil
}

// Shutdown останавливает запущенные компоненты в обратном порядке.
// Ошибка одного компонента не прерывает остановку остальных.
func (c *Container) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ShutdownTimeout)
	defer cancel()

	c.mu.Lock()
	started := c.started
	c.started = nil
	c.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		component := started[i]
		if err := component.Stop(ctx); err != nil {
			c.logger.Warn("component failed to stop",
				zap.String("component", component.Name()),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", component.Name(), err))
		}
	}
	return errors.Join(errs...)
}
