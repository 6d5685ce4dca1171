package container

import (
	"context"
	"sync"

	"github.com/akriventsev/potter-commerce/framework/core"
)

// Hook компонент из пары функций, для того что не реализует core.Lifecycle
type Hook struct {
	name    string
	onStart func(ctx context.Context) error
	onStop  func(ctx context.Context) error

	mu      sync.RWMutex
	running bool
}

// NewHook создает Hook. Любая из функций может быть nil.
func NewHook(name string, onStart, onStop func(ctx context.Context) error) *Hook {
	return &Hook{name: name, onStart: onStart, onStop: onStop}
}

// Start вызывает onStart
func (h *Hook) Start(ctx context.Context) error {
	if h.onStart != nil {
		if err := h.onStart(ctx); err != nil {
			return err
		}
	}
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	return nil
}

// Stop вызывает onStop
func (h *Hook) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()

	if h.onStop != nil {
		return h.onStop(ctx)
	}
	return nil
}

// IsRunning проверяет статус
func (h *Hook) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Name возвращает имя компонента
func (h *Hook) Name() string {
	return h.name
}

// Type возвращает тип компонента
func (h *Hook) Type() core.ComponentType {
	return core.ComponentTypeModule
}
