// Package fsm предоставляет определения событий для FSM.
package fsm

import (
	"context"
	"time"
)

// Event представляет событие, которое может вызвать переход в FSM
type Event interface {
	// Name возвращает имя события
	Name() string
	// Data возвращает данные события
	Data() interface{}
	// Timestamp возвращает время создания события
	Timestamp() time.Time
}

// BaseEvent базовая реализация события
type BaseEvent struct {
	name      string
	data      interface{}
	timestamp time.Time
}

// NewEvent создает новое событие
func NewEvent(name string, data interface{}) *BaseEvent {
	return &BaseEvent{
		name:      name,
		data:      data,
		timestamp: time.Now(),
	}
}

func (e *BaseEvent) Name() string {
	return e.name
}

func (e *BaseEvent) Data() interface{} {
	return e.data
}

func (e *BaseEvent) Timestamp() time.Time {
	return e.timestamp
}

// TransitionHook функция-хук, вызываемая при переходе
type TransitionHook func(ctx context.Context, from State, to State, event Event) error

// Guard функция-охранник, проверяющая возможность перехода
type Guard func(ctx context.Context, from State, to State, event Event) (bool, error)
