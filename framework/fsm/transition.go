// Package fsm предоставляет определения переходов для FSM.
package fsm

import (
	"context"
	"fmt"
	"time"
)

// Transition представляет переход между состояниями
type Transition interface {
	// From возвращает исходное состояние
	From() State
	// To возвращает целевое состояние
	To() State
	// EventName возвращает имя события, вызывающего переход
	EventName() string
	// CanTransition проверяет возможность перехода
	CanTransition(ctx context.Context, event Event) (bool, error)
	// Execute выполняет переход для события
	Execute(ctx context.Context, event Event) error
}

// BaseTransition базовая реализация перехода
type BaseTransition struct {
	from       State
	to         State
	eventName  string
	guard      Guard
	actions    []Action
	beforeHook TransitionHook
	afterHook  TransitionHook
	timeout    time.Duration
}

// NewTransition создает новый переход
func NewTransition(from, to State, eventName string) *BaseTransition {
	return &BaseTransition{
		from:      from,
		to:        to,
		eventName: eventName,
	}
}

// WithGuard добавляет охранник (guard) к переходу
func (t *BaseTransition) WithGuard(guard Guard) *BaseTransition {
	t.guard = guard
	return t
}

// WithActions добавляет действия к переходу
func (t *BaseTransition) WithActions(actions ...Action) *BaseTransition {
	t.actions = append(t.actions, actions...)
	return t
}

// WithBeforeHook добавляет хук, вызываемый до перехода
func (t *BaseTransition) WithBeforeHook(hook TransitionHook) *BaseTransition {
	t.beforeHook = hook
	return t
}

// WithAfterHook добавляет хук, вызываемый после перехода
func (t *BaseTransition) WithAfterHook(hook TransitionHook) *BaseTransition {
	t.afterHook = hook
	return t
}

// WithTimeout ограничивает время выполнения действий перехода
func (t *BaseTransition) WithTimeout(timeout time.Duration) *BaseTransition {
	t.timeout = timeout
	return t
}

func (t *BaseTransition) From() State {
	return t.from
}

func (t *BaseTransition) To() State {
	return t.to
}

func (t *BaseTransition) EventName() string {
	return t.eventName
}

func (t *BaseTransition) CanTransition(ctx context.Context, event Event) (bool, error) {
	if t.guard == nil {
		return true, nil
	}
	return t.guard(ctx, t.from, t.to, event)
}

// Execute выполняет хуки, OnExit, действия и OnEnter в этом порядке.
// Guard проверяется автоматом до вызова Execute.
func (t *BaseTransition) Execute(ctx context.Context, event Event) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	if t.beforeHook != nil {
		if err := t.beforeHook(ctx, t.from, t.to, event); err != nil {
			return fmt.Errorf("before hook failed: %w", err)
		}
	}

	if err := t.from.OnExit(ctx, event); err != nil {
		return fmt.Errorf("onExit failed for state %s: %w", t.from.Name(), err)
	}

	for _, action := range t.actions {
		if err := action.Execute(ctx, event); err != nil {
			return fmt.Errorf("action %s failed: %w", action.Name(), err)
		}
	}

	if err := t.to.OnEnter(ctx, event); err != nil {
		return fmt.Errorf("onEnter failed for state %s: %w", t.to.Name(), err)
	}

	if t.afterHook != nil {
		if err := t.afterHook(ctx, t.from, t.to, event); err != nil {
			return fmt.Errorf("after hook failed: %w", err)
		}
	}

	return nil
}
