// Package fsm предоставляет определения состояний для FSM.
package fsm

import (
	"context"
)

// State представляет состояние конечного автомата
type State interface {
	// Name возвращает имя состояния
	Name() string
	// OnEnter вызывается при входе в состояние
	OnEnter(ctx context.Context, event Event) error
	// OnExit вызывается при выходе из состояния
	OnExit(ctx context.Context, event Event) error
}

// Terminal реализуется состояниями, из которых нет переходов
type Terminal interface {
	IsTerminal() bool
}

// IsTerminal проверяет, является ли состояние терминальным
func IsTerminal(state State) bool {
	t, ok := state.(Terminal)
	return ok && t.IsTerminal()
}

// BaseState базовая реализация состояния с пустыми обработчиками
type BaseState struct {
	name     string
	terminal bool
}

// NewBaseState создает новое базовое состояние
func NewBaseState(name string) *BaseState {
	return &BaseState{name: name}
}

// NewTerminalState создает терминальное состояние
func NewTerminalState(name string) *BaseState {
	return &BaseState{name: name, terminal: true}
}

func (s *BaseState) Name() string {
	return s.name
}

func (s *BaseState) IsTerminal() bool {
	return s.terminal
}

func (s *BaseState) OnEnter(ctx context.Context, event Event) error {
	return nil
}

func (s *BaseState) OnExit(ctx context.Context, event Event) error {
	return nil
}

// StateWithActions состояние с действиями на вход и выход
type StateWithActions struct {
	*BaseState
	enterActions []Action
	exitActions  []Action
}

// NewStateWithActions создает состояние с действиями
func NewStateWithActions(base *BaseState, enterActions, exitActions []Action) *StateWithActions {
	return &StateWithActions{
		BaseState:    base,
		enterActions: enterActions,
		exitActions:  exitActions,
	}
}

func (s *StateWithActions) OnEnter(ctx context.Context, event Event) error {
	for _, action := range s.enterActions {
		if err := action.Execute(ctx, event); err != nil {
			return err
		}
	}
	return s.BaseState.OnEnter(ctx, event)
}

func (s *StateWithActions) OnExit(ctx context.Context, event Event) error {
	for _, action := range s.exitActions {
		if err := action.Execute(ctx, event); err != nil {
			return err
		}
	}
	return s.BaseState.OnExit(ctx, event)
}
