// Package fsm предоставляет реализацию конечного автомата для саг и оркестрации.
package fsm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akriventsev/potter-commerce/framework/core"
)

// Коды ошибок FSM
const (
	ErrNoTransition    = "NO_TRANSITION"
	ErrTerminalState   = "TERMINAL_STATE"
	ErrTransitionGuard = "TRANSITION_GUARD"
)

// FSM конечный автомат
type FSM struct {
	mu           sync.RWMutex
	id           string
	currentState State
	states       map[string]State
	transitions  map[string][]Transition // key: "fromState:eventName"
	initialState State
	history      []StateHistory
	maxHistory   int
}

// StateHistory запись истории переходов
type StateHistory struct {
	From      string
	To        string
	Event     string
	Timestamp time.Time
}

// Config конфигурация FSM
type Config struct {
	ID         string
	MaxHistory int
}

// NewFSM создает новый конечный автомат
func NewFSM(initialState State, config ...Config) *FSM {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	fsm := &FSM{
		id:           cfg.ID,
		currentState: initialState,
		states:       make(map[string]State),
		transitions:  make(map[string][]Transition),
		initialState: initialState,
		maxHistory:   cfg.MaxHistory,
	}

	fsm.states[initialState.Name()] = initialState

	return fsm
}

// ID возвращает идентификатор автомата
func (f *FSM) ID() string {
	return f.id
}

// CurrentState возвращает текущее состояние
func (f *FSM) CurrentState() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.currentState
}

// IsTerminal проверяет, находится ли автомат в терминальном состоянии
func (f *FSM) IsTerminal() bool {
	return IsTerminal(f.CurrentState())
}

// AddState добавляет состояние в автомат
func (f *FSM) AddState(state State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.states[state.Name()]; exists {
		return fmt.Errorf("state %s already exists", state.Name())
	}

	f.states[state.Name()] = state
	return nil
}

// GetState получает состояние по имени
func (f *FSM) GetState(name string) (State, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	state, exists := f.states[name]
	return state, exists
}

// AddTransition добавляет переход в автомат
func (f *FSM) AddTransition(transition Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := transition.From()
	to := transition.To()

	if _, exists := f.states[from.Name()]; !exists {
		return fmt.Errorf("from state %s does not exist", from.Name())
	}
	if IsTerminal(from) {
		return fmt.Errorf("terminal state %s cannot have outgoing transitions", from.Name())
	}
	if _, exists := f.states[to.Name()]; !exists {
		f.states[to.Name()] = to
	}

	key := transitionKey(from.Name(), transition.EventName())
	f.transitions[key] = append(f.transitions[key], transition)
	return nil
}

// GetTransitions получает все переходы из указанного состояния для события
func (f *FSM) GetTransitions(from State, eventName string) []Transition {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.transitionsLocked(from, eventName)
}

// transitionsLocked вызывается под f.mu
func (f *FSM) transitionsLocked(from State, eventName string) []Transition {
	return f.transitions[transitionKey(from.Name(), eventName)]
}

// CanTransition проверяет возможность перехода из текущего состояния по событию
func (f *FSM) CanTransition(ctx context.Context, event Event) (bool, error) {
	f.mu.RLock()
	transitions := f.transitionsLocked(f.currentState, event.Name())
	f.mu.RUnlock()

	for _, transition := range transitions {
		if can, err := transition.CanTransition(ctx, event); err != nil {
			return false, err
		} else if can {
			return true, nil
		}
	}

	return false, nil
}

// Trigger запускает событие и выполняет первый разрешенный переход.
// Переход выполняется под блокировкой автомата, поэтому действия не должны блокироваться надолго.
func (f *FSM) Trigger(ctx context.Context, event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current := f.currentState
	if IsTerminal(current) {
		return core.NewError(ErrTerminalState,
			fmt.Sprintf("state %s is terminal, event %s rejected", current.Name(), event.Name()))
	}

	transitions := f.transitionsLocked(current, event.Name())
	if len(transitions) == 0 {
		return core.NewError(ErrNoTransition,
			fmt.Sprintf("no transition found from state %s for event %s", current.Name(), event.Name()))
	}

	var selected Transition
	for _, transition := range transitions {
		can, err := transition.CanTransition(ctx, event)
		if err != nil {
			return core.Wrap(err, ErrTransitionGuard, "guard check failed")
		}
		if can {
			selected = transition
			break
		}
	}

	if selected == nil {
		return core.NewError(ErrTransitionGuard,
			fmt.Sprintf("no allowed transition from state %s for event %s", current.Name(), event.Name()))
	}

	if err := selected.Execute(ctx, event); err != nil {
		return fmt.Errorf("transition %s -> %s failed: %w", current.Name(), selected.To().Name(), err)
	}

	f.currentState = selected.To()
	f.addHistory(current, f.currentState, event)

	return nil
}

// addHistory добавляет запись в историю
func (f *FSM) addHistory(from, to State, event Event) {
	if f.maxHistory <= 0 {
		return
	}

	f.history = append(f.history, StateHistory{
		From:      from.Name(),
		To:        to.Name(),
		Event:     event.Name(),
		Timestamp: event.Timestamp(),
	})

	if len(f.history) > f.maxHistory {
		f.history = f.history[len(f.history)-f.maxHistory:]
	}
}

// History возвращает историю переходов
func (f *FSM) History() []StateHistory {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]StateHistory, len(f.history))
	copy(result, f.history)
	return result
}

// Reset сбрасывает FSM в начальное состояние
func (f *FSM) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	event := NewEvent("reset", nil)
	if err := f.currentState.OnExit(ctx, event); err != nil {
		return fmt.Errorf("onExit failed during reset: %w", err)
	}

	f.currentState = f.initialState
	f.history = nil

	if err := f.initialState.OnEnter(ctx, event); err != nil {
		return fmt.Errorf("onEnter failed during reset: %w", err)
	}

	return nil
}

func transitionKey(from, event string) string {
	return from + ":" + event
}
