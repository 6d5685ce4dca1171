package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/potter-commerce/framework/core"
)

func newOrderFSM(t *testing.T, actions ...Action) (*FSM, map[string]State) {
	t.Helper()

	states := map[string]State{
		"new":       NewBaseState("new"),
		"paid":      NewBaseState("paid"),
		"shipped":   NewTerminalState("shipped"),
		"cancelled": NewTerminalState("cancelled"),
	}

	f := NewFSM(states["new"], Config{ID: "order-1", MaxHistory: 10})
	require.NoError(t, f.AddState(states["paid"]))
	require.NoError(t, f.AddTransition(NewTransition(states["new"], states["paid"], "pay").WithActions(actions...)))
	require.NoError(t, f.AddTransition(NewTransition(states["paid"], states["shipped"], "ship")))
	require.NoError(t, f.AddTransition(NewTransition(states["new"], states["cancelled"], "cancel")))
	require.NoError(t, f.AddTransition(NewTransition(states["paid"], states["cancelled"], "cancel")))

	return f, states
}

func TestFSM_TriggerPassesEventData(t *testing.T) {
	var seen interface{}
	action := NewNamedAction("capture", func(ctx context.Context, event Event) error {
		seen = event.Data()
		return nil
	})

	f, _ := newOrderFSM(t, action)
	ctx := context.Background()

	require.NoError(t, f.Trigger(ctx, NewEvent("pay", 42.5)))
	assert.Equal(t, "paid", f.CurrentState().Name())
	assert.Equal(t, 42.5, seen)

	require.NoError(t, f.Trigger(ctx, NewEvent("ship", nil)))
	assert.True(t, f.IsTerminal())

	history := f.History()
	require.Len(t, history, 2)
	assert.Equal(t, StateHistory{From: "new", To: "paid", Event: "pay", Timestamp: history[0].Timestamp}, history[0])
	assert.Equal(t, "shipped", history[1].To)
}

func TestFSM_TerminalStateRejectsEvents(t *testing.T) {
	f, _ := newOrderFSM(t)
	ctx := context.Background()

	require.NoError(t, f.Trigger(ctx, NewEvent("cancel", nil)))

	err := f.Trigger(ctx, NewEvent("pay", nil))
	require.Error(t, err)
	assert.True(t, core.HasCode(err, ErrTerminalState))
	assert.Equal(t, "cancelled", f.CurrentState().Name())
}

func TestFSM_UnknownEvent(t *testing.T) {
	f, _ := newOrderFSM(t)

	err := f.Trigger(context.Background(), NewEvent("ship", nil))
	require.Error(t, err)
	assert.True(t, core.HasCode(err, ErrNoTransition))
	assert.Equal(t, "new", f.CurrentState().Name())
}

func TestFSM_GuardSelectsTransition(t *testing.T) {
	initial := NewBaseState("init")
	small := NewTerminalState("small")
	large := NewTerminalState("large")

	isLarge := func(ctx context.Context, from, to State, event Event) (bool, error) {
		return event.Data().(int) > 100, nil
	}
	isSmall := func(ctx context.Context, from, to State, event Event) (bool, error) {
		return event.Data().(int) <= 100, nil
	}

	f := NewFSM(initial)
	require.NoError(t, f.AddTransition(NewTransition(initial, large, "classify").WithGuard(isLarge)))
	require.NoError(t, f.AddTransition(NewTransition(initial, small, "classify").WithGuard(isSmall)))

	can, err := f.CanTransition(context.Background(), NewEvent("classify", 500))
	require.NoError(t, err)
	assert.True(t, can)

	require.NoError(t, f.Trigger(context.Background(), NewEvent("classify", 500)))
	assert.Equal(t, "large", f.CurrentState().Name())
}

func TestFSM_FailedActionKeepsState(t *testing.T) {
	boom := errors.New("boom")
	action := NewNamedAction("explode", func(ctx context.Context, event Event) error { return boom })

	f, _ := newOrderFSM(t, action)

	err := f.Trigger(context.Background(), NewEvent("pay", nil))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "new", f.CurrentState().Name())
	assert.Empty(t, f.History())
}

func TestFSM_StateActionsAndConditionalAction(t *testing.T) {
	var log []string
	record := func(name string) Action {
		return NewNamedAction(name, func(ctx context.Context, event Event) error {
			log = append(log, name)
			return nil
		})
	}

	initial := NewStateWithActions(NewBaseState("a"), nil, []Action{record("exit-a")})
	target := NewStateWithActions(NewTerminalState("b"), []Action{record("enter-b")}, nil)

	skip := NewConditionalAction("maybe", func(ctx context.Context, event Event) bool {
		return event.Data() == true
	}, record("conditional"))

	f := NewFSM(initial)
	require.NoError(t, f.AddTransition(NewTransition(initial, target, "go").WithActions(skip, record("action"))))

	require.NoError(t, f.Trigger(context.Background(), NewEvent("go", false)))
	assert.Equal(t, []string{"exit-a", "action", "enter-b"}, log)
	assert.True(t, f.IsTerminal())
}

func TestFSM_TerminalStateHasNoOutgoingTransitions(t *testing.T) {
	done := NewTerminalState("done")
	f := NewFSM(done)

	err := f.AddTransition(NewTransition(done, NewBaseState("x"), "again"))
	assert.Error(t, err)
}

func TestFSM_Reset(t *testing.T) {
	f, _ := newOrderFSM(t)
	ctx := context.Background()

	require.NoError(t, f.Trigger(ctx, NewEvent("pay", nil)))
	require.NoError(t, f.Reset(ctx))

	assert.Equal(t, "new", f.CurrentState().Name())
	assert.Empty(t, f.History())
	assert.Equal(t, "order-1", f.ID())
}
