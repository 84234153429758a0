package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalBus_OrderAndUnsubscribe(t *testing.T) {
	t.Parallel()

	bus := NewSignalBus[enemyState]()

	var got []string

	unsubscribeA := bus.OnStateEntered(func(_ context.Context, s StateEntered[enemyState]) {
		got = append(got, "a:"+s.State.String())
	})
	bus.OnStateEntered(func(_ context.Context, s StateEntered[enemyState]) {
		got = append(got, "b:"+s.State.String())
	})

	bus.entered.fire(t.Context(), StateEntered[enemyState]{State: Walking})
	unsubscribeA()
	unsubscribeA()
	bus.entered.fire(t.Context(), StateEntered[enemyState]{State: Dead})

	assert.Equal(t, []string{"a:Walking", "b:Walking", "b:Dead"}, got)
}

func TestSignalBus_UnsubscribeWhileDelivering(t *testing.T) {
	t.Parallel()

	bus := NewSignalBus[enemyState]()
	calls := 0

	var unsubscribe func()

	unsubscribe = bus.OnStateExited(func(context.Context, StateExited[enemyState]) {
		calls++

		unsubscribe()
	})
	bus.OnStateExited(func(context.Context, StateExited[enemyState]) { calls++ })

	bus.exited.fire(t.Context(), StateExited[enemyState]{})
	bus.exited.fire(t.Context(), StateExited[enemyState]{})

	assert.Equal(t, 3, calls)
}

func TestSignalBus_NilSubscriber(t *testing.T) {
	t.Parallel()

	bus := NewSignalBus[enemyState]()

	assert.NotPanics(t, func() {
		bus.OnInitialized(nil)()
		bus.initialized.fire(t.Context(), MachineInitialized[enemyState]{})
	})
}

func TestSignalBus_SharedBetweenMachines(t *testing.T) {
	t.Parallel()

	bus := NewSignalBus[enemyState]()

	var entities []string

	bus.OnStateChanged(func(_ context.Context, s StateChanged[enemyState]) {
		entities = append(entities, s.Entity.Name())
	})

	for _, name := range []string{"orc", "troll"} {
		core, err := NewCore(enemyStates, []State[enemyState]{newCountingState(Idle)},
			WithEntity[enemyState](NamedEntity(name)),
			WithSignalBus(bus),
			WithLogger[enemyState](NopLogger{}),
		)
		require.NoError(t, err)
		require.NoError(t, core.Initialize(t.Context()))
	}

	assert.Equal(t, []string{"orc", "troll"}, entities)
}

func TestFuncState(t *testing.T) {
	t.Parallel()

	var calls []string

	state := NewFuncState(Walking, StateHooks[enemyState]{
		OnInitialize: func(*Core[enemyState]) { calls = append(calls, "init") },
		OnStart:      func(context.Context) { calls = append(calls, "start") },
		OnTick:       func(context.Context) { calls = append(calls, "tick") },
		OnDispose:    func(context.Context) { calls = append(calls, "dispose") },
	})

	core, err := NewCore(enemyStates, []State[enemyState]{newCountingState(Idle), state},
		WithLogger[enemyState](NopLogger{}))
	require.NoError(t, err)

	ctx := t.Context()

	require.NoError(t, core.Initialize(ctx))
	require.NoError(t, core.ChangeState(ctx, Walking))
	assert.True(t, state.IsActive())
	assert.Same(t, core, state.Machine())

	core.Tick(ctx)
	core.FixedTick(ctx)
	core.LateTick(ctx)
	require.NoError(t, core.ChangeState(ctx, Idle))

	assert.Equal(t, []string{"init", "start", "tick", "dispose"}, calls)
	assert.False(t, state.IsActive())
	assert.Equal(t, Walking, state.ConnectedState())
}
