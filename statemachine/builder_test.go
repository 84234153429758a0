package statemachine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Build(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	clock := newManualClock()
	walking := newCountingState(Walking)
	entered := 0

	core, err := NewBuilder(enemyStates).
		WithName("enemy").
		WithEntity(NamedEntity("goblin")).
		WithLogger(NopLogger{}).
		WithScheduler(NewClockScheduler(clock)).
		AddState(Walking, func() State[enemyState] { return walking }).
		AddFuncState(Idle, StateHooks[enemyState]{
			OnStart: func(context.Context) { entered++ },
		}).
		AddTransition(Idle, Walking, Always(), WithDelay(time.Second)).
		AddAnyStateTransition(Idle, NewGuard("never", func() bool { return false })).
		Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, "enemy", core.Name())
	assert.Equal(t, "goblin", core.Entity().Name())
	assert.Equal(t, Idle, core.DefaultState(), "instances are created in enumeration order")

	require.NoError(t, core.Initialize(ctx))
	assert.Equal(t, 1, entered)

	core.Tick(ctx)
	clock.Advance(time.Second)
	core.Tick(ctx)

	assert.Equal(t, Walking, core.CurrentState())
	assert.True(t, walking.IsActive())
	assert.True(t, core.HasAnyStateTransition(Idle))
}

func TestBuilder_CollectsErrors(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder(enemyStates).
		AddState(Idle, nil).
		AddFuncState(Walking, StateHooks[enemyState]{}).
		AddFuncState(Walking, StateHooks[enemyState]{}).
		Build(t.Context())

	require.ErrorIs(t, err, ErrNilState)
	require.ErrorIs(t, err, ErrDuplicateState)

	_, err = NewBuilder[enemyState](nil).Build(t.Context())
	require.ErrorIs(t, err, ErrEmptyEnumeration)

	_, err = NewBuilder(enemyStates).Build(t.Context())
	require.ErrorIs(t, err, ErrNoStates)
}

func TestBuilder_TransitionErrors(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder(enemyStates).
		WithLogger(NopLogger{}).
		AddFuncState(Idle, StateHooks[enemyState]{}).
		AddTransition(Idle, Idle, Always()).
		AddAnyStateTransition(Dead, Always(), WithDelay(-time.Second)).
		Build(t.Context())

	require.ErrorIs(t, err, ErrSelfTransition)
	require.ErrorIs(t, err, ErrNegativeDelay)
}

func TestBuilder_NilFactoryResult(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder(enemyStates).
		AddState(Dead, func() State[enemyState] { return nil }).
		Build(t.Context())

	require.ErrorIs(t, err, ErrNilState)
}

func TestBuilder_ApplyConfig(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromBytes([]byte(enemyYAML), FormatYAML)
	require.NoError(t, err)

	enum, err := cfg.Enumeration()
	require.NoError(t, err)

	ctx := t.Context()
	bb := NewBlackboard()
	bb.Set("counter", 0)
	bb.Set("hp", 10)

	clock := newManualClock()

	core, err := NewBuilder(enum).
		WithLogger(NopLogger{}).
		WithScheduler(NewClockScheduler(clock)).
		ApplyConfig(cfg, bb, func(value NamedState) State[NamedState] {
			return NewFuncState(value, StateHooks[NamedState]{})
		}).
		Build(ctx)
	require.NoError(t, err)

	idle, walking, dead := InternState("Idle"), InternState("Walking"), InternState("Dead")

	assert.Equal(t, "enemy", core.Name())
	assert.True(t, core.HasTransition(idle, walking))
	assert.True(t, core.HasTransition(walking, idle))
	assert.True(t, core.HasAnyStateTransition(dead))

	require.NoError(t, core.Initialize(ctx))
	assert.Equal(t, idle, core.CurrentState())

	bb.Set("counter", 1)
	core.Tick(ctx)
	assert.Equal(t, walking, core.CurrentState())

	bb.Set("hp", 0)
	core.Tick(ctx)
	assert.True(t, core.IsChangingState())

	clock.Advance(250 * time.Millisecond)
	core.Tick(ctx)
	assert.Equal(t, dead, core.CurrentState())
}

func TestBuilder_ApplyConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder(enemyStates).ApplyConfig(nil, nil, nil).Build(t.Context())
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewBuilder(enemyStates).ApplyConfig(&Config{}, nil, nil).Build(t.Context())
	require.ErrorIs(t, err, ErrConfigNameRequired)

	cfg := &Config{Name: "x", States: []string{"Idle", "Sleeping"}}

	_, err = NewBuilder(enemyStates).ApplyConfig(cfg, NewBlackboard(), nil).Build(t.Context())
	require.NoError(t, cfg.Validate())
	require.ErrorIs(t, err, ErrNoStates)

	_, err = NewBuilder(enemyStates).
		ApplyConfig(cfg, NewBlackboard(), func(value enemyState) State[enemyState] { return newCountingState(value) }).
		Build(t.Context())
	require.ErrorIs(t, err, ErrUnknownState, "Sleeping is not an enemyState")
}
