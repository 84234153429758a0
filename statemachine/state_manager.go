package statemachine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
)

// StateManager owns the current and previous state, the active instance and
// the switch algorithm. The changing flag rejects re-entrant switch requests
// made from hooks or guards; it is not a lock.
type StateManager[T Enum] struct {
	core *Core[T]

	states       []State[T]
	defaultState T
	hasDefault   bool

	current  T
	previous T
	active   State[T]
	changing bool
	started  bool

	// generation counts committed switches and scheduled delays.
	generation uint64
}

func newStateManager[T Enum](core *Core[T], states []State[T], defaultState T, hasDefault bool) *StateManager[T] {
	return &StateManager[T]{
		core:         core,
		states:       states,
		defaultState: defaultState,
		hasDefault:   hasDefault,
	}
}

// Initialize resolves the default state and performs the first switch into it.
// Without an explicit default the first registered instance wins.
func (m *StateManager[T]) Initialize(ctx context.Context) error {
	state, explicit := m.resolveDefault()

	m.core.logger.DefaultStateChosen(m.core.logCtx(ctx), state.String(), explicit)

	return m.ChangeState(ctx, state, true)
}

func (m *StateManager[T]) resolveDefault() (T, bool) {
	if m.hasDefault {
		return m.defaultState, true
	}

	return m.states[0].ConnectedState(), false
}

// CurrentState returns the active state value.
func (m *StateManager[T]) CurrentState() T {
	return m.current
}

// PreviousState returns the value active before the last switch.
func (m *StateManager[T]) PreviousState() T {
	return m.previous
}

// DefaultState returns the declared default state, or the state of the
// first registered instance when none was declared.
func (m *StateManager[T]) DefaultState() T {
	state, _ := m.resolveDefault()

	return state
}

// CurrentStateInstance returns the active instance, nil before the first switch.
func (m *StateManager[T]) CurrentStateInstance() State[T] {
	return m.active
}

// IsChangingState reports whether a switch is running or a delayed switch is pending.
func (m *StateManager[T]) IsChangingState() bool {
	return m.changing
}

// ChangeState switches to state. A request made while another switch is in
// progress is dropped with ErrStateChangeInProgress. Switching to the current
// state is a no-op unless firstRun. The target instance is resolved before
// anything is mutated, so a missing instance leaves the machine untouched.
func (m *StateManager[T]) ChangeState(ctx context.Context, state T, firstRun bool) error {
	if m.core.disposed {
		return WrapStateError(state.String(), ErrDisposed)
	}

	if m.changing {
		return m.reject(ctx, state, ErrStateChangeInProgress, reasonReentrant)
	}

	if !firstRun && m.started && state == m.current {
		return nil
	}

	if !m.core.enum.Contains(state) {
		return m.reject(ctx, state, ErrUnknownState, reasonUnknownState)
	}

	instance, ok := m.find(state)
	if !ok {
		return m.reject(ctx, state, ErrStateNotFound, reasonMissingInstance)
	}

	previous := m.commit(ctx, state, instance, firstRun)

	m.core.signals.changed.fire(ctx, StateChanged[T]{
		Previous: previous,
		Next:     state,
		FirstRun: firstRun,
		Machine:  m.core,
		Entity:   m.core.entity,
	})

	return nil
}

func (m *StateManager[T]) commit(ctx context.Context, state T, instance State[T], firstRun bool) T {
	from := m.current
	if firstRun && !m.started {
		from = state
	}

	ctx, span := startSwitchSpan(ctx, m.core, from.String(), state.String(), firstRun)
	defer span.End()

	start := time.Now()

	m.changing = true
	defer func() { m.changing = false }()

	if m.active != nil {
		m.deactivate(ctx, m.active)
		m.active = nil
	}

	m.previous = from
	m.current = state
	m.active = instance
	m.started = true
	m.generation++

	if binder, ok := instance.(stateBinder[T]); ok {
		binder.setActive(true)
	}

	instance.StartState(ctx)

	m.core.signals.entered.fire(ctx, StateEntered[T]{
		State:   state,
		Machine: m.core,
		Entity:  m.core.entity,
	})

	m.core.metrics.stateChanged(from.String(), state.String(), time.Since(start))

	m.core.logger.StateSwitched(m.core.logCtx(ctx), from.String(), state.String(), firstRun)

	span.SetStatus(codes.Ok, "switched")

	return from
}

func (m *StateManager[T]) deactivate(ctx context.Context, instance State[T]) {
	instance.Dispose(ctx)

	if binder, ok := instance.(stateBinder[T]); ok {
		binder.setActive(false)
	}

	m.core.signals.exited.fire(ctx, StateExited[T]{
		State:   instance.ConnectedState(),
		Machine: m.core,
		Entity:  m.core.entity,
	})
}

// ChangeStateDelayed switches to state once delay has elapsed. The machine
// counts as changing from the moment of the call, so every other request is
// rejected until the switch happens. A request for the current state is a
// no-op. A scheduled switch cannot be cancelled; one that comes due after
// Dispose is dropped.
func (m *StateManager[T]) ChangeStateDelayed(ctx context.Context, state T, delay time.Duration) error {
	if m.core.disposed {
		return WrapStateError(state.String(), ErrDisposed)
	}

	if m.changing {
		return m.reject(ctx, state, ErrStateChangeInProgress, reasonReentrant)
	}

	if delay < 0 {
		return m.reject(ctx, state, ErrNegativeDelay, reasonInvalidDelay)
	}

	if m.started && state == m.current {
		return nil
	}

	if delay == 0 {
		return m.ChangeState(ctx, state, false)
	}

	if !m.core.enum.Contains(state) {
		return m.reject(ctx, state, ErrUnknownState, reasonUnknownState)
	}

	if _, ok := m.find(state); !ok {
		return m.reject(ctx, state, ErrStateNotFound, reasonMissingInstance)
	}

	m.changing = true
	m.generation++

	detached := context.WithoutCancel(ctx)

	m.core.scheduler.Schedule(delay, func() {
		m.changing = false

		if m.core.disposed {
			m.core.logger.StateChangeRejected(m.core.logCtx(detached), state.String(), ErrDisposed)

			return
		}

		_ = m.ChangeState(detached, state, false)
	})

	m.core.metrics.delayedScheduled()

	m.core.logger.DelayedSwitchScheduled(m.core.logCtx(ctx), state.String(), delay)

	return nil
}

// dispose tears down the active instance. The transition table is untouched.
func (m *StateManager[T]) dispose(ctx context.Context) {
	if m.active == nil {
		return
	}

	m.deactivate(ctx, m.active)
	m.active = nil
}

// find resolves the instance bound to state by linear scan.
func (m *StateManager[T]) find(state T) (State[T], bool) {
	for _, instance := range m.states {
		if instance.ConnectedState() == state {
			return instance, true
		}
	}

	return nil, false
}

func (m *StateManager[T]) reject(ctx context.Context, state T, err error, reason string) error {
	wrapped := WrapStateError(state.String(), err)

	m.core.metrics.rejected(reason)
	m.core.logger.StateChangeRejected(m.core.logCtx(ctx), state.String(), wrapped)

	return wrapped
}
