package statemachine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amp-labs/automachine/logger"
	"github.com/google/uuid"
)

// Option configures a Core at construction.
type Option[T Enum] func(*coreOptions[T])

type coreOptions[T Enum] struct {
	name         string
	entity       Entity
	defaultState T
	hasDefault   bool
	logger       Logger
	settings     DebugSettings
	scheduler    Scheduler
	signals      *SignalBus[T]
}

// WithName names the machine in logs, metrics and spans.
func WithName[T Enum](name string) Option[T] {
	return func(o *coreOptions[T]) {
		o.name = name
	}
}

// WithEntity sets the owner reported in signals.
func WithEntity[T Enum](entity Entity) Option[T] {
	return func(o *coreOptions[T]) {
		o.entity = entity
	}
}

// WithDefaultState declares the state entered by Initialize.
func WithDefaultState[T Enum](state T) Option[T] {
	return func(o *coreOptions[T]) {
		o.defaultState = state
		o.hasDefault = true
	}
}

// WithLogger replaces the default slog-backed logger.
func WithLogger[T Enum](l Logger) Option[T] {
	return func(o *coreOptions[T]) {
		o.logger = l
	}
}

// WithDebugSettings sets the log categories of the default logger. It has no
// effect together with WithLogger.
func WithDebugSettings[T Enum](settings DebugSettings) Option[T] {
	return func(o *coreOptions[T]) {
		o.settings = settings
	}
}

// WithScheduler replaces the wall-clock scheduler. The scheduler is polled on
// every Tick, so it must not be shared with machines ticked on other goroutines.
func WithScheduler[T Enum](s Scheduler) Option[T] {
	return func(o *coreOptions[T]) {
		o.scheduler = s
	}
}

// WithSignalBus publishes on bus instead of a private one.
func WithSignalBus[T Enum](bus *SignalBus[T]) Option[T] {
	return func(o *coreOptions[T]) {
		o.signals = bus
	}
}

// Core is the facade hosts drive: it owns the state registry, the transition
// table and the signal bus of one machine. A Core is not safe for concurrent
// use; Initialize, Tick and every mutation must come from one goroutine.
type Core[T Enum] struct {
	id     uuid.UUID
	name   string
	entity Entity
	enum   *Enumeration[T]

	signals   *SignalBus[T]
	scheduler Scheduler
	logger    Logger
	metrics   machineMetrics

	states      *StateManager[T]
	transitions *TransitionsManager[T]

	ready    bool
	disposed bool
}

// NewCore creates a machine over enum with one instance per state in states.
// Not every enumeration value needs an instance; switching to one without
// fails with ErrStateNotFound.
func NewCore[T Enum](enum *Enumeration[T], states []State[T], opts ...Option[T]) (*Core[T], error) {
	if enum == nil {
		return nil, ErrEmptyEnumeration
	}

	options := coreOptions[T]{settings: DefaultDebugSettings()}
	for _, opt := range opts {
		opt(&options)
	}

	if err := validateStates(enum, states); err != nil {
		return nil, err
	}

	if options.hasDefault && !enum.Contains(options.defaultState) {
		return nil, WrapStateError(options.defaultState.String(), ErrUnknownState)
	}

	if options.logger == nil {
		options.logger = NewDefaultLogger(options.settings)
	}

	if options.scheduler == nil {
		options.scheduler = NewClockScheduler(nil)
	}

	if options.signals == nil {
		options.signals = NewSignalBus[T]()
	}

	core := &Core[T]{
		id:        uuid.New(),
		name:      options.name,
		entity:    options.entity,
		enum:      enum,
		signals:   options.signals,
		scheduler: options.scheduler,
		logger:    options.logger,
		metrics:   newMachineMetrics(options.name, options.entity),
	}

	registered := make([]State[T], len(states))
	copy(registered, states)

	core.states = newStateManager(core, registered, options.defaultState, options.hasDefault)
	core.transitions = newTransitionsManager(core)

	return core, nil
}

func validateStates[T Enum](enum *Enumeration[T], states []State[T]) error {
	if len(states) == 0 {
		return ErrNoStates
	}

	seen := make(map[T]struct{}, len(states))

	for i, state := range states {
		if state == nil {
			return fmt.Errorf("%w: index %d", ErrNilState, i)
		}

		value := state.ConnectedState()
		if !enum.Contains(value) {
			return WrapStateError(value.String(), ErrUnknownState)
		}

		if _, dup := seen[value]; dup {
			return WrapStateError(value.String(), ErrDuplicateState)
		}

		seen[value] = struct{}{}
	}

	return nil
}

// Initialize binds and initializes every state, then switches into the
// default state. It may only succeed once.
func (c *Core[T]) Initialize(ctx context.Context) (err error) {
	if c.disposed {
		return ErrDisposed
	}

	if c.ready {
		return ErrAlreadyInitialized
	}

	ctx, span := startInitializeSpan(ctx, c)
	defer func() { endSpan(span, err) }()

	for _, state := range c.states.states {
		if binder, ok := state.(stateBinder[T]); ok {
			binder.bind(c)
		}

		state.Initialize(c)
	}

	c.logger.MachineInitialized(c.logCtx(ctx), c.name, len(c.states.states))

	if err := c.states.Initialize(ctx); err != nil {
		return err
	}

	c.ready = true

	c.signals.initialized.fire(ctx, MachineInitialized[T]{
		DefaultState: c.states.CurrentState(),
		Machine:      c,
		Entity:       c.entity,
	})

	return nil
}

// Tick advances the machine by one frame: due delayed switches run first,
// then the transition table is evaluated unless a delayed switch just
// completed, then the active state ticks. Tick is a no-op before Initialize
// and after Dispose.
func (c *Core[T]) Tick(ctx context.Context) {
	if !c.ready || c.disposed {
		return
	}

	start := time.Now()
	defer func() { c.metrics.tickObserved(time.Since(start)) }()

	generation := c.states.generation

	c.scheduler.Poll()

	if c.disposed {
		return
	}

	if c.states.generation == generation {
		c.transitions.UpdateTransitions(ctx)
	}

	if active := c.states.active; active != nil && !c.disposed {
		active.Tick(ctx)
	}
}

// FixedTick forwards to the active state.
func (c *Core[T]) FixedTick(ctx context.Context) {
	if !c.ready || c.disposed {
		return
	}

	if active := c.states.active; active != nil {
		active.FixedTick(ctx)
	}
}

// LateTick forwards to the active state.
func (c *Core[T]) LateTick(ctx context.Context) {
	if !c.ready || c.disposed {
		return
	}

	if active := c.states.active; active != nil {
		active.LateTick(ctx)
	}
}

// Dispose disposes the active state and stops the machine. The transition
// table is kept. Delayed switches that come due afterwards are dropped.
func (c *Core[T]) Dispose(ctx context.Context) {
	if c.disposed {
		return
	}

	c.disposed = true
	c.states.dispose(ctx)
}

// ChangeState switches to state immediately.
func (c *Core[T]) ChangeState(ctx context.Context, state T) error {
	if err := c.checkReady(state); err != nil {
		return err
	}

	return c.states.ChangeState(ctx, state, false)
}

// ChangeStateDelayed switches to state after delay. The machine is busy, and
// rejects other switch requests, until then.
func (c *Core[T]) ChangeStateDelayed(ctx context.Context, state T, delay time.Duration) error {
	if err := c.checkReady(state); err != nil {
		return err
	}

	return c.states.ChangeStateDelayed(ctx, state, delay)
}

func (c *Core[T]) checkReady(state T) error {
	if c.disposed {
		return WrapStateError(state.String(), ErrDisposed)
	}

	// StartState of the default state runs before ready is set.
	if !c.ready && !c.states.changing {
		return WrapStateError(state.String(), ErrNotInitialized)
	}

	return nil
}

// AddTransition registers the direct transition from -> to and returns its id.
// Invalid definitions are logged and nothing is inserted.
func (c *Core[T]) AddTransition(
	ctx context.Context,
	from, to T,
	guard Guard,
	opts ...TransitionOption,
) (TransitionID, error) {
	id := CreateTransitionID(from, to)

	err := c.addTransition(id, from, to, guard, opts)
	if err != nil {
		return id, c.rejectTransition(ctx, from.String(), to.String(), err)
	}

	return id, nil
}

func (c *Core[T]) addTransition(id TransitionID, from, to T, guard Guard, opts []TransitionOption) error {
	if !c.enum.Contains(from) || !c.enum.Contains(to) {
		return ErrUnknownState
	}

	transition, err := NewTransition(from, to, guard, opts...)
	if err != nil {
		return err
	}

	return c.transitions.AddTransition(id, transition)
}

// AddAnyStateTransition registers a transition into to that applies from
// every other state.
func (c *Core[T]) AddAnyStateTransition(ctx context.Context, to T, guard Guard, opts ...TransitionOption) error {
	err := c.addAnyStateTransition(to, guard, opts)
	if err != nil {
		return c.rejectTransition(ctx, "", to.String(), err)
	}

	return nil
}

func (c *Core[T]) addAnyStateTransition(to T, guard Guard, opts []TransitionOption) error {
	if !c.enum.Contains(to) {
		return ErrUnknownState
	}

	transition, err := NewAnyStateTransition(to, guard, opts...)
	if err != nil {
		return err
	}

	return c.transitions.AddAnyStateTransition(to, transition)
}

// rejectTransition logs and counts a refused definition. The returned error
// is always a *TransitionError.
func (c *Core[T]) rejectTransition(ctx context.Context, from, to string, err error) error {
	var wrapped *TransitionError
	if !errors.As(err, &wrapped) {
		wrapped = &TransitionError{From: from, To: to, Err: err}
	}

	c.metrics.rejected(reasonInvalidTransition)
	c.logger.TransitionRejected(c.logCtx(ctx), from, to, wrapped)

	return wrapped
}

// HasTransition reports whether from -> to is registered.
func (c *Core[T]) HasTransition(from, to T) bool {
	return c.transitions.HasTransition(CreateTransitionID(from, to))
}

// HasAnyStateTransition reports whether an any-state transition targets to.
func (c *Core[T]) HasAnyStateTransition(to T) bool {
	return c.transitions.HasAnyStateTransition(to)
}

// RemoveTransition deletes from -> to.
func (c *Core[T]) RemoveTransition(from, to T) error {
	if err := c.transitions.RemoveTransition(CreateTransitionID(from, to)); err != nil {
		return WrapTransitionError(from.String(), to.String(), err)
	}

	return nil
}

// RemoveAnyStateTransition deletes the any-state transition into to.
func (c *Core[T]) RemoveAnyStateTransition(to T) error {
	if err := c.transitions.RemoveAnyStateTransition(to); err != nil {
		return WrapTransitionError("", to.String(), err)
	}

	return nil
}

// RebindTransition moves one endpoint of from -> to to newState and returns
// the new id.
func (c *Core[T]) RebindTransition(
	ctx context.Context,
	from, to, newState T,
	option RebindOption,
) (TransitionID, error) {
	if !c.enum.Contains(newState) {
		return CreateTransitionID(from, to), c.rejectTransition(ctx, from.String(), to.String(), ErrUnknownState)
	}

	id, err := c.transitions.RebindTransition(CreateTransitionID(from, to), newState, option)
	if err != nil {
		return id, c.rejectTransition(ctx, from.String(), to.String(), fmt.Errorf("%w: %s to %s", err, option, newState))
	}

	return id, nil
}

// ChangeTransitionCondition replaces the guard of from -> to.
func (c *Core[T]) ChangeTransitionCondition(from, to T, guard Guard) error {
	err := c.transitions.ChangeTransitionCondition(CreateTransitionID(from, to), guard)

	return WrapTransitionError(from.String(), to.String(), err)
}

// ChangeTransitionDelay replaces the delay of from -> to.
func (c *Core[T]) ChangeTransitionDelay(from, to T, delay time.Duration) error {
	err := c.transitions.ChangeTransitionDelay(CreateTransitionID(from, to), delay)

	return WrapTransitionError(from.String(), to.String(), err)
}

// ChangeAnyStateTransitionCondition replaces the guard of the any-state transition into to.
func (c *Core[T]) ChangeAnyStateTransitionCondition(to T, guard Guard) error {
	return WrapTransitionError("", to.String(), c.transitions.ChangeAnyStateTransitionCondition(to, guard))
}

// ChangeAnyStateTransitionDelay replaces the delay of the any-state transition into to.
func (c *Core[T]) ChangeAnyStateTransitionDelay(to T, delay time.Duration) error {
	return WrapTransitionError("", to.String(), c.transitions.ChangeAnyStateTransitionDelay(to, delay))
}

// GetState returns the instance bound to value.
func (c *Core[T]) GetState(value T) (State[T], bool) {
	return c.states.find(value)
}

// GetStateOfType returns the first registered instance of type S.
func GetStateOfType[S any, T Enum](c *Core[T]) (S, bool) {
	for _, state := range c.states.states {
		if typed, ok := state.(S); ok {
			return typed, true
		}
	}

	var zero S

	return zero, false
}

// CurrentState returns the active state value.
func (c *Core[T]) CurrentState() T { return c.states.CurrentState() }

// PreviousState returns the value active before the last switch.
func (c *Core[T]) PreviousState() T { return c.states.PreviousState() }

// DefaultState returns the state Initialize enters.
func (c *Core[T]) DefaultState() T { return c.states.DefaultState() }

// CurrentStateInstance returns the active instance.
func (c *Core[T]) CurrentStateInstance() State[T] { return c.states.CurrentStateInstance() }

// IsChangingState reports whether a switch is running or pending.
func (c *Core[T]) IsChangingState() bool { return c.states.IsChangingState() }

// IsReady reports whether Initialize succeeded.
func (c *Core[T]) IsReady() bool { return c.ready }

// IsDisposed reports whether Dispose ran.
func (c *Core[T]) IsDisposed() bool { return c.disposed }

// ID returns the random instance identifier assigned at construction.
func (c *Core[T]) ID() uuid.UUID { return c.id }

// Name returns the display name, empty unless WithName was used.
func (c *Core[T]) Name() string { return c.name }

// Entity returns the owning entity, or nil.
func (c *Core[T]) Entity() Entity { return c.entity }

// Signals returns the bus for lifecycle notifications.
func (c *Core[T]) Signals() *SignalBus[T] { return c.signals }

// Enumeration returns the closed set of states this machine was built from.
func (c *Core[T]) Enumeration() *Enumeration[T] { return c.enum }

// Transitions returns the transition table manager.
func (c *Core[T]) Transitions() *TransitionsManager[T] { return c.transitions }

// States returns the manager owning the current state.
func (c *Core[T]) States() *StateManager[T] { return c.states }

// Definition snapshots the enumeration, default state and transition table.
func (c *Core[T]) Definition() Definition {
	return Definition{
		Name:        c.name,
		States:      c.enum.Names(),
		Default:     c.states.DefaultState().String(),
		Transitions: c.transitions.Definitions(),
	}
}

// logCtx scopes ctx to this machine for logging.
func (c *Core[T]) logCtx(ctx context.Context) context.Context {
	entity := ""
	if c.entity != nil {
		entity = c.entity.Name()
	}

	return logger.WithMachine(ctx, c.id.String(), c.name, entity)
}
