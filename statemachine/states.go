package statemachine

import "context"

// State is a unit of behavior bound to one enumeration value. It is active
// while its value is the machine's current state. Tick, FixedTick and
// LateTick are only invoked on the active instance.
type State[T Enum] interface {
	ConnectedState() T
	Initialize(machine *Core[T])
	StartState(ctx context.Context)
	Tick(ctx context.Context)
	FixedTick(ctx context.Context)
	LateTick(ctx context.Context)
	Dispose(ctx context.Context)
}

// stateBinder is implemented by types embedding BaseState. The registry uses
// it to attach the machine and flip the active flag, so overriding
// StartState or Dispose does not require calling the embedded method.
type stateBinder[T Enum] interface {
	bind(machine *Core[T])
	setActive(active bool)
}

// BaseState provides the bookkeeping and no-op hooks of a State. Embed it and
// override the hooks you need.
type BaseState[T Enum] struct {
	state   T
	machine *Core[T]
	active  bool
}

// NewBaseState creates a BaseState bound to state.
func NewBaseState[T Enum](state T) BaseState[T] {
	return BaseState[T]{state: state}
}

func (s *BaseState[T]) ConnectedState() T {
	return s.state
}

// Machine returns the owning machine, nil before Initialize.
func (s *BaseState[T]) Machine() *Core[T] {
	return s.machine
}

// IsActive reports whether this state is the machine's current state.
func (s *BaseState[T]) IsActive() bool {
	return s.active
}

func (s *BaseState[T]) Initialize(*Core[T]) {}

func (s *BaseState[T]) StartState(context.Context) {}

func (s *BaseState[T]) Tick(context.Context) {}

func (s *BaseState[T]) FixedTick(context.Context) {}

func (s *BaseState[T]) LateTick(context.Context) {}

func (s *BaseState[T]) Dispose(context.Context) {}

func (s *BaseState[T]) bind(machine *Core[T]) {
	s.machine = machine
}

func (s *BaseState[T]) setActive(active bool) {
	s.active = active
}

// StateHooks are the optional callbacks of a FuncState.
type StateHooks[T Enum] struct {
	OnInitialize func(machine *Core[T])
	OnStart      func(ctx context.Context)
	OnTick       func(ctx context.Context)
	OnFixedTick  func(ctx context.Context)
	OnLateTick   func(ctx context.Context)
	OnDispose    func(ctx context.Context)
}

// FuncState is a State assembled from hook functions. Nil hooks are skipped.
type FuncState[T Enum] struct {
	BaseState[T]

	hooks StateHooks[T]
}

// NewFuncState creates a FuncState bound to state.
func NewFuncState[T Enum](state T, hooks StateHooks[T]) *FuncState[T] {
	return &FuncState[T]{
		BaseState: NewBaseState(state),
		hooks:     hooks,
	}
}

func (s *FuncState[T]) Initialize(machine *Core[T]) {
	if s.hooks.OnInitialize != nil {
		s.hooks.OnInitialize(machine)
	}
}

func (s *FuncState[T]) StartState(ctx context.Context) {
	if s.hooks.OnStart != nil {
		s.hooks.OnStart(ctx)
	}
}

func (s *FuncState[T]) Tick(ctx context.Context) {
	if s.hooks.OnTick != nil {
		s.hooks.OnTick(ctx)
	}
}

func (s *FuncState[T]) FixedTick(ctx context.Context) {
	if s.hooks.OnFixedTick != nil {
		s.hooks.OnFixedTick(ctx)
	}
}

func (s *FuncState[T]) LateTick(ctx context.Context) {
	if s.hooks.OnLateTick != nil {
		s.hooks.OnLateTick(ctx)
	}
}

func (s *FuncState[T]) Dispose(ctx context.Context) {
	if s.hooks.OnDispose != nil {
		s.hooks.OnDispose(ctx)
	}
}
