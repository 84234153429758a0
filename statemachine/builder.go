package statemachine

import (
	"context"
	"errors"
	"fmt"
)

// Builder provides a fluent API for constructing machines. Errors are
// collected and reported together by Build.
type Builder[T Enum] struct {
	enum        *Enumeration[T]
	opts        []Option[T]
	factories   map[T]func() State[T]
	transitions []pendingTransition[T]
	errs        []error
}

type pendingTransition[T Enum] struct {
	from     T
	to       T
	anyState bool
	guard    Guard
	opts     []TransitionOption
}

// NewBuilder creates a builder over enum.
func NewBuilder[T Enum](enum *Enumeration[T]) *Builder[T] {
	b := &Builder[T]{
		enum:      enum,
		factories: make(map[T]func() State[T]),
	}

	if enum == nil {
		b.errs = append(b.errs, ErrEmptyEnumeration)
	}

	return b
}

// WithName sets the machine name.
func (b *Builder[T]) WithName(name string) *Builder[T] {
	b.opts = append(b.opts, WithName[T](name))

	return b
}

// WithEntity sets the machine owner.
func (b *Builder[T]) WithEntity(entity Entity) *Builder[T] {
	b.opts = append(b.opts, WithEntity[T](entity))

	return b
}

// WithDefaultState declares the default state.
func (b *Builder[T]) WithDefaultState(state T) *Builder[T] {
	b.opts = append(b.opts, WithDefaultState(state))

	return b
}

// WithLogger sets the logger.
func (b *Builder[T]) WithLogger(l Logger) *Builder[T] {
	b.opts = append(b.opts, WithLogger[T](l))

	return b
}

// WithScheduler sets the scheduler.
func (b *Builder[T]) WithScheduler(s Scheduler) *Builder[T] {
	b.opts = append(b.opts, WithScheduler[T](s))

	return b
}

// WithDebugSettings sets the log categories.
func (b *Builder[T]) WithDebugSettings(settings DebugSettings) *Builder[T] {
	b.opts = append(b.opts, WithDebugSettings[T](settings))

	return b
}

// WithSignalBus sets the signal bus.
func (b *Builder[T]) WithSignalBus(bus *SignalBus[T]) *Builder[T] {
	b.opts = append(b.opts, WithSignalBus(bus))

	return b
}

// AddState registers the factory of the instance bound to value. Instances
// are created by Build in enumeration order, whatever order AddState is
// called in.
func (b *Builder[T]) AddState(value T, factory func() State[T]) *Builder[T] {
	if factory == nil {
		b.errs = append(b.errs, WrapStateError(value.String(), ErrNilState))

		return b
	}

	if _, dup := b.factories[value]; dup {
		b.errs = append(b.errs, WrapStateError(value.String(), ErrDuplicateState))

		return b
	}

	b.factories[value] = factory

	return b
}

// AddFuncState registers a FuncState built from hooks.
func (b *Builder[T]) AddFuncState(value T, hooks StateHooks[T]) *Builder[T] {
	return b.AddState(value, func() State[T] { return NewFuncState(value, hooks) })
}

// AddTransition queues the direct transition from -> to.
func (b *Builder[T]) AddTransition(from, to T, guard Guard, opts ...TransitionOption) *Builder[T] {
	b.transitions = append(b.transitions, pendingTransition[T]{
		from:  from,
		to:    to,
		guard: guard,
		opts:  opts,
	})

	return b
}

// AddAnyStateTransition queues an any-state transition into to.
func (b *Builder[T]) AddAnyStateTransition(to T, guard Guard, opts ...TransitionOption) *Builder[T] {
	b.transitions = append(b.transitions, pendingTransition[T]{
		to:       to,
		anyState: true,
		guard:    guard,
		opts:     opts,
	})

	return b
}

// ApplyConfig copies a declarative config into the builder. State names are
// resolved through the enumeration, conditions compile against bb. When
// factory is non-nil it supplies one instance per configured state.
func (b *Builder[T]) ApplyConfig(cfg *Config, bb *Blackboard, factory func(value T) State[T]) *Builder[T] {
	if cfg == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: nil config", ErrInvalidConfig))

		return b
	}

	if b.enum == nil {
		return b
	}

	if err := cfg.Validate(); err != nil {
		b.errs = append(b.errs, err)

		return b
	}

	b.WithName(cfg.Name)

	if cfg.Debug != nil {
		b.WithDebugSettings(*cfg.Debug)
	}

	if cfg.DefaultState != "" {
		if value, ok := b.parse(cfg.DefaultState); ok {
			b.WithDefaultState(value)
		}
	}

	if factory != nil {
		for _, name := range cfg.States {
			value, ok := b.parse(name)
			if !ok {
				continue
			}

			b.AddState(value, func() State[T] { return factory(value) })
		}
	}

	for _, t := range cfg.AnyStateTransitions {
		to, okTo := b.parse(t.To)
		guard, okGuard := b.guard(bb, t.Condition)

		if okTo && okGuard {
			b.AddAnyStateTransition(to, guard, b.delay(t.Delay)...)
		}
	}

	for _, t := range cfg.Transitions {
		from, okFrom := b.parse(t.From)
		to, okTo := b.parse(t.To)
		guard, okGuard := b.guard(bb, t.Condition)

		if okFrom && okTo && okGuard {
			b.AddTransition(from, to, guard, b.delay(t.Delay)...)
		}
	}

	return b
}

func (b *Builder[T]) parse(name string) (T, bool) {
	value, err := b.enum.Parse(name)
	if err != nil {
		b.errs = append(b.errs, err)

		return value, false
	}

	return value, true
}

func (b *Builder[T]) guard(bb *Blackboard, condition string) (Guard, bool) {
	guard, err := ExpressionGuard(bb, condition)
	if err != nil {
		b.errs = append(b.errs, err)

		return guard, false
	}

	return guard, true
}

func (b *Builder[T]) delay(value string) []TransitionOption {
	delay, err := ParseDelay(value)
	if err != nil {
		b.errs = append(b.errs, err)

		return nil
	}

	if delay == 0 {
		return nil
	}

	return []TransitionOption{WithDelay(delay)}
}

// Build creates the core and registers every queued transition, in the
// order they were added. The core is not initialized.
func (b *Builder[T]) Build(ctx context.Context) (*Core[T], error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	states := make([]State[T], 0, len(b.factories))

	for _, value := range b.enum.Values() {
		factory, ok := b.factories[value]
		if !ok {
			continue
		}

		state := factory()
		if state == nil {
			return nil, WrapStateError(value.String(), ErrNilState)
		}

		states = append(states, state)
	}

	core, err := NewCore(b.enum, states, b.opts...)
	if err != nil {
		return nil, err
	}

	var errs []error

	for _, t := range b.transitions {
		if t.anyState {
			if err := core.AddAnyStateTransition(ctx, t.to, t.guard, t.opts...); err != nil {
				errs = append(errs, err)
			}

			continue
		}

		if _, err := core.AddTransition(ctx, t.from, t.to, t.guard, t.opts...); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return core, nil
}
