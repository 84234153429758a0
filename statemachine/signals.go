package statemachine

import (
	"context"
	"slices"
)

// Entity is the owner of a machine, as seen by signal subscribers.
type Entity interface {
	Name() string
}

// NamedEntity is an Entity that is only a name.
type NamedEntity string

func (n NamedEntity) Name() string {
	return string(n)
}

// StateChanged is emitted after every completed switch. On the first switch
// FirstRun is true and Previous equals Next.
type StateChanged[T Enum] struct {
	Previous T
	Next     T
	FirstRun bool
	Machine  *Core[T]
	Entity   Entity
}

// StateEntered is emitted after a state's StartState hook ran.
type StateEntered[T Enum] struct {
	State   T
	Machine *Core[T]
	Entity  Entity
}

// StateExited is emitted after a state's Dispose hook ran.
type StateExited[T Enum] struct {
	State   T
	Machine *Core[T]
	Entity  Entity
}

// MachineInitialized is emitted once Initialize completed.
type MachineInitialized[T Enum] struct {
	DefaultState T
	Machine      *Core[T]
	Entity       Entity
}

// SignalBus fans machine notifications out to subscribers. Delivery is
// synchronous, in subscription order, with no retry. Not thread-safe.
type SignalBus[T Enum] struct {
	changed     observers[StateChanged[T]]
	entered     observers[StateEntered[T]]
	exited      observers[StateExited[T]]
	initialized observers[MachineInitialized[T]]
}

// NewSignalBus creates an empty bus.
func NewSignalBus[T Enum]() *SignalBus[T] {
	return &SignalBus[T]{}
}

// OnStateChanged subscribes fn and returns its unsubscribe func.
func (b *SignalBus[T]) OnStateChanged(fn func(ctx context.Context, signal StateChanged[T])) func() {
	return b.changed.add(fn)
}

// OnStateEntered subscribes fn and returns its unsubscribe func.
func (b *SignalBus[T]) OnStateEntered(fn func(ctx context.Context, signal StateEntered[T])) func() {
	return b.entered.add(fn)
}

// OnStateExited subscribes fn and returns its unsubscribe func.
func (b *SignalBus[T]) OnStateExited(fn func(ctx context.Context, signal StateExited[T])) func() {
	return b.exited.add(fn)
}

// OnInitialized subscribes fn and returns its unsubscribe func.
func (b *SignalBus[T]) OnInitialized(fn func(ctx context.Context, signal MachineInitialized[T])) func() {
	return b.initialized.add(fn)
}

type observer[E any] struct {
	id int
	fn func(ctx context.Context, event E)
}

type observers[E any] struct {
	nextID int
	subs   []observer[E]
}

func (o *observers[E]) add(fn func(ctx context.Context, event E)) func() {
	if fn == nil {
		return func() {}
	}

	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, observer[E]{id: id, fn: fn})

	return func() {
		o.subs = slices.DeleteFunc(o.subs, func(s observer[E]) bool {
			return s.id == id
		})
	}
}

// fire delivers to a snapshot, so subscribers may unsubscribe while handling.
func (o *observers[E]) fire(ctx context.Context, event E) {
	for _, sub := range slices.Clone(o.subs) {
		sub.fn(ctx, event)
	}
}
