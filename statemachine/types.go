// Package statemachine implements a tick-driven finite state machine whose
// states are the values of a closed enumeration supplied by the host.
//
// A Core owns a transition table and a state registry. The host registers one
// State instance per enumeration value, calls Initialize once, then Tick once
// per frame. Each tick evaluates any-state transitions first, then direct
// transitions out of the current state, and applies at most one of them.
package statemachine

import (
	"fmt"
	"strconv"
)

// Enum is the constraint satisfied by state identifiers: an integer-kinded
// type with a String method, typically a const block declared with iota.
type Enum interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32

	fmt.Stringer
}

// Enumeration is the closed, ordered set of values a machine may occupy.
// It is immutable once constructed.
type Enumeration[T Enum] struct {
	values []T
	index  map[T]int
	names  map[string]T
}

// NewEnumeration builds an enumeration from the given values, in order.
// Values and their names must be unique.
func NewEnumeration[T Enum](values ...T) (*Enumeration[T], error) {
	if len(values) == 0 {
		return nil, ErrEmptyEnumeration
	}

	enum := &Enumeration[T]{
		values: make([]T, 0, len(values)),
		index:  make(map[T]int, len(values)),
		names:  make(map[string]T, len(values)),
	}

	for _, value := range values {
		if _, exists := enum.index[value]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStateValue, value)
		}

		name := value.String()
		if _, exists := enum.names[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStateName, name)
		}

		enum.index[value] = len(enum.values)
		enum.names[name] = value
		enum.values = append(enum.values, value)
	}

	return enum, nil
}

// MustEnumeration is NewEnumeration that panics on error. Intended for
// package-level declarations.
func MustEnumeration[T Enum](values ...T) *Enumeration[T] {
	enum, err := NewEnumeration(values...)
	if err != nil {
		panic(err)
	}

	return enum
}

// Values returns a copy of the values in declaration order.
func (e *Enumeration[T]) Values() []T {
	out := make([]T, len(e.values))
	copy(out, e.values)

	return out
}

// First returns the first declared value.
func (e *Enumeration[T]) First() T {
	return e.values[0]
}

// Len returns the number of values.
func (e *Enumeration[T]) Len() int {
	return len(e.values)
}

// Contains reports whether value belongs to the enumeration.
func (e *Enumeration[T]) Contains(value T) bool {
	_, ok := e.index[value]

	return ok
}

// Position returns the zero-based declaration position of value.
func (e *Enumeration[T]) Position(value T) (int, bool) {
	pos, ok := e.index[value]

	return pos, ok
}

// Ordinal returns the declared integer value of value. Transition ids are
// built from ordinals, not names.
func (e *Enumeration[T]) Ordinal(value T) (int64, bool) {
	if !e.Contains(value) {
		return 0, false
	}

	return int64(value), true
}

// Parse resolves a value by its String form.
func (e *Enumeration[T]) Parse(name string) (T, error) {
	value, ok := e.names[name]
	if !ok {
		var zero T

		return zero, fmt.Errorf("%w: %q", ErrUnknownState, name)
	}

	return value, nil
}

// Names returns the String form of every value in declaration order.
func (e *Enumeration[T]) Names() []string {
	out := make([]string, len(e.values))
	for i, value := range e.values {
		out[i] = value.String()
	}

	return out
}

// TransitionID addresses an entry in the transition table.
type TransitionID string

const transitionIDSeparator = "|"

// CreateTransitionID builds the id of the direct transition from -> to out of
// the declared ordinals of both endpoints.
func CreateTransitionID[T Enum](from, to T) TransitionID {
	return TransitionID(strconv.FormatInt(int64(from), 10) + transitionIDSeparator + strconv.FormatInt(int64(to), 10))
}

// AnyStateID builds the id of the any-state transition targeting to.
func AnyStateID[T Enum](to T) TransitionID {
	return TransitionID(to.String())
}
