package statemachine

import (
	"context"
	"iter"
	"time"
)

const (
	kindDirect   = "direct"
	kindAnyState = "any_state"
)

// TransitionsManager stores, mutates and evaluates the transitions of one
// machine. Direct transitions are keyed by CreateTransitionID, any-state
// transitions by their destination. Both keep insertion order, which is the
// order guards are evaluated in.
type TransitionsManager[T Enum] struct {
	core     *Core[T]
	direct   *orderedTable[TransitionID, *StateTransition[T]]
	anyState *orderedTable[T, *StateTransition[T]]
}

func newTransitionsManager[T Enum](core *Core[T]) *TransitionsManager[T] {
	return &TransitionsManager[T]{
		core:     core,
		direct:   newOrderedTable[TransitionID, *StateTransition[T]](),
		anyState: newOrderedTable[T, *StateTransition[T]](),
	}
}

// UpdateTransitions evaluates the table against the current state and
// applies the first transition whose guard holds. Any-state transitions are
// evaluated before direct ones. At most one transition fires per call; the
// return value reports whether one did.
func (m *TransitionsManager[T]) UpdateTransitions(ctx context.Context) bool {
	states := m.core.states
	if states.IsChangingState() {
		return false
	}

	current := states.CurrentState()
	generation := states.generation

	if m.evaluate(ctx, m.anyState.values(), current, generation, kindAnyState) {
		return true
	}

	return m.evaluate(ctx, m.direct.values(), current, generation, kindDirect)
}

func (m *TransitionsManager[T]) evaluate(
	ctx context.Context,
	transitions iter.Seq[*StateTransition[T]],
	current T,
	generation uint64,
	kind string,
) bool {
	for transition := range transitions {
		if !transition.appliesFrom(current) {
			continue
		}

		fired := transition.guard.Evaluate()

		// A guard that switched state on its own consumes this tick.
		if m.core.states.generation != generation || m.core.states.IsChangingState() {
			return true
		}

		if fired {
			m.apply(ctx, transition, kind)

			return true
		}
	}

	return false
}

func (m *TransitionsManager[T]) apply(ctx context.Context, transition *StateTransition[T], kind string) {
	from, to := transition.describe()
	delayed := transition.delay > 0

	m.core.logger.TransitionFired(m.core.logCtx(ctx), transition.ID(), from, to, transition.delay)
	m.core.metrics.transitionFired(kind, delayed)

	if !delayed {
		_ = m.core.states.ChangeState(ctx, transition.to, false)

		return
	}

	_ = m.core.states.ChangeStateDelayed(ctx, transition.to, transition.delay)
}

// CreateTransitionID builds the id of the direct transition from -> to.
func (m *TransitionsManager[T]) CreateTransitionID(from, to T) TransitionID {
	return CreateTransitionID(from, to)
}

// AddTransition inserts a direct transition under id. It fails with
// ErrDuplicateTransition if an equal guard is already registered under id,
// and with ErrTransitionConflict if id holds a different guard.
func (m *TransitionsManager[T]) AddTransition(id TransitionID, transition *StateTransition[T]) error {
	if existing, ok := m.direct.get(id); ok {
		if existing.guard.Equals(transition.guard) {
			return ErrDuplicateTransition
		}

		return ErrTransitionConflict
	}

	m.direct.add(id, transition)

	return nil
}

// AddAnyStateTransition inserts the any-state transition into destination.
// At most one any-state transition may target a destination.
func (m *TransitionsManager[T]) AddAnyStateTransition(destination T, transition *StateTransition[T]) error {
	if existing, ok := m.anyState.get(destination); ok {
		if existing.guard.Equals(transition.guard) {
			return ErrDuplicateTransition
		}

		return ErrTransitionConflict
	}

	m.anyState.add(destination, transition)

	return nil
}

// HasTransition reports whether a direct transition is registered under id.
func (m *TransitionsManager[T]) HasTransition(id TransitionID) bool {
	return m.direct.contains(id)
}

// HasTransitionWithGuard reports whether id holds a transition with an equal guard.
func (m *TransitionsManager[T]) HasTransitionWithGuard(id TransitionID, guard Guard) bool {
	existing, ok := m.direct.get(id)

	return ok && existing.guard.Equals(guard)
}

// HasAnyStateTransition reports whether an any-state transition targets destination.
func (m *TransitionsManager[T]) HasAnyStateTransition(destination T) bool {
	return m.anyState.contains(destination)
}

// HasAnyStateTransitionWithGuard reports whether the any-state transition
// into destination has an equal guard.
func (m *TransitionsManager[T]) HasAnyStateTransitionWithGuard(destination T, guard Guard) bool {
	existing, ok := m.anyState.get(destination)

	return ok && existing.guard.Equals(guard)
}

// GetTransition returns the direct transition registered under id.
func (m *TransitionsManager[T]) GetTransition(id TransitionID) (*StateTransition[T], bool) {
	return m.direct.get(id)
}

// GetAnyStateTransition returns the any-state transition into destination.
func (m *TransitionsManager[T]) GetAnyStateTransition(destination T) (*StateTransition[T], bool) {
	return m.anyState.get(destination)
}

// RemoveTransition deletes the direct transition under id.
func (m *TransitionsManager[T]) RemoveTransition(id TransitionID) error {
	if !m.direct.remove(id) {
		return ErrTransitionNotFound
	}

	return nil
}

// RemoveAnyStateTransition deletes the any-state transition into destination.
func (m *TransitionsManager[T]) RemoveAnyStateTransition(destination T) error {
	if !m.anyState.remove(destination) {
		return ErrTransitionNotFound
	}

	return nil
}

// RebindTransition replaces one endpoint of the transition under id and
// moves it to its new id. The entry keeps its evaluation position. newState
// may not equal either current endpoint, which also rules out creating a
// self-loop. The new id is returned.
func (m *TransitionsManager[T]) RebindTransition(id TransitionID, newState T, option RebindOption) (TransitionID, error) {
	transition, ok := m.direct.get(id)
	if !ok {
		return id, ErrTransitionNotFound
	}

	if option != RebindFrom && option != RebindTo {
		return id, ErrUnknownRebindOption
	}

	if newState == transition.from || newState == transition.to {
		return id, ErrInvalidRebind
	}

	from, to := transition.from, transition.to
	if option == RebindFrom {
		from = newState
	} else {
		to = newState
	}

	newID := CreateTransitionID(from, to)
	if !m.direct.rekey(id, newID) {
		return id, ErrTransitionConflict
	}

	transition.rebind(newState, option)

	return newID, nil
}

// ChangeTransitionCondition replaces the guard of the transition under id.
func (m *TransitionsManager[T]) ChangeTransitionCondition(id TransitionID, guard Guard) error {
	transition, ok := m.direct.get(id)
	if !ok {
		return ErrTransitionNotFound
	}

	if guard.Check == nil {
		return ErrNilGuard
	}

	transition.changeGuard(guard)

	return nil
}

// ChangeTransitionDelay replaces the delay of the transition under id.
func (m *TransitionsManager[T]) ChangeTransitionDelay(id TransitionID, delay time.Duration) error {
	transition, ok := m.direct.get(id)
	if !ok {
		return ErrTransitionNotFound
	}

	if delay < 0 {
		return ErrNegativeDelay
	}

	transition.changeDelay(delay)

	return nil
}

// ChangeAnyStateTransitionCondition replaces the guard of the any-state transition into destination.
func (m *TransitionsManager[T]) ChangeAnyStateTransitionCondition(destination T, guard Guard) error {
	transition, ok := m.anyState.get(destination)
	if !ok {
		return ErrTransitionNotFound
	}

	if guard.Check == nil {
		return ErrNilGuard
	}

	transition.changeGuard(guard)

	return nil
}

// ChangeAnyStateTransitionDelay replaces the delay of the any-state transition into destination.
func (m *TransitionsManager[T]) ChangeAnyStateTransitionDelay(destination T, delay time.Duration) error {
	transition, ok := m.anyState.get(destination)
	if !ok {
		return ErrTransitionNotFound
	}

	if delay < 0 {
		return ErrNegativeDelay
	}

	transition.changeDelay(delay)

	return nil
}

// Count returns the number of direct and any-state transitions.
func (m *TransitionsManager[T]) Count() (direct int, anyState int) {
	return m.direct.size(), m.anyState.size()
}

// Definitions describes every transition: any-state ones first in insertion
// order, then direct ones in natural id order.
func (m *TransitionsManager[T]) Definitions() []TransitionDefinition {
	out := make([]TransitionDefinition, 0, m.direct.size()+m.anyState.size())

	for transition := range m.anyState.values() {
		out = append(out, describeTransition(transition))
	}

	direct := make([]TransitionDefinition, 0, m.direct.size())
	for transition := range m.direct.values() {
		direct = append(direct, describeTransition(transition))
	}

	return append(out, sortDirect(direct)...)
}

func describeTransition[T Enum](transition *StateTransition[T]) TransitionDefinition {
	from, to := transition.describe()

	return TransitionDefinition{
		ID:       string(transition.ID()),
		From:     from,
		To:       to,
		AnyState: transition.anyState,
		Guard:    transition.guard.Key,
		Delay:    transition.delay,
	}
}
