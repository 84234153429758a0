package statemachine

import (
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// AlwaysKey is the key of the Always guard.
const AlwaysKey = "always"

// Guard is the condition of a transition. Check runs on every tick and must
// be synchronous and cheap. Key identifies the logical condition: two guards
// with the same non-empty key are considered the same condition when
// detecting duplicate registrations. Closures are never compared.
type Guard struct {
	Key   string
	Check func() bool
}

// NewGuard pairs a check function with its identity key.
func NewGuard(key string, check func() bool) Guard {
	return Guard{Key: key, Check: check}
}

// Always is a guard that is always true.
func Always() Guard {
	return Guard{Key: AlwaysKey, Check: func() bool { return true }}
}

// Equals reports whether both guards carry the same non-empty key.
// Anonymous guards (empty key) never equal anything, themselves included.
func (g Guard) Equals(other Guard) bool {
	return g.Key != "" && g.Key == other.Key
}

// Evaluate runs the check. A nil check is false.
func (g Guard) Evaluate() bool {
	if g.Check == nil {
		return false
	}

	return g.Check()
}

// HashKey derives a stable content-hash key from its parts, for callers that
// identify guards by their inputs rather than by a hand-written name.
func HashKey(parts ...string) string {
	sum := xxh3.HashString(strings.Join(parts, "\x00"))

	return "h:" + strconv.FormatUint(sum, 16)
}

// RebindOption selects the endpoint RebindTransition replaces.
type RebindOption int

const (
	// RebindFrom replaces the source state.
	RebindFrom RebindOption = iota
	// RebindTo replaces the destination state.
	RebindTo
)

func (o RebindOption) String() string {
	switch o {
	case RebindFrom:
		return "REBIND_FROM"
	case RebindTo:
		return "REBIND_TO"
	default:
		return "REBIND_UNKNOWN(" + strconv.Itoa(int(o)) + ")"
	}
}

// TransitionOption configures a StateTransition at construction.
type TransitionOption func(*transitionSettings)

type transitionSettings struct {
	delay time.Duration
}

// WithDelay makes the transition switch state after d instead of immediately.
func WithDelay(d time.Duration) TransitionOption {
	return func(s *transitionSettings) {
		s.delay = d
	}
}

// StateTransition is an edge of the transition table. The endpoints are
// fixed once inserted (only the table may rebind them); guard and delay may
// be changed in place. An any-state transition has no source.
type StateTransition[T Enum] struct {
	from     T
	to       T
	anyState bool
	guard    Guard
	delay    time.Duration
}

// NewTransition creates the direct transition from -> to.
func NewTransition[T Enum](from, to T, guard Guard, opts ...TransitionOption) (*StateTransition[T], error) {
	if from == to {
		return nil, WrapTransitionError(from.String(), to.String(), ErrSelfTransition)
	}

	settings, err := applyTransitionOptions(opts)
	if err != nil {
		return nil, WrapTransitionError(from.String(), to.String(), err)
	}

	if guard.Check == nil {
		return nil, WrapTransitionError(from.String(), to.String(), ErrNilGuard)
	}

	return &StateTransition[T]{
		from:  from,
		to:    to,
		guard: guard,
		delay: settings.delay,
	}, nil
}

// NewAnyStateTransition creates a transition into to that applies from every
// state except to itself.
func NewAnyStateTransition[T Enum](to T, guard Guard, opts ...TransitionOption) (*StateTransition[T], error) {
	settings, err := applyTransitionOptions(opts)
	if err != nil {
		return nil, WrapTransitionError("", to.String(), err)
	}

	if guard.Check == nil {
		return nil, WrapTransitionError("", to.String(), ErrNilGuard)
	}

	return &StateTransition[T]{
		to:       to,
		anyState: true,
		guard:    guard,
		delay:    settings.delay,
	}, nil
}

func applyTransitionOptions(opts []TransitionOption) (transitionSettings, error) {
	var settings transitionSettings

	for _, opt := range opts {
		opt(&settings)
	}

	if settings.delay < 0 {
		return settings, ErrNegativeDelay
	}

	return settings, nil
}

// From returns the source state. ok is false for any-state transitions.
func (t *StateTransition[T]) From() (T, bool) {
	if t.anyState {
		var zero T

		return zero, false
	}

	return t.from, true
}

// To returns the destination state.
func (t *StateTransition[T]) To() T {
	return t.to
}

// IsAnyState reports whether the transition has no source.
func (t *StateTransition[T]) IsAnyState() bool {
	return t.anyState
}

// Guard returns the transition condition.
func (t *StateTransition[T]) Guard() Guard {
	return t.guard
}

// Delay returns how long the switch waits once the guard fires.
func (t *StateTransition[T]) Delay() time.Duration {
	return t.delay
}

// ID returns the table id this transition belongs under.
func (t *StateTransition[T]) ID() TransitionID {
	if t.anyState {
		return AnyStateID(t.to)
	}

	return CreateTransitionID(t.from, t.to)
}

// appliesFrom reports whether the transition may fire while current is active.
func (t *StateTransition[T]) appliesFrom(current T) bool {
	if t.anyState {
		return t.to != current
	}

	return t.from == current
}

func (t *StateTransition[T]) changeGuard(guard Guard) {
	t.guard = guard
}

func (t *StateTransition[T]) changeDelay(delay time.Duration) {
	t.delay = delay
}

func (t *StateTransition[T]) rebind(state T, option RebindOption) {
	switch option {
	case RebindFrom:
		t.from = state
	case RebindTo:
		t.to = state
	}
}

func (t *StateTransition[T]) describe() (string, string) {
	if t.anyState {
		return "", t.to.String()
	}

	return t.from.String(), t.to.String()
}
