package testing

import (
	"errors"
	"fmt"
	"slices"
)

// Matcher errors.
var (
	ErrNoTrace            = errors.New("no signals recorded")
	ErrNoMatchersPassed   = errors.New("no matchers passed")
	ErrStateNotVisited    = errors.New("state was not visited")
	ErrTransitionNotTaken = errors.New("transition was not taken")
	ErrWrongState         = errors.New("unexpected state")
	ErrChangeCount        = errors.New("unexpected number of state changes")
	ErrOrderMismatch      = errors.New("states visited in a different order")
	ErrNotInitialized     = errors.New("machine was not initialized")
)

// Matcher checks a property of a signal trace.
type Matcher interface {
	Match(trace Trace) (bool, error)
	Description() string
}

// StateWasVisited matches when the state was entered at least once.
func StateWasVisited(name string) Matcher {
	return &stateVisitedMatcher{stateName: name}
}

type stateVisitedMatcher struct {
	stateName string
}

func (m *stateVisitedMatcher) Match(trace Trace) (bool, error) {
	if slices.Contains(trace.Visited(), m.stateName) {
		return true, nil
	}

	return false, fmt.Errorf("%w: '%s'", ErrStateNotVisited, m.stateName)
}

func (m *stateVisitedMatcher) Description() string {
	return fmt.Sprintf("state '%s' should be visited", m.stateName)
}

// TransitionWasTaken matches when a switch from -> to completed. The first
// switch into the default state never matches.
func TransitionWasTaken(from, to string) Matcher {
	return &transitionTakenMatcher{from: from, to: to}
}

type transitionTakenMatcher struct {
	from string
	to   string
}

func (m *transitionTakenMatcher) Match(trace Trace) (bool, error) {
	for _, e := range trace.Changes() {
		if !e.FirstRun && e.From == m.from && e.To == m.to {
			return true, nil
		}
	}

	return false, fmt.Errorf("%w: from '%s' to '%s'", ErrTransitionNotTaken, m.from, m.to)
}

func (m *transitionTakenMatcher) Description() string {
	return fmt.Sprintf("transition from '%s' to '%s' should be taken", m.from, m.to)
}

// FinalState matches when the last completed switch entered name.
func FinalState(name string) Matcher {
	return &finalStateMatcher{stateName: name}
}

type finalStateMatcher struct {
	stateName string
}

func (m *finalStateMatcher) Match(trace Trace) (bool, error) {
	changes := trace.Changes()
	if len(changes) == 0 {
		return false, ErrNoTrace
	}

	if last := changes[len(changes)-1].To; last != m.stateName {
		return false, fmt.Errorf("%w: expected '%s', got '%s'", ErrWrongState, m.stateName, last)
	}

	return true, nil
}

func (m *finalStateMatcher) Description() string {
	return fmt.Sprintf("final state should be '%s'", m.stateName)
}

// ChangeCount matches the number of completed switches, the first one included.
func ChangeCount(expected int) Matcher {
	return &changeCountMatcher{expected: expected}
}

type changeCountMatcher struct {
	expected int
}

func (m *changeCountMatcher) Match(trace Trace) (bool, error) {
	if n := len(trace.Changes()); n != m.expected {
		return false, fmt.Errorf("%w: expected %d, got %d", ErrChangeCount, m.expected, n)
	}

	return true, nil
}

func (m *changeCountMatcher) Description() string {
	return fmt.Sprintf("machine should change state %d time(s)", m.expected)
}

// VisitedInOrder matches when the entered states are exactly names.
func VisitedInOrder(names ...string) Matcher {
	return &visitedInOrderMatcher{names: names}
}

type visitedInOrderMatcher struct {
	names []string
}

func (m *visitedInOrderMatcher) Match(trace Trace) (bool, error) {
	if visited := trace.Visited(); !slices.Equal(visited, m.names) {
		return false, fmt.Errorf("%w: expected %v, got %v", ErrOrderMismatch, m.names, visited)
	}

	return true, nil
}

func (m *visitedInOrderMatcher) Description() string {
	return fmt.Sprintf("states should be visited in order %v", m.names)
}

// Initialized matches when the machine reported initialization into
// defaultState.
func Initialized(defaultState string) Matcher {
	return &initializedMatcher{defaultState: defaultState}
}

type initializedMatcher struct {
	defaultState string
}

func (m *initializedMatcher) Match(trace Trace) (bool, error) {
	for _, e := range trace {
		if e.Kind != KindInitialized {
			continue
		}

		if e.To != m.defaultState {
			return false, fmt.Errorf("%w: initialized into '%s', expected '%s'", ErrWrongState, e.To, m.defaultState)
		}

		return true, nil
	}

	return false, ErrNotInitialized
}

func (m *initializedMatcher) Description() string {
	return fmt.Sprintf("machine should initialize into '%s'", m.defaultState)
}

// All creates a matcher that requires all sub-matchers to pass.
func All(matchers ...Matcher) Matcher {
	return &allMatcher{matchers: matchers}
}

type allMatcher struct {
	matchers []Matcher
}

func (m *allMatcher) Match(trace Trace) (bool, error) {
	for _, matcher := range m.matchers {
		matched, err := matcher.Match(trace)
		if !matched || err != nil {
			return false, err
		}
	}

	return true, nil
}

func (m *allMatcher) Description() string {
	return "all matchers should pass"
}

// Any creates a matcher that requires at least one sub-matcher to pass.
func Any(matchers ...Matcher) Matcher {
	return &anyMatcher{matchers: matchers}
}

type anyMatcher struct {
	matchers []Matcher
}

func (m *anyMatcher) Match(trace Trace) (bool, error) {
	for _, matcher := range m.matchers {
		matched, err := matcher.Match(trace)
		if matched && err == nil {
			return true, nil
		}
	}

	return false, ErrNoMatchersPassed
}

func (m *anyMatcher) Description() string {
	return "at least one matcher should pass"
}
