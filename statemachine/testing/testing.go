//nolint:varnamelen // short names idiomatic
package testing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/amp-labs/automachine/statemachine"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

// Trace entry kinds.
const (
	KindInitialized = "initialized"
	KindChanged     = "changed"
	KindEntered     = "entered"
	KindExited      = "exited"
)

// TraceEntry records one signal delivered by the machine.
type TraceEntry struct {
	Kind     string
	From     string // previous state for KindChanged
	To       string // destination, entered, exited or default state
	FirstRun bool
	Tick     int // ticks completed when the signal was delivered
	At       time.Time
}

// Trace is the ordered list of signals a TestMachine observed.
type Trace []TraceEntry

// Changes returns the KindChanged entries.
func (tr Trace) Changes() Trace {
	var out Trace

	for _, e := range tr {
		if e.Kind == KindChanged {
			out = append(out, e)
		}
	}

	return out
}

// Visited returns the entered states in order.
func (tr Trace) Visited() []string {
	var out []string

	for _, e := range tr {
		if e.Kind == KindEntered {
			out = append(out, e.To)
		}
	}

	return out
}

// Assertion represents a test assertion.
type Assertion struct {
	Name   string
	Passed bool
	Error  error
}

// TestMachine wraps a Core with a fake clock, a signal trace and
// assertions. The core logs to the test through slogt.
type TestMachine[T statemachine.Enum] struct {
	*statemachine.Core[T]

	t          *testing.T
	clock      *FakeClock
	trace      Trace
	ticks      int
	assertions []Assertion
}

// NewTestMachine creates an uninitialized machine over states. Extra options
// are applied after the test clock, bus and logger, so they may override them.
func NewTestMachine[T statemachine.Enum](
	t *testing.T,
	enum *statemachine.Enumeration[T],
	states []statemachine.State[T],
	opts ...statemachine.Option[T],
) *TestMachine[T] {
	t.Helper()

	tm := &TestMachine[T]{t: t, clock: NewFakeClock()}
	bus := statemachine.NewSignalBus[T]()
	tm.subscribe(bus)

	base := []statemachine.Option[T]{
		statemachine.WithScheduler[T](statemachine.NewClockScheduler(tm.clock)),
		statemachine.WithSignalBus(bus),
		statemachine.WithLogger[T](statemachine.NewSlogLogger(slogt.New(t), statemachine.DefaultDebugSettings())),
	}

	core, err := statemachine.NewCore(enum, states, append(base, opts...)...)
	require.NoError(t, err, "failed to create machine")

	tm.Core = core

	return tm
}

// NewConfigMachine builds an initialized machine from a declarative config.
// Every state is a RecordingState; conditions read bb.
func NewConfigMachine(
	t *testing.T, config *statemachine.Config, bb *statemachine.Blackboard,
) *TestMachine[statemachine.NamedState] {
	t.Helper()

	enum, err := config.Enumeration()
	require.NoError(t, err, "invalid config states")

	tm := &TestMachine[statemachine.NamedState]{t: t, clock: NewFakeClock()}
	bus := statemachine.NewSignalBus[statemachine.NamedState]()
	tm.subscribe(bus)

	core, err := statemachine.NewBuilder(enum).
		WithScheduler(statemachine.NewClockScheduler(tm.clock)).
		WithSignalBus(bus).
		WithLogger(statemachine.NewSlogLogger(slogt.New(t), statemachine.DefaultDebugSettings())).
		ApplyConfig(config, bb, func(value statemachine.NamedState) statemachine.State[statemachine.NamedState] {
			return NewRecordingState(value)
		}).
		Build(t.Context())
	require.NoError(t, err, "failed to build machine")

	tm.Core = core
	tm.Initialize()

	return tm
}

func (tm *TestMachine[T]) subscribe(bus *statemachine.SignalBus[T]) {
	bus.OnInitialized(func(_ context.Context, s statemachine.MachineInitialized[T]) {
		tm.record(TraceEntry{Kind: KindInitialized, To: s.DefaultState.String()})
	})
	bus.OnStateChanged(func(_ context.Context, s statemachine.StateChanged[T]) {
		tm.record(TraceEntry{
			Kind:     KindChanged,
			From:     s.Previous.String(),
			To:       s.Next.String(),
			FirstRun: s.FirstRun,
		})
	})
	bus.OnStateEntered(func(_ context.Context, s statemachine.StateEntered[T]) {
		tm.record(TraceEntry{Kind: KindEntered, To: s.State.String()})
	})
	bus.OnStateExited(func(_ context.Context, s statemachine.StateExited[T]) {
		tm.record(TraceEntry{Kind: KindExited, To: s.State.String()})
	})
}

func (tm *TestMachine[T]) record(e TraceEntry) {
	e.Tick = tm.ticks
	e.At = tm.clock.Now()
	tm.trace = append(tm.trace, e)
}

// Initialize initializes the machine and fails the test on error.
func (tm *TestMachine[T]) Initialize() {
	tm.t.Helper()

	require.NoError(tm.t, tm.Core.Initialize(tm.t.Context()), "failed to initialize machine")
}

// Tick runs n ticks.
func (tm *TestMachine[T]) Tick(n int) {
	for range n {
		tm.Core.Tick(tm.t.Context())
		tm.ticks++
	}
}

// Advance moves the clock by d and runs one tick, which is when due delayed
// switches complete.
func (tm *TestMachine[T]) Advance(d time.Duration) {
	tm.clock.Advance(d)
	tm.Tick(1)
}

// Clock returns the machine's clock.
func (tm *TestMachine[T]) Clock() *FakeClock { return tm.clock }

// Ticks returns the number of ticks run through the TestMachine.
func (tm *TestMachine[T]) Ticks() int { return tm.ticks }

// Match runs a matcher against the trace and records the outcome.
func (tm *TestMachine[T]) Match(m Matcher) bool {
	tm.t.Helper()

	passed, err := m.Match(tm.trace)
	tm.assertions = append(tm.assertions, Assertion{Name: m.Description(), Passed: passed, Error: err})

	return passed
}

// Require fails the test unless every matcher passes.
func (tm *TestMachine[T]) Require(matchers ...Matcher) {
	tm.t.Helper()

	for _, m := range matchers {
		passed, err := m.Match(tm.trace)
		tm.assertions = append(tm.assertions, Assertion{Name: m.Description(), Passed: passed, Error: err})
		require.True(tm.t, passed, "%s: %v", m.Description(), err)
	}
}

// AssertCurrentState checks the active state.
func (tm *TestMachine[T]) AssertCurrentState(expected T) {
	tm.t.Helper()

	actual := tm.CurrentState()

	assertion := Assertion{
		Name:   fmt.Sprintf("Current state is '%s'", expected),
		Passed: actual == expected,
	}

	if actual != expected {
		assertion.Error = fmt.Errorf("%w: expected '%s', got '%s'", ErrWrongState, expected, actual)
	}

	tm.assertions = append(tm.assertions, assertion)
	require.Equal(tm.t, expected, actual, "current state should be '%s'", expected)
}

// AssertStateVisited checks that a state was entered.
func (tm *TestMachine[T]) AssertStateVisited(state T) {
	tm.t.Helper()
	tm.Require(StateWasVisited(state.String()))
}

// AssertTransitionTaken checks that a switch from -> to completed.
func (tm *TestMachine[T]) AssertTransitionTaken(from, to T) {
	tm.t.Helper()
	tm.Require(TransitionWasTaken(from.String(), to.String()))
}

// AssertChangeCount checks the number of completed switches, the first
// switch included.
func (tm *TestMachine[T]) AssertChangeCount(expected int) {
	tm.t.Helper()
	tm.Require(ChangeCount(expected))
}

// AssertChanging checks whether a delayed switch is pending.
func (tm *TestMachine[T]) AssertChanging(expected bool) {
	tm.t.Helper()

	require.Equal(tm.t, expected, tm.IsChangingState(), "changing state flag")
}

// GetTrace returns the signal trace for inspection.
func (tm *TestMachine[T]) GetTrace() Trace {
	return append(Trace(nil), tm.trace...)
}

// GetAssertions returns all assertions made.
func (tm *TestMachine[T]) GetAssertions() []Assertion {
	return tm.assertions
}

// ResetTrace forgets the recorded signals.
func (tm *TestMachine[T]) ResetTrace() {
	tm.trace = nil
}
