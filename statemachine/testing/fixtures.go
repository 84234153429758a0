// Package testing provides test utilities for machines built on the
// statemachine package: a controllable clock, recording states, a signal
// trace with matchers and declarative tick scenarios.
//
//nolint:gosec,mnd // Test fixtures with safe file permissions; file mode constants
package testing

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amp-labs/automachine/statemachine"
)

// FakeClock is a statemachine.Clock that only moves when told to.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at a fixed instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t
}

// Lifecycle hook names recorded by RecordingState.
const (
	CallInitialize = "initialize"
	CallStart      = "start"
	CallTick       = "tick"
	CallFixedTick  = "fixed_tick"
	CallLateTick   = "late_tick"
	CallDispose    = "dispose"
)

// RecordingState is a State that records every lifecycle call it receives.
type RecordingState[T statemachine.Enum] struct {
	statemachine.BaseState[T]

	calls []string
}

// NewRecordingState creates a recording state for value.
func NewRecordingState[T statemachine.Enum](value T) *RecordingState[T] {
	return &RecordingState[T]{BaseState: statemachine.NewBaseState(value)}
}

func (s *RecordingState[T]) Initialize(*statemachine.Core[T]) { s.record(CallInitialize) }

func (s *RecordingState[T]) StartState(context.Context) { s.record(CallStart) }

func (s *RecordingState[T]) Tick(context.Context) { s.record(CallTick) }

func (s *RecordingState[T]) FixedTick(context.Context) { s.record(CallFixedTick) }

func (s *RecordingState[T]) LateTick(context.Context) { s.record(CallLateTick) }

func (s *RecordingState[T]) Dispose(context.Context) { s.record(CallDispose) }

// Calls returns the recorded hook names in call order.
func (s *RecordingState[T]) Calls() []string {
	return append([]string(nil), s.calls...)
}

// Count returns how many times hook was called.
func (s *RecordingState[T]) Count(hook string) int {
	n := 0

	for _, call := range s.calls {
		if call == hook {
			n++
		}
	}

	return n
}

// Reset forgets the recorded calls.
func (s *RecordingState[T]) Reset() { s.calls = nil }

func (s *RecordingState[T]) record(hook string) {
	s.calls = append(s.calls, hook)
}

// LoadTestConfig loads a config from the testdata directory.
func LoadTestConfig(name string) (*statemachine.Config, error) {
	path := filepath.Join("testdata", name)

	return statemachine.LoadConfig(path)
}

// WriteConfigFile marshals config into dir/name, picking the format from
// the extension, and returns the path.
func WriteConfigFile(dir, name string, config *statemachine.Config) (string, error) {
	path := filepath.Join(dir, name)

	format, err := statemachine.FormatFromPath(path)
	if err != nil {
		return "", err
	}

	data, err := config.Marshal(format)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}

	return path, nil
}

// CreateTestConfig creates a config with the given states and no transitions.
func CreateTestConfig(name, defaultState string, states ...string) *statemachine.Config {
	return &statemachine.Config{
		Name:         name,
		DefaultState: defaultState,
		States:       states,
	}
}

// CommonTestConfigs provides frequently used machine configs.
var CommonTestConfigs = struct { //nolint:gochecknoglobals
	Enemy   func() *statemachine.Config
	Door    func() *statemachine.Config
	Delayed func() *statemachine.Config
}{
	// Enemy walks while the counter is positive and dies from any state
	// when hp runs out.
	Enemy: func() *statemachine.Config {
		return &statemachine.Config{
			Name:         "enemy",
			DefaultState: "Idle",
			States:       []string{"Idle", "Walking", "Dead"},
			Transitions: []statemachine.TransitionConfig{
				{From: "Idle", To: "Walking", Condition: "data.counter > 0"},
				{From: "Walking", To: "Idle", Condition: "data.counter == 0"},
				{From: "Dead", To: "Idle", Condition: "data.respawn"},
			},
			AnyStateTransitions: []statemachine.AnyStateTransitionConfig{
				{To: "Dead", Condition: "data.hp <= 0"},
			},
		}
	},
	// Door toggles on the push flag.
	Door: func() *statemachine.Config {
		return &statemachine.Config{
			Name:         "door",
			DefaultState: "Closed",
			States:       []string{"Closed", "Open"},
			Transitions: []statemachine.TransitionConfig{
				{From: "Closed", To: "Open", Condition: "data.push"},
				{From: "Open", To: "Closed", Condition: "!data.push"},
			},
		}
	},
	// Delayed recovers from Stunned two seconds after it is entered.
	Delayed: func() *statemachine.Config {
		return &statemachine.Config{
			Name:         "delayed",
			DefaultState: "Ready",
			States:       []string{"Ready", "Stunned"},
			Transitions: []statemachine.TransitionConfig{
				{From: "Ready", To: "Stunned", Condition: "data.hit"},
				{From: "Stunned", To: "Ready", Condition: "always", Delay: "2s"},
			},
		}
	},
}
