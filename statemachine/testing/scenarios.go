package testing

import (
	"testing"
	"time"

	"github.com/amp-labs/automachine/statemachine"
)

// Step is one stage of a scenario: blackboard writes, then an optional
// clock advance with one tick, then Ticks further ticks.
type Step struct {
	Set     map[string]any
	Advance time.Duration
	Ticks   int
	// Expect is the state the machine must be in after the step, if set.
	Expect string
}

// TestScenario drives a config-built machine through steps and checks the
// resulting trace.
type TestScenario struct {
	Name     string
	Config   *statemachine.Config
	Initial  map[string]any
	Steps    []Step
	Matchers []Matcher
}

// RunScenario executes a test scenario and validates results.
func RunScenario(t *testing.T, scenario TestScenario) {
	t.Helper()
	t.Run(scenario.Name, func(t *testing.T) {
		bb := statemachine.NewBlackboard()
		bb.Merge(scenario.Initial)

		machine := NewConfigMachine(t, scenario.Config, bb)

		for i, step := range scenario.Steps {
			bb.Merge(step.Set)

			if step.Advance > 0 {
				machine.Advance(step.Advance)
			}

			machine.Tick(step.Ticks)

			if step.Expect != "" {
				if actual := machine.CurrentState().String(); actual != step.Expect {
					t.Fatalf("step %d: expected state '%s', got '%s'", i, step.Expect, actual)
				}
			}
		}

		for _, matcher := range scenario.Matchers {
			if passed, err := matcher.Match(machine.GetTrace()); !passed {
				t.Errorf("Assertion failed: %s - %v", matcher.Description(), err)
			}
		}
	})
}

// EnemyPatrolScenario walks, idles and dies.
func EnemyPatrolScenario() TestScenario {
	return TestScenario{
		Name:    "Enemy Patrol",
		Config:  CommonTestConfigs.Enemy(),
		Initial: map[string]any{"counter": 0, "hp": 10},
		Steps: []Step{
			{Ticks: 1, Expect: "Idle"},
			{Set: map[string]any{"counter": 3}, Ticks: 1, Expect: "Walking"},
			{Set: map[string]any{"counter": 0}, Ticks: 1, Expect: "Idle"},
			{Set: map[string]any{"hp": 0}, Ticks: 1, Expect: "Dead"},
			{Ticks: 3, Expect: "Dead"},
		},
		Matchers: []Matcher{
			Initialized("Idle"),
			VisitedInOrder("Idle", "Walking", "Idle", "Dead"),
			TransitionWasTaken("Walking", "Idle"),
			FinalState("Dead"),
			ChangeCount(4),
		},
	}
}

// DoorScenario toggles a door open and closed.
func DoorScenario() TestScenario {
	return TestScenario{
		Name:    "Door",
		Config:  CommonTestConfigs.Door(),
		Initial: map[string]any{"push": false},
		Steps: []Step{
			{Set: map[string]any{"push": true}, Ticks: 1, Expect: "Open"},
			{Ticks: 2, Expect: "Open"},
			{Set: map[string]any{"push": false}, Ticks: 1, Expect: "Closed"},
		},
		Matchers: []Matcher{
			TransitionWasTaken("Closed", "Open"),
			TransitionWasTaken("Open", "Closed"),
			ChangeCount(3),
		},
	}
}

// DelayedRecoveryScenario is stunned and recovers after the configured delay.
func DelayedRecoveryScenario() TestScenario {
	return TestScenario{
		Name:    "Delayed Recovery",
		Config:  CommonTestConfigs.Delayed(),
		Initial: map[string]any{"hit": false},
		Steps: []Step{
			{Set: map[string]any{"hit": true}, Ticks: 1, Expect: "Stunned"},
			{Set: map[string]any{"hit": false}, Ticks: 1, Expect: "Stunned"},
			{Advance: time.Second, Expect: "Stunned"},
			{Advance: time.Second, Expect: "Ready"},
		},
		Matchers: []Matcher{
			VisitedInOrder("Ready", "Stunned", "Ready"),
			TransitionWasTaken("Stunned", "Ready"),
			ChangeCount(3),
		},
	}
}
