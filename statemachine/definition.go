package statemachine

import (
	"slices"
	"time"

	"facette.io/natsort"
)

// Definition is a static description of a machine: its enumeration, default
// state and transition table. It is what the visualizer and validator read,
// whether it came from a live Core or a Config.
type Definition struct {
	Name        string
	States      []string
	Default     string
	Transitions []TransitionDefinition
}

// TransitionDefinition describes one table entry. From is empty for
// any-state transitions. Guard is the guard key.
type TransitionDefinition struct {
	ID       string
	From     string
	To       string
	AnyState bool
	Guard    string
	Delay    time.Duration
}

// AnyStateTransitions returns the any-state entries.
func (d Definition) AnyStateTransitions() []TransitionDefinition {
	var out []TransitionDefinition

	for _, t := range d.Transitions {
		if t.AnyState {
			out = append(out, t)
		}
	}

	return out
}

// DirectTransitions returns the direct entries.
func (d Definition) DirectTransitions() []TransitionDefinition {
	var out []TransitionDefinition

	for _, t := range d.Transitions {
		if !t.AnyState {
			out = append(out, t)
		}
	}

	return out
}

// HasState reports whether name is one of the declared states.
func (d Definition) HasState(name string) bool {
	return slices.Contains(d.States, name)
}

// sortDirect orders direct transitions by natural id order, so "2|10" sorts
// after "2|9".
func sortDirect(defs []TransitionDefinition) []TransitionDefinition {
	slices.SortStableFunc(defs, func(a, b TransitionDefinition) int {
		switch {
		case natsort.Compare(a.ID, b.ID):
			return -1
		case natsort.Compare(b.ID, a.ID):
			return 1
		default:
			return 0
		}
	})

	return defs
}
