package validator

import (
	"errors"
	"fmt"
	"slices"

	"github.com/amp-labs/automachine/statemachine"
)

var (
	// ErrTransitionExists is returned when attempting to add a transition that already exists.
	ErrTransitionExists = errors.New("transition already exists")
	// ErrTransitionNotFound is returned when attempting to remove a transition that doesn't exist.
	ErrTransitionNotFound = errors.New("transition not found")
	// ErrStateNotFound is returned when attempting to remove a state that doesn't exist.
	ErrStateNotFound = errors.New("state not found")
	// ErrDuplicateNotFound is returned when attempting to remove a duplicate that doesn't exist.
	ErrDuplicateNotFound = errors.New("duplicate not found")
	// ErrStateAlreadyExists is returned when attempting to rename to an existing state name.
	ErrStateAlreadyExists = errors.New("state already exists")
)

// Fix represents an automatic fix for a validation error.
type Fix struct {
	Description string
	Apply       func(config *statemachine.Config) error
}

// AddMissingTransition creates a fix that adds an unconditional transition between states.
func AddMissingTransition(from, to string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Add transition from '%s' to '%s'", from, to),
		Apply: func(config *statemachine.Config) error {
			for _, t := range config.Transitions {
				if t.From == from && t.To == to {
					return ErrTransitionExists
				}
			}

			config.Transitions = append(config.Transitions, statemachine.TransitionConfig{
				From:      from,
				To:        to,
				Condition: statemachine.AlwaysKey,
			})

			return nil
		},
	}
}

// RemoveTransition creates a fix that removes every direct transition from -> to.
func RemoveTransition(from, to string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Remove transition from '%s' to '%s'", from, to),
		Apply: func(config *statemachine.Config) error {
			before := len(config.Transitions)

			config.Transitions = slices.DeleteFunc(config.Transitions, func(t statemachine.TransitionConfig) bool {
				return t.From == from && t.To == to
			})

			if len(config.Transitions) == before {
				return fmt.Errorf("%w: '%s' -> '%s'", ErrTransitionNotFound, from, to)
			}

			return nil
		},
	}
}

// RemoveUnreachableState creates a fix that removes a state and every
// transition touching it.
func RemoveUnreachableState(stateName string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Remove unreachable state '%s'", stateName),
		Apply: func(config *statemachine.Config) error {
			if !slices.Contains(config.States, stateName) {
				return fmt.Errorf("%w: '%s'", ErrStateNotFound, stateName)
			}

			config.States = slices.DeleteFunc(config.States, func(s string) bool { return s == stateName })

			config.Transitions = slices.DeleteFunc(config.Transitions, func(t statemachine.TransitionConfig) bool {
				return t.From == stateName || t.To == stateName
			})

			config.AnyStateTransitions = slices.DeleteFunc(config.AnyStateTransitions,
				func(t statemachine.AnyStateTransitionConfig) bool { return t.To == stateName })

			if config.DefaultState == stateName {
				config.DefaultState = ""
			}

			return nil
		},
	}
}

// RenameState creates a fix that renames a state everywhere it is referenced.
func RenameState(oldName, newName string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Rename state from '%s' to '%s'", oldName, newName),
		Apply: func(config *statemachine.Config) error {
			if slices.Contains(config.States, newName) {
				return fmt.Errorf("%w: '%s'", ErrStateAlreadyExists, newName)
			}

			i := slices.Index(config.States, oldName)
			if i < 0 {
				return fmt.Errorf("%w: '%s'", ErrStateNotFound, oldName)
			}

			config.States[i] = newName

			if config.DefaultState == oldName {
				config.DefaultState = newName
			}

			for i, t := range config.Transitions {
				if t.From == oldName {
					config.Transitions[i].From = newName
				}

				if t.To == oldName {
					config.Transitions[i].To = newName
				}
			}

			for i, t := range config.AnyStateTransitions {
				if t.To == oldName {
					config.AnyStateTransitions[i].To = newName
				}
			}

			return nil
		},
	}
}

// SetDefaultState creates a fix that replaces the default state.
func SetDefaultState(stateName string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Use '%s' as the default state", stateName),
		Apply: func(config *statemachine.Config) error {
			if !slices.Contains(config.States, stateName) {
				return fmt.Errorf("%w: '%s'", ErrStateNotFound, stateName)
			}

			config.DefaultState = stateName

			return nil
		},
	}
}

// RemoveDuplicateTransition creates a fix that keeps the first of several
// identical transitions.
func RemoveDuplicateTransition(from, to, condition string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Remove duplicate transition from '%s' to '%s'", from, to),
		Apply: func(config *statemachine.Config) error {
			newTransitions := make([]statemachine.TransitionConfig, 0, len(config.Transitions))
			found := false
			firstOccurrence := true

			for _, t := range config.Transitions {
				if t.From != from || t.To != to || t.Condition != condition {
					newTransitions = append(newTransitions, t)

					continue
				}

				if firstOccurrence {
					newTransitions = append(newTransitions, t)
					firstOccurrence = false
				} else {
					found = true
				}
			}

			if !found {
				return ErrDuplicateNotFound
			}

			config.Transitions = newTransitions

			return nil
		},
	}
}

// ApplyFixes applies a list of fixes to a config.
func ApplyFixes(config *statemachine.Config, fixes []*Fix) error {
	for _, fix := range fixes {
		if fix != nil && fix.Apply != nil {
			err := fix.Apply(config)
			if err != nil {
				return fmt.Errorf("failed to apply fix '%s': %w", fix.Description, err)
			}
		}
	}

	return nil
}

// Fixes collects the fixes attached to the errors of r.
func (r ValidationResult) Fixes() []*Fix {
	var fixes []*Fix

	for _, err := range r.Errors {
		if err.Fix != nil {
			fixes = append(fixes, err.Fix)
		}
	}

	return fixes
}
