package statemachine

import (
	"errors"
	"fmt"
)

// Predefined error types.
var (
	ErrEmptyEnumeration    = errors.New("enumeration has no values")
	ErrDuplicateStateValue = errors.New("duplicate state value")
	ErrDuplicateStateName  = errors.New("duplicate state name")
	ErrUnknownState        = errors.New("state is not part of the enumeration")

	// ErrNoStates indicates that a core was built without state instances.
	ErrNoStates = errors.New("at least one state instance is required")
	// ErrNilState indicates a nil state instance was registered.
	ErrNilState = errors.New("state instance is nil")
	// ErrDuplicateState indicates two instances were bound to one value.
	ErrDuplicateState = errors.New("more than one instance bound to state")
	// ErrStateNotFound indicates no instance is bound to the target state.
	ErrStateNotFound = errors.New("no instance bound to state")

	// ErrAlreadyInitialized indicates Initialize was called twice.
	ErrAlreadyInitialized = errors.New("machine already initialized")
	// ErrNotInitialized indicates an operation requires Initialize first.
	ErrNotInitialized = errors.New("machine not initialized")
	// ErrDisposed indicates the machine was disposed.
	ErrDisposed = errors.New("machine disposed")
	// ErrStateChangeInProgress indicates a re-entrant switch request. The request is dropped.
	ErrStateChangeInProgress = errors.New("state change already in progress")

	// ErrSelfTransition indicates a transition whose endpoints are equal.
	ErrSelfTransition = errors.New("transition endpoints must differ")
	// ErrNegativeDelay indicates a delay below zero.
	ErrNegativeDelay = errors.New("transition delay must not be negative")
	// ErrNilGuard indicates a guard without a check function.
	ErrNilGuard = errors.New("guard check is nil")
	// ErrDuplicateTransition indicates the same logical transition is already registered.
	ErrDuplicateTransition = errors.New("transition already registered")
	// ErrTransitionConflict indicates the id is taken by a transition with a different guard.
	ErrTransitionConflict = errors.New("transition id already taken by a different guard")
	// ErrTransitionNotFound indicates no transition is registered under the id.
	ErrTransitionNotFound = errors.New("transition not found")
	// ErrInvalidRebind indicates a rebind to a value one endpoint already holds.
	ErrInvalidRebind = errors.New("rebind target equals an existing endpoint")
	// ErrUnknownRebindOption indicates an unsupported rebind option.
	ErrUnknownRebindOption = errors.New("unknown rebind option")

	// ErrInvalidConfig indicates a declarative config failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrConfigNameRequired indicates that a configuration name is required.
	ErrConfigNameRequired = errors.New("config name is required")
	// ErrStateRequired indicates that at least one state is required.
	ErrStateRequired = errors.New("at least one state is required")
	// ErrTransitionFromRequired indicates that a transition from state is required.
	ErrTransitionFromRequired = errors.New("transition from state is required")
	// ErrTransitionToRequired indicates that a transition to state is required.
	ErrTransitionToRequired = errors.New("transition to state is required")
	// ErrInvalidDelay indicates a delay string that does not parse as a duration.
	ErrInvalidDelay = errors.New("invalid transition delay")
	// ErrUnsupportedFormat indicates a config file extension with no decoder.
	ErrUnsupportedFormat = errors.New("unsupported config format")
	// ErrNoConfigLoader indicates that no config loader is registered.
	ErrNoConfigLoader = errors.New("no config loader registered; use SetConfigLoader() or provide a file path")

	// ErrInvalidExpression indicates that an expression is invalid.
	ErrInvalidExpression = errors.New("invalid expression")
	// ErrUnsupportedExpression indicates that an expression is unsupported.
	ErrUnsupportedExpression = errors.New("unsupported expression")
)

// StateError wraps an error with state context.
type StateError struct {
	State string
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state %s: %v", e.State, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// TransitionError wraps an error with transition context.
type TransitionError struct {
	From string
	To   string
	Err  error
}

func (e *TransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("any-state transition -> %s: %v", e.To, e.Err)
	}

	return fmt.Sprintf("transition %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// WrapStateError wraps an error with state context.
func WrapStateError(state string, err error) error {
	if err == nil {
		return nil
	}

	return &StateError{
		State: state,
		Err:   err,
	}
}

// WrapTransitionError wraps an error with transition context. An empty from
// denotes an any-state transition.
func WrapTransitionError(from, to string, err error) error {
	if err == nil {
		return nil
	}

	return &TransitionError{
		From: from,
		To:   to,
		Err:  err,
	}
}

// isDefinitionError reports whether err stems from a broken machine
// definition rather than a request made at the wrong time.
func isDefinitionError(err error) bool {
	return errors.Is(err, ErrStateNotFound) ||
		errors.Is(err, ErrUnknownState) ||
		errors.Is(err, ErrNegativeDelay)
}
