//nolint:lll // Long validation messages
package validator

import (
	"fmt"
	"strings"

	"github.com/amp-labs/automachine/statemachine"
)

// Severity defines the severity level of a validation issue.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

// RuleResult contains both errors and warnings from a rule check.
type RuleResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// Rule defines a validation rule that can check a config for specific issues.
type Rule interface {
	Name() string
	Severity() Severity
	Check(config *statemachine.Config) RuleResult
}

// DefaultRules returns the standard set of validation rules.
func DefaultRules() []Rule {
	return []Rule{
		&structureRule{},
		&defaultStateRule{},
		&endpointRule{},
		&selfTransitionRule{},
		&duplicateTransitionRule{},
		&duplicateAnyStateRule{},
		&conditionRule{},
		&delayRule{},
		&unreachableStateRule{},
		&trapStateRule{},
		&unconditionalAnyStateRule{},
		&telemetryRule{},
	}
}

// RegisteredRules stores custom validation rules.
var RegisteredRules []Rule //nolint:gochecknoglobals

// RegisterRule adds a custom validation rule.
func RegisterRule(rule Rule) {
	RegisteredRules = append(RegisteredRules, rule)
}

func stateSet(config *statemachine.Config) map[string]bool {
	known := make(map[string]bool, len(config.States))
	for _, state := range config.States {
		if state != "" {
			known[state] = true
		}
	}

	return known
}

// defaultOf returns the state Initialize would enter.
func defaultOf(config *statemachine.Config) string {
	if config.DefaultState != "" {
		return config.DefaultState
	}

	if len(config.States) > 0 {
		return config.States[0]
	}

	return ""
}

// structureRule checks the machine name and state list.
type structureRule struct{}

func (r *structureRule) Name() string { return "Structure" }

func (r *structureRule) Severity() Severity { return SeverityError }

func (r *structureRule) Check(config *statemachine.Config) RuleResult {
	var errors []ValidationError

	if config.Name == "" {
		errors = append(errors, ValidationError{
			Code:    "NAME_REQUIRED",
			Message: "Machine name is required",
		})
	}

	if len(config.States) == 0 {
		errors = append(errors, ValidationError{
			Code:    "NO_STATES",
			Message: "At least one state is required",
		})
	}

	seen := make(map[string]bool, len(config.States))

	for i, state := range config.States {
		switch {
		case state == "":
			errors = append(errors, ValidationError{
				Code:     "EMPTY_STATE_NAME",
				Message:  fmt.Sprintf("State %d has an empty name", i),
				Location: Location{Line: i + 1},
			})
		case seen[state]:
			errors = append(errors, ValidationError{
				Code:     "DUPLICATE_STATE",
				Message:  fmt.Sprintf("State '%s' is declared more than once", state),
				Location: Location{Line: i + 1, State: state},
			})
		}

		seen[state] = true
	}

	return RuleResult{Errors: errors}
}

// defaultStateRule checks that the declared default state exists.
type defaultStateRule struct{}

func (r *defaultStateRule) Name() string { return "DefaultState" }

func (r *defaultStateRule) Severity() Severity { return SeverityError }

func (r *defaultStateRule) Check(config *statemachine.Config) RuleResult {
	if config.DefaultState == "" || stateSet(config)[config.DefaultState] {
		return RuleResult{}
	}

	err := ValidationError{
		Code:     "DEFAULT_STATE_UNKNOWN",
		Message:  fmt.Sprintf("Default state '%s' is not a declared state", config.DefaultState),
		Location: Location{State: config.DefaultState},
	}

	if len(config.States) > 0 {
		err.Fix = SetDefaultState(config.States[0])
	}

	return RuleResult{Errors: []ValidationError{err}}
}

// endpointRule checks that every transition names declared states.
type endpointRule struct{}

func (r *endpointRule) Name() string { return "Endpoint" }

func (r *endpointRule) Severity() Severity { return SeverityError }

func (r *endpointRule) Check(config *statemachine.Config) RuleResult {
	var errors []ValidationError

	known := stateSet(config)

	check := func(role, state string, line int, anyState bool) {
		kind := "Transition"
		if anyState {
			kind = "Any-state transition"
		}

		switch {
		case state == "":
			errors = append(errors, ValidationError{
				Code:     "MISSING_ENDPOINT",
				Message:  fmt.Sprintf("%s %d has no '%s' state", kind, line, role),
				Location: Location{Line: line},
			})
		case !known[state]:
			errors = append(errors, ValidationError{
				Code:     "UNKNOWN_STATE",
				Message:  fmt.Sprintf("%s %d references undeclared state '%s' as '%s'", kind, line, state, role),
				Location: Location{Line: line, State: state},
			})
		}
	}

	for i, t := range config.Transitions {
		check("from", t.From, i+1, false)
		check("to", t.To, i+1, false)
	}

	for i, t := range config.AnyStateTransitions {
		check("to", t.To, i+1, true)
	}

	return RuleResult{Errors: errors}
}

// selfTransitionRule rejects transitions whose endpoints are equal.
type selfTransitionRule struct{}

func (r *selfTransitionRule) Name() string { return "SelfTransition" }

func (r *selfTransitionRule) Severity() Severity { return SeverityError }

func (r *selfTransitionRule) Check(config *statemachine.Config) RuleResult {
	var errors []ValidationError

	for i, t := range config.Transitions {
		if t.From == "" || t.From != t.To {
			continue
		}

		errors = append(errors, ValidationError{
			Code:     "SELF_TRANSITION",
			Message:  fmt.Sprintf("Transition %d loops from '%s' to itself", i+1, t.From),
			Location: Location{Line: i + 1, State: t.From},
			Fix:      RemoveTransition(t.From, t.To),
		})
	}

	return RuleResult{Errors: errors}
}

// duplicateTransitionRule checks for direct transitions sharing a state pair.
type duplicateTransitionRule struct{}

func (r *duplicateTransitionRule) Name() string { return "DuplicateTransition" }

func (r *duplicateTransitionRule) Severity() Severity { return SeverityError }

func (r *duplicateTransitionRule) Check(config *statemachine.Config) RuleResult {
	var errors []ValidationError

	scratch := statemachine.NewBlackboard()
	seen := make(map[string]string)

	for i, t := range config.Transitions {
		pair := t.From + "\x00" + t.To

		previous, dup := seen[pair]
		if !dup {
			seen[pair] = t.Condition

			continue
		}

		if sameCondition(scratch, previous, t.Condition) {
			errors = append(errors, ValidationError{
				Code:     "DUPLICATE_TRANSITION",
				Message:  fmt.Sprintf("Duplicate transition from '%s' to '%s' with condition '%s'", t.From, t.To, t.Condition),
				Location: Location{Line: i + 1, State: t.From},
				Fix:      RemoveDuplicateTransition(t.From, t.To, t.Condition),
			})

			continue
		}

		errors = append(errors, ValidationError{
			Code:     "TRANSITION_CONFLICT",
			Message:  fmt.Sprintf("Transition from '%s' to '%s' is declared twice with different conditions ('%s', '%s'); combine them into one condition", t.From, t.To, previous, t.Condition),
			Location: Location{Line: i + 1, State: t.From},
		})
	}

	return RuleResult{Errors: errors}
}

// duplicateAnyStateRule allows one any-state transition per destination.
type duplicateAnyStateRule struct{}

func (r *duplicateAnyStateRule) Name() string { return "DuplicateAnyState" }

func (r *duplicateAnyStateRule) Severity() Severity { return SeverityError }

func (r *duplicateAnyStateRule) Check(config *statemachine.Config) RuleResult {
	var errors []ValidationError

	scratch := statemachine.NewBlackboard()
	seen := make(map[string]string)

	for i, t := range config.AnyStateTransitions {
		previous, dup := seen[t.To]
		if !dup {
			seen[t.To] = t.Condition

			continue
		}

		code := "ANY_STATE_CONFLICT"
		if sameCondition(scratch, previous, t.Condition) {
			code = "DUPLICATE_ANY_STATE"
		}

		errors = append(errors, ValidationError{
			Code:     code,
			Message:  fmt.Sprintf("More than one any-state transition targets '%s'", t.To),
			Location: Location{Line: i + 1, State: t.To},
		})
	}

	return RuleResult{Errors: errors}
}

func sameCondition(scratch *statemachine.Blackboard, a, b string) bool {
	ga, errA := statemachine.ExpressionGuard(scratch, a)
	gb, errB := statemachine.ExpressionGuard(scratch, b)

	if errA != nil || errB != nil {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}

	return ga.Equals(gb)
}

// conditionRule compiles every condition.
type conditionRule struct{}

func (r *conditionRule) Name() string { return "Condition" }

func (r *conditionRule) Severity() Severity { return SeverityError }

func (r *conditionRule) Check(config *statemachine.Config) RuleResult {
	var errors []ValidationError

	scratch := statemachine.NewBlackboard()

	check := func(condition, state string, line int) {
		if _, err := statemachine.ExpressionGuard(scratch, condition); err != nil {
			errors = append(errors, ValidationError{
				Code:     "INVALID_CONDITION",
				Message:  fmt.Sprintf("Condition '%s' does not compile: %v", condition, err),
				Location: Location{Line: line, State: state},
			})
		}
	}

	for i, t := range config.Transitions {
		check(t.Condition, t.From, i+1)
	}

	for i, t := range config.AnyStateTransitions {
		check(t.Condition, t.To, i+1)
	}

	return RuleResult{Errors: errors}
}

// delayRule parses every delay.
type delayRule struct{}

func (r *delayRule) Name() string { return "Delay" }

func (r *delayRule) Severity() Severity { return SeverityError }

func (r *delayRule) Check(config *statemachine.Config) RuleResult {
	var errors []ValidationError

	check := func(delay, state string, line int) {
		if _, err := statemachine.ParseDelay(delay); err != nil {
			errors = append(errors, ValidationError{
				Code:     "INVALID_DELAY",
				Message:  fmt.Sprintf("Delay '%s' is invalid: %v", delay, err),
				Location: Location{Line: line, State: state},
			})
		}
	}

	for i, t := range config.Transitions {
		check(t.Delay, t.From, i+1)
	}

	for i, t := range config.AnyStateTransitions {
		check(t.Delay, t.To, i+1)
	}

	return RuleResult{Errors: errors}
}

// unreachableStateRule warns about states that cannot be entered from the
// default state. Any-state targets are reachable from every other state.
type unreachableStateRule struct{}

func (r *unreachableStateRule) Name() string { return "UnreachableState" }

func (r *unreachableStateRule) Severity() Severity { return SeverityWarning }

func (r *unreachableStateRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	start := defaultOf(config)
	if start == "" {
		return RuleResult{}
	}

	reachable := reachableStates(config, start)

	for _, state := range config.States {
		if state == "" || reachable[state] {
			continue
		}

		warnings = append(warnings, ValidationWarning{
			Code:     "UNREACHABLE_STATE",
			Message:  fmt.Sprintf("State '%s' cannot be reached from default state '%s'", state, start),
			Location: Location{State: state},
		})
	}

	return RuleResult{Warnings: warnings}
}

func reachableStates(config *statemachine.Config, start string) map[string]bool {
	reachable := map[string]bool{start: true}

	// Entering start from nowhere is enough for every any-state target but start.
	for _, t := range config.AnyStateTransitions {
		reachable[t.To] = true
	}

	queue := make([]string, 0, len(reachable))
	for state := range reachable {
		queue = append(queue, state)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, t := range config.Transitions {
			if t.From == current && !reachable[t.To] {
				reachable[t.To] = true
				queue = append(queue, t.To)
			}
		}
	}

	return reachable
}

// trapStateRule warns about states the machine can never leave.
type trapStateRule struct{}

func (r *trapStateRule) Name() string { return "TrapState" }

func (r *trapStateRule) Severity() Severity { return SeverityWarning }

func (r *trapStateRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	hasOutgoing := make(map[string]bool)
	for _, t := range config.Transitions {
		hasOutgoing[t.From] = true
	}

	for _, state := range config.States {
		if state == "" || hasOutgoing[state] || leftByAnyState(config, state) {
			continue
		}

		warnings = append(warnings, ValidationWarning{
			Code:     "TRAP_STATE",
			Message:  fmt.Sprintf("State '%s' has no outgoing transition; only the host can leave it", state),
			Location: Location{State: state},
		})
	}

	return RuleResult{Warnings: warnings}
}

func leftByAnyState(config *statemachine.Config, state string) bool {
	for _, t := range config.AnyStateTransitions {
		if t.To != state {
			return true
		}
	}

	return false
}

// unconditionalAnyStateRule warns about any-state transitions without a
// condition: they fire on the first tick in every other state.
type unconditionalAnyStateRule struct{}

func (r *unconditionalAnyStateRule) Name() string { return "UnconditionalAnyState" }

func (r *unconditionalAnyStateRule) Severity() Severity { return SeverityWarning }

func (r *unconditionalAnyStateRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	for i, t := range config.AnyStateTransitions {
		condition := strings.TrimSpace(t.Condition)
		if condition != "" && condition != statemachine.AlwaysKey {
			continue
		}

		warnings = append(warnings, ValidationWarning{
			Code:     "MISSING_CONDITION",
			Message:  fmt.Sprintf("Any-state transition to '%s' has no condition and fires from every other state on every tick", t.To),
			Location: Location{Line: i + 1, State: t.To},
		})
	}

	return RuleResult{Warnings: warnings}
}
