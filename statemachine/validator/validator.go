// Package validator checks declarative machine configurations and reports
// structured errors, warnings and suggestions.
package validator

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/amp-labs/automachine/statemachine"
)

// ValidationResult contains the results of validating a machine config.
type ValidationResult struct {
	Valid       bool
	Errors      []ValidationError
	Warnings    []ValidationWarning
	Suggestions []Suggestion
}

// ValidationError represents a validation error with fix suggestions.
type ValidationError struct {
	Code     string   // Error code like "UNKNOWN_STATE", "SELF_TRANSITION"
	Message  string   // Human-readable error message
	Location Location // Where the error occurred
	Fix      *Fix     // Optional auto-fix suggestion
}

// ValidationWarning represents a non-critical issue.
type ValidationWarning struct {
	Code     string
	Message  string
	Location Location
}

// Suggestion provides improvement recommendations.
type Suggestion struct {
	Message string
	Example string
}

// Location identifies where an issue occurred. Line is the 1-based index of
// the offending entry in its list, 0 if not applicable.
type Location struct {
	File  string
	Line  int
	State string
}

// Validate runs the default rules.
func Validate(config *statemachine.Config) ValidationResult {
	return ValidateWithRules(config, DefaultRules())
}

// ValidateFile loads a config from a file and validates it.
func ValidateFile(path string) (ValidationResult, error) {
	return ValidateFileWithOptions(path, false)
}

// ValidateFileStrict loads a config from a file and validates it in strict mode.
func ValidateFileStrict(path string) (ValidationResult, error) {
	return ValidateFileWithOptions(path, true)
}

// ValidateFileWithOptions decodes a config file without the loader's own
// validation, so every problem is reported through the rules.
func ValidateFileWithOptions(path string, strict bool) (ValidationResult, error) {
	config, err := decodeFile(path)
	if err != nil {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Code:     "CONFIG_LOAD_FAILED",
					Message:  fmt.Sprintf("Failed to load config: %v", err),
					Location: Location{File: path},
				},
			},
		}, err
	}

	var result ValidationResult
	if strict {
		result = ValidateWithRulesStrict(config, DefaultRules())
	} else {
		result = Validate(config)
	}

	for i := range result.Errors {
		if result.Errors[i].Location.File == "" {
			result.Errors[i].Location.File = path
		}
	}

	for i := range result.Warnings {
		if result.Warnings[i].Location.File == "" {
			result.Warnings[i].Location.File = path
		}
	}

	return result, nil
}

// ValidateWithRules validates using custom rules. Registered rules run after
// the given ones.
func ValidateWithRules(config *statemachine.Config, rules []Rule) ValidationResult {
	var result ValidationResult

	if config == nil {
		return ValidationResult{
			Errors: []ValidationError{{Code: "CONFIG_NIL", Message: "config is nil"}},
		}
	}

	result.Valid = true

	for _, rule := range slices.Concat(rules, RegisteredRules) {
		ruleResult := rule.Check(config)
		result.Errors = append(result.Errors, ruleResult.Errors...)
		result.Warnings = append(result.Warnings, ruleResult.Warnings...)
	}

	if len(result.Errors) > 0 {
		result.Valid = false
	}

	result.Suggestions = generateSuggestions(config)

	return result
}

// ValidateWithRulesStrict validates with strict mode (treats warnings as errors).
func ValidateWithRulesStrict(config *statemachine.Config, rules []Rule) ValidationResult {
	result := ValidateWithRules(config, rules)

	for _, warning := range result.Warnings {
		result.Errors = append(result.Errors, ValidationError{
			Code:     warning.Code,
			Message:  warning.Message,
			Location: warning.Location,
		})
	}

	result.Warnings = nil

	if len(result.Errors) > 0 {
		result.Valid = false
	}

	return result
}

func generateSuggestions(config *statemachine.Config) []Suggestion {
	var suggestions []Suggestion

	if config.DefaultState == "" && len(config.States) > 1 {
		suggestions = append(suggestions, Suggestion{
			Message: fmt.Sprintf("Declare defaultState; without it the first state ('%s') is entered", config.States[0]),
			Example: "defaultState: " + config.States[0],
		})
	}

	// Several states sharing one destination under one condition collapse
	// into an any-state transition.
	sources := make(map[string]map[string]bool)

	for _, t := range config.Transitions {
		key := t.To + "\x00" + t.Condition
		if sources[key] == nil {
			sources[key] = make(map[string]bool)
		}

		sources[key][t.From] = true
	}

	for _, t := range config.Transitions {
		key := t.To + "\x00" + t.Condition
		if len(sources[key]) < len(config.States)-1 || len(config.States) < 3 {
			continue
		}

		suggestions = append(suggestions, Suggestion{
			Message: fmt.Sprintf("Every state moves to '%s' on the same condition; use an any-state transition", t.To),
			Example: fmt.Sprintf("anyStateTransitions:\n  - to: %s\n    condition: %s", t.To, t.Condition),
		})

		delete(sources, key)
	}

	return suggestions
}

// HasErrors returns true if the result has any errors.
func (r ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if the result has any warnings.
func (r ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Codes returns the error codes followed by the warning codes.
func (r ValidationResult) Codes() []string {
	codes := make([]string, 0, len(r.Errors)+len(r.Warnings))

	for _, e := range r.Errors {
		codes = append(codes, e.Code)
	}

	for _, w := range r.Warnings {
		codes = append(codes, w.Code)
	}

	return codes
}

// String returns a human-readable summary of validation results.
func (r ValidationResult) String() string {
	var sb strings.Builder

	if r.Valid {
		sb.WriteString("✓ Configuration is valid\n")
	} else {
		sb.WriteString(fmt.Sprintf("✗ Configuration has %d error(s)\n", len(r.Errors)))

		for _, err := range r.Errors {
			sb.WriteString(fmt.Sprintf("  [%s] %s", err.Code, err.Message))

			if err.Location.State != "" {
				sb.WriteString(fmt.Sprintf(" (state: %s)", err.Location.State))
			}

			sb.WriteString("\n")

			if err.Fix != nil {
				sb.WriteString(fmt.Sprintf("    Fix: %s\n", err.Fix.Description))
			}
		}
	}

	if len(r.Warnings) > 0 {
		sb.WriteString(fmt.Sprintf("\n⚠ %d warning(s):\n", len(r.Warnings)))

		for _, warn := range r.Warnings {
			sb.WriteString(fmt.Sprintf("  [%s] %s\n", warn.Code, warn.Message))
		}
	}

	if len(r.Suggestions) > 0 {
		sb.WriteString(fmt.Sprintf("\n%d suggestion(s) for improvement:\n", len(r.Suggestions)))

		for _, s := range r.Suggestions {
			sb.WriteString("  - " + s.Message + "\n")
		}
	}

	return sb.String()
}

func decodeFile(path string) (*statemachine.Config, error) {
	format, err := statemachine.FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // Intentional path-based loading
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	return statemachine.DecodeConfig(data, format)
}
