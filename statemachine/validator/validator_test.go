//nolint:varnamelen // Test file
package validator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amp-labs/automachine/statemachine"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enemyConfig() *statemachine.Config {
	return &statemachine.Config{
		Name:         "enemy",
		DefaultState: "Idle",
		States:       []string{"Idle", "Walking", "Dead"},
		Transitions: []statemachine.TransitionConfig{
			{From: "Idle", To: "Walking", Condition: "data.counter > 0"},
			{From: "Walking", To: "Idle", Condition: "data.counter == 0", Delay: "1s"},
			{From: "Dead", To: "Idle", Condition: "data.respawn"},
		},
		AnyStateTransitions: []statemachine.AnyStateTransitionConfig{
			{To: "Dead", Condition: "data.hp <= 0"},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		mutate       func(c *statemachine.Config)
		wantValid    bool
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name:      "valid enemy",
			mutate:    func(*statemachine.Config) {},
			wantValid: true,
		},
		{
			name: "structure",
			mutate: func(c *statemachine.Config) {
				c.Name = ""
				c.States = append(c.States, "Idle", "")
			},
			wantErrors: []string{"NAME_REQUIRED", "DUPLICATE_STATE", "EMPTY_STATE_NAME"},
		},
		{
			name:       "unknown default",
			mutate:     func(c *statemachine.Config) { c.DefaultState = "Sleeping" },
			wantErrors: []string{"DEFAULT_STATE_UNKNOWN"},
		},
		{
			name: "endpoints",
			mutate: func(c *statemachine.Config) {
				c.Transitions = append(c.Transitions,
					statemachine.TransitionConfig{From: "Idle", To: "Running"},
					statemachine.TransitionConfig{To: "Dead"},
				)
				c.AnyStateTransitions = append(c.AnyStateTransitions,
					statemachine.AnyStateTransitionConfig{To: "Ghost", Condition: "data.haunted"})
			},
			wantErrors: []string{"UNKNOWN_STATE", "MISSING_ENDPOINT"},
		},
		{
			name: "self transition",
			mutate: func(c *statemachine.Config) {
				c.Transitions = append(c.Transitions, statemachine.TransitionConfig{From: "Dead", To: "Dead"})
			},
			wantErrors: []string{"SELF_TRANSITION"},
		},
		{
			name: "duplicates and conflicts",
			mutate: func(c *statemachine.Config) {
				c.Transitions = append(c.Transitions,
					statemachine.TransitionConfig{From: "Idle", To: "Walking", Condition: "data.counter  >  0"},
					statemachine.TransitionConfig{From: "Walking", To: "Idle", Condition: "data.tired"},
				)
				c.AnyStateTransitions = append(c.AnyStateTransitions,
					statemachine.AnyStateTransitionConfig{To: "Dead", Condition: "data.hp <= 0"},
					statemachine.AnyStateTransitionConfig{To: "Dead", Condition: "data.hp < 1"},
				)
			},
			wantErrors: []string{"DUPLICATE_TRANSITION", "TRANSITION_CONFLICT", "DUPLICATE_ANY_STATE", "ANY_STATE_CONFLICT"},
		},
		{
			name: "conditions and delays",
			mutate: func(c *statemachine.Config) {
				c.Transitions[0].Condition = "counter > 0"
				c.Transitions[1].Delay = "soon"
				c.AnyStateTransitions[0].Delay = "-1"
			},
			wantErrors: []string{"INVALID_CONDITION", "INVALID_DELAY"},
		},
		{
			name: "unreachable and trap",
			mutate: func(c *statemachine.Config) {
				c.States = append(c.States, "Sleeping")
				c.AnyStateTransitions = nil
			},
			wantValid:    true,
			wantWarnings: []string{"UNREACHABLE_STATE", "TRAP_STATE"},
		},
		{
			name: "unconditional any-state",
			mutate: func(c *statemachine.Config) {
				c.AnyStateTransitions[0].Condition = ""
			},
			wantValid:    true,
			wantWarnings: []string{"MISSING_CONDITION"},
		},
		{
			name: "label naming",
			mutate: func(c *statemachine.Config) {
				c.Name = "enemy ai"
			},
			wantValid:    true,
			wantWarnings: []string{"OTEL_MACHINE_NAMING"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			config := enemyConfig()
			tt.mutate(config)

			result := Validate(config)

			assert.Equal(t, tt.wantValid, result.Valid, result.String())

			codes := result.Codes()
			for _, want := range append(tt.wantErrors, tt.wantWarnings...) {
				assert.Contains(t, codes, want)
			}

			if tt.wantValid && len(tt.wantWarnings) == 0 {
				assert.Empty(t, codes)
			}
		})
	}
}

func TestValidate_AgreesWithConfigValidate(t *testing.T) {
	t.Parallel()

	config := enemyConfig()
	require.NoError(t, config.Validate())
	assert.True(t, Validate(config).Valid)

	config.Transitions = append(config.Transitions, statemachine.TransitionConfig{From: "Idle", To: "Idle"})
	require.Error(t, config.Validate())
	assert.False(t, Validate(config).Valid)
}

func TestValidate_Nil(t *testing.T) {
	t.Parallel()

	result := Validate(nil)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"CONFIG_NIL"}, result.Codes())
}

func TestValidateWithRulesStrict(t *testing.T) {
	t.Parallel()

	config := enemyConfig()
	config.States = append(config.States, "Sleeping")

	result := ValidateWithRulesStrict(config, DefaultRules())

	assert.False(t, result.Valid)
	assert.False(t, result.HasWarnings())
	assert.True(t, result.HasErrors())
	assert.Contains(t, result.Codes(), "UNREACHABLE_STATE")
}

func TestUnreachableStateRule_AnyStateTargets(t *testing.T) {
	t.Parallel()

	config := &statemachine.Config{
		Name:   "test",
		States: []string{"A", "B", "C"},
		AnyStateTransitions: []statemachine.AnyStateTransitionConfig{
			{To: "B", Condition: "data.go"},
		},
		Transitions: []statemachine.TransitionConfig{
			{From: "B", To: "C", Condition: "data.next"},
		},
	}

	result := (&unreachableStateRule{}).Check(config)
	assert.Empty(t, result.Warnings, "B via any-state, C via B")

	trap := (&trapStateRule{}).Check(config)
	assert.Empty(t, trap.Warnings, "the any-state transition leaves A and C")
}

type forbidDead struct{}

func (forbidDead) Name() string { return "ForbidDead" }

func (forbidDead) Severity() Severity { return SeverityError }

func (forbidDead) Check(config *statemachine.Config) RuleResult {
	for _, s := range config.States {
		if s == "Dead" {
			return RuleResult{Errors: []ValidationError{{Code: "NO_DEATH", Message: "immortal enemies only"}}}
		}
	}

	return RuleResult{}
}

//nolint:paralleltest // mutates RegisteredRules
func TestRegisterRule(t *testing.T) {
	saved := RegisteredRules

	t.Cleanup(func() { RegisteredRules = saved })

	RegisterRule(forbidDead{})

	result := Validate(enemyConfig())
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"NO_DEATH"}, result.Codes())
}

func TestValidateFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	good := filepath.Join(dir, "enemy.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
name: enemy
states: [Idle, Walking]
transitions:
  - from: Idle
    to: Walking
    condition: data.go
  - from: Walking
    to: Idle
    condition: "!data.go"
`), 0o600))

	result, err := ValidateFile(good)
	require.NoError(t, err)
	assert.True(t, result.Valid, result.String())
	require.Len(t, result.Suggestions, 1, "no defaultState declared")

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte(`
name = "bad"
states = ["A", "B", "Z"]

[[transitions]]
from = "A"
to = "A"
`), 0o600))

	result, err = ValidateFileStrict(bad)
	require.NoError(t, err)
	assert.False(t, result.Valid)

	for _, e := range result.Errors {
		assert.Equal(t, bad, e.Location.File)
	}

	assert.Contains(t, result.Codes(), "SELF_TRANSITION")
	assert.Contains(t, result.Codes(), "TRAP_STATE")

	result, err = ValidateFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, []string{"CONFIG_LOAD_FAILED"}, result.Codes())

	_, err = ValidateFile(filepath.Join(dir, "enemy.xml"))
	require.ErrorIs(t, err, statemachine.ErrUnsupportedFormat)
}

func TestSuggestions_AnyState(t *testing.T) {
	t.Parallel()

	config := enemyConfig()
	config.AnyStateTransitions = nil
	config.Transitions = append(config.Transitions,
		statemachine.TransitionConfig{From: "Idle", To: "Dead", Condition: "data.hp <= 0"},
		statemachine.TransitionConfig{From: "Walking", To: "Dead", Condition: "data.hp <= 0"},
	)

	result := Validate(config)
	require.Len(t, result.Suggestions, 1)
	assert.Contains(t, result.Suggestions[0].Message, "any-state")
	assert.Contains(t, result.Suggestions[0].Example, "to: Dead")
}

func TestFixes(t *testing.T) {
	t.Parallel()

	config := enemyConfig()
	config.DefaultState = "Sleeping"
	config.Transitions = append(config.Transitions,
		statemachine.TransitionConfig{From: "Dead", To: "Dead"},
		statemachine.TransitionConfig{From: "Idle", To: "Walking", Condition: "data.counter > 0"},
	)

	result := Validate(config)
	require.False(t, result.Valid)
	require.Len(t, result.Fixes(), 3)

	require.NoError(t, ApplyFixes(config, result.Fixes()))

	if diff := cmp.Diff(enemyConfig(), config); diff != "" {
		t.Errorf("fixed config mismatch (-want +got):\n%s", diff)
	}

	assert.True(t, Validate(config).Valid)
}

func TestFixers(t *testing.T) {
	t.Parallel()

	t.Run("rename", func(t *testing.T) {
		t.Parallel()

		config := enemyConfig()
		require.NoError(t, RenameState("Dead", "Defeated").Apply(config))

		assert.Equal(t, []string{"Idle", "Walking", "Defeated"}, config.States)
		assert.Equal(t, "Defeated", config.AnyStateTransitions[0].To)

		require.ErrorIs(t, RenameState("Idle", "Walking").Apply(config), ErrStateAlreadyExists)
		require.ErrorIs(t, RenameState("Dead", "Gone").Apply(config), ErrStateNotFound)
	})

	t.Run("remove state", func(t *testing.T) {
		t.Parallel()

		config := enemyConfig()
		require.NoError(t, RemoveUnreachableState("Idle").Apply(config))

		assert.Equal(t, []string{"Walking", "Dead"}, config.States)
		assert.Empty(t, config.Transitions)
		assert.Empty(t, config.DefaultState)
		assert.Len(t, config.AnyStateTransitions, 1)

		require.ErrorIs(t, RemoveUnreachableState("Idle").Apply(config), ErrStateNotFound)
	})

	t.Run("add transition", func(t *testing.T) {
		t.Parallel()

		config := enemyConfig()
		require.NoError(t, AddMissingTransition("Walking", "Dead").Apply(config))
		require.ErrorIs(t, AddMissingTransition("Walking", "Dead").Apply(config), ErrTransitionExists)

		last := config.Transitions[len(config.Transitions)-1]
		assert.Equal(t, statemachine.AlwaysKey, last.Condition)
	})

	t.Run("remove transition", func(t *testing.T) {
		t.Parallel()

		config := enemyConfig()
		require.ErrorIs(t, RemoveTransition("Dead", "Walking").Apply(config), ErrTransitionNotFound)
		require.ErrorIs(t, RemoveDuplicateTransition("Idle", "Walking", "data.counter > 0").Apply(config),
			ErrDuplicateNotFound)
		require.ErrorIs(t, SetDefaultState("Sleeping").Apply(config), ErrStateNotFound)
	})

	t.Run("apply reports the failing fix", func(t *testing.T) {
		t.Parallel()

		err := ApplyFixes(enemyConfig(), []*Fix{nil, RemoveTransition("Dead", "Walking")})
		require.ErrorIs(t, err, ErrTransitionNotFound)
		assert.True(t, strings.HasPrefix(err.Error(), "failed to apply fix"))
	})
}

func TestValidationResultString(t *testing.T) {
	t.Parallel()

	assert.Contains(t, ValidationResult{Valid: true}.String(), "✓ Configuration is valid")

	out := ValidationResult{
		Errors: []ValidationError{
			{
				Code:     "SELF_TRANSITION",
				Message:  "loops",
				Location: Location{State: "Dead"},
				Fix:      RemoveTransition("Dead", "Dead"),
			},
		},
		Warnings: []ValidationWarning{{Code: "TRAP_STATE", Message: "stuck"}},
	}.String()

	assert.Contains(t, out, "✗ Configuration has 1 error(s)")
	assert.Contains(t, out, "(state: Dead)")
	assert.Contains(t, out, "Fix: Remove transition from 'Dead' to 'Dead'")
	assert.Contains(t, out, "1 warning(s)")
}

func TestValidateTelemetryLabels(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ValidateTelemetryLabels(nil))
	assert.Empty(t, ValidateTelemetryLabels(enemyConfig()))

	config := enemyConfig()
	config.States = append(config.States, "on fire")

	for i := range 40 {
		config.States = append(config.States, "S"+strings.Repeat("x", i))
	}

	var codes []string
	for _, w := range ValidateTelemetryLabels(config) {
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []string{"OTEL_STATE_NAMING", "OTEL_LABEL_CARDINALITY"}, codes)
}
