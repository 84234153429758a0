package validator

import (
	"fmt"
	"regexp"

	"github.com/amp-labs/automachine/statemachine"
)

// maxStatePairs bounds the from_state x to_state label combinations a
// machine may produce on the automachine_state_changes_total counter.
const maxStatePairs = 1024

var labelSafe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.:-]*$`) //nolint:gochecknoglobals

// telemetryRule checks that the config produces usable metric labels and
// span attributes. Machine and state names are emitted verbatim.
type telemetryRule struct{}

func (r *telemetryRule) Name() string { return "Telemetry" }

func (r *telemetryRule) Severity() Severity { return SeverityWarning }

func (r *telemetryRule) Check(config *statemachine.Config) RuleResult {
	return RuleResult{Warnings: ValidateTelemetryLabels(config)}
}

// ValidateTelemetryLabels reports names that would make poor metric labels
// or span attributes.
func ValidateTelemetryLabels(config *statemachine.Config) []ValidationWarning {
	var warnings []ValidationWarning

	if config == nil {
		return nil
	}

	if config.Name != "" && !labelSafe.MatchString(config.Name) {
		warnings = append(warnings, ValidationWarning{
			Code:    "OTEL_MACHINE_NAMING",
			Message: fmt.Sprintf("Machine name '%s' contains characters that dashboards and queries must escape", config.Name),
		})
	}

	for _, state := range config.States {
		if state == "" || labelSafe.MatchString(state) {
			continue
		}

		warnings = append(warnings, ValidationWarning{
			Code:     "OTEL_STATE_NAMING",
			Message:  fmt.Sprintf("State name '%s' contains characters that dashboards and queries must escape", state),
			Location: Location{State: state},
		})
	}

	if pairs := len(config.States) * len(config.States); pairs > maxStatePairs {
		warnings = append(warnings, ValidationWarning{
			Code:    "OTEL_LABEL_CARDINALITY",
			Message: fmt.Sprintf("%d states allow %d from/to label pairs (limit %d)", len(config.States), pairs, maxStatePairs),
		})
	}

	return warnings
}
