package statemachine

import (
	"context"
	"log/slog"
	"time"

	"github.com/amp-labs/automachine/logger"
)

// Logger provides logging hooks for machine execution. The context passed
// to every hook carries the machine identity (see logger.WithMachine).
type Logger interface {
	MachineInitialized(ctx context.Context, machine string, states int)
	DefaultStateChosen(ctx context.Context, state string, explicit bool)
	StateSwitched(ctx context.Context, from, to string, firstRun bool)
	StateChangeRejected(ctx context.Context, to string, err error)
	TransitionRejected(ctx context.Context, from, to string, err error)
	TransitionFired(ctx context.Context, id TransitionID, from, to string, delay time.Duration)
	DelayedSwitchScheduled(ctx context.Context, to string, delay time.Duration)
}

// DebugSettings toggles log categories. Errors are logged regardless.
type DebugSettings struct {
	LogCreatedStates  bool `json:"logCreatedStates"  toml:"logCreatedStates"  yaml:"logCreatedStates"`
	LogDefaultState   bool `json:"logDefaultState"   toml:"logDefaultState"   yaml:"logDefaultState"`
	LogSwitchingState bool `json:"logSwitchingState" toml:"logSwitchingState" yaml:"logSwitchingState"`
	LogTransitions    bool `json:"logTransitions"    toml:"logTransitions"    yaml:"logTransitions"`
	LogRejections     bool `json:"logRejections"     toml:"logRejections"     yaml:"logRejections"`
}

// DefaultDebugSettings enables every category.
func DefaultDebugSettings() DebugSettings {
	return DebugSettings{
		LogCreatedStates:  true,
		LogDefaultState:   true,
		LogSwitchingState: true,
		LogTransitions:    true,
		LogRejections:     true,
	}
}

// DefaultLogger implements Logger using slog. Without an explicit slog
// logger it resolves one per call through logger.Get, so context values and
// muting apply.
type DefaultLogger struct {
	logger   *slog.Logger
	settings DebugSettings
}

// NewDefaultLogger creates a logger backed by the package logger.
func NewDefaultLogger(settings DebugSettings) *DefaultLogger {
	return &DefaultLogger{settings: settings}
}

// NewSlogLogger creates a logger writing to l.
func NewSlogLogger(l *slog.Logger, settings DebugSettings) *DefaultLogger {
	return &DefaultLogger{logger: l, settings: settings}
}

func (l *DefaultLogger) get(ctx context.Context) *slog.Logger {
	if l.logger == nil {
		return logger.Get(ctx)
	}

	if vals := logger.Values(ctx); len(vals) > 0 {
		return l.logger.With(vals...)
	}

	return l.logger
}

// MachineInitialized logs the state count. The machine identity comes from
// ctx, so the name argument is not repeated.
func (l *DefaultLogger) MachineInitialized(ctx context.Context, _ string, states int) {
	if !l.settings.LogCreatedStates {
		return
	}

	l.get(ctx).InfoContext(ctx, "Machine initialized", "states", states)
}

func (l *DefaultLogger) DefaultStateChosen(ctx context.Context, state string, explicit bool) {
	if !l.settings.LogDefaultState {
		return
	}

	l.get(ctx).InfoContext(ctx, "Default state chosen",
		"state", state,
		"explicit", explicit,
	)
}

func (l *DefaultLogger) StateSwitched(ctx context.Context, from, to string, firstRun bool) {
	if !l.settings.LogSwitchingState {
		return
	}

	l.get(ctx).InfoContext(ctx, "State switched",
		"from", from,
		"to", to,
		"first_run", firstRun,
	)
}

// StateChangeRejected logs missing instances and unknown states at error
// level. Re-entrant and late requests are warnings.
func (l *DefaultLogger) StateChangeRejected(ctx context.Context, to string, err error) {
	if isDefinitionError(err) {
		l.get(ctx).ErrorContext(ctx, "State change failed", "to", to, "error", err)

		return
	}

	if !l.settings.LogRejections {
		return
	}

	l.get(ctx).WarnContext(ctx, "State change rejected", "to", to, "error", err)
}

// TransitionRejected logs an invalid transition definition. Always emitted.
func (l *DefaultLogger) TransitionRejected(ctx context.Context, from, to string, err error) {
	if from == "" {
		from = "*"
	}

	l.get(ctx).ErrorContext(ctx, "Transition rejected",
		"from", from,
		"to", to,
		"error", err,
	)
}

func (l *DefaultLogger) TransitionFired(ctx context.Context, id TransitionID, from, to string, delay time.Duration) {
	if !l.settings.LogTransitions {
		return
	}

	if from == "" {
		from = "*"
	}

	l.get(ctx).DebugContext(ctx, "Transition fired",
		"id", string(id),
		"from", from,
		"to", to,
		"delay_ms", delay.Milliseconds(),
	)
}

func (l *DefaultLogger) DelayedSwitchScheduled(ctx context.Context, to string, delay time.Duration) {
	if !l.settings.LogSwitchingState {
		return
	}

	l.get(ctx).InfoContext(ctx, "Delayed switch scheduled",
		"to", to,
		"delay_ms", delay.Milliseconds(),
	)
}

// NopLogger discards every hook.
type NopLogger struct{}

func (NopLogger) MachineInitialized(context.Context, string, int)                              {}
func (NopLogger) DefaultStateChosen(context.Context, string, bool)                             {}
func (NopLogger) StateSwitched(context.Context, string, string, bool)                          {}
func (NopLogger) StateChangeRejected(context.Context, string, error)                           {}
func (NopLogger) TransitionRejected(context.Context, string, string, error)                    {}
func (NopLogger) TransitionFired(context.Context, TransitionID, string, string, time.Duration) {}
func (NopLogger) DelayedSwitchScheduled(context.Context, string, time.Duration)                {}

var (
	_ Logger = (*DefaultLogger)(nil)
	_ Logger = NopLogger{}
)
