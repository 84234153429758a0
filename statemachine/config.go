package statemachine

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/amp-labs/automachine/logger"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a declarative config.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	// FormatJSON is decoded by the YAML decoder, JSON being a subset of YAML.
	FormatJSON Format = "json"
)

// FormatFromPath picks the format by file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// ConfigLoader is an interface for loading configurations by name.
// Applications can implement this to provide embedded or custom config loading.
// Loaded bytes are decoded as YAML.
type ConfigLoader interface {
	LoadByName(name string) ([]byte, error)
	ListAvailable() []string
}

var (
	// defaultConfigLoader is the global config loader used by LoadConfig.
	defaultConfigLoader ConfigLoader //nolint:gochecknoglobals
)

// SetConfigLoader sets the default config loader for name-based loading.
func SetConfigLoader(loader ConfigLoader) {
	defaultConfigLoader = loader
}

// Config is the declarative form of a machine: its states in enumeration
// order, the default state and the transition table. Conditions are
// blackboard expressions (see ExpressionGuard). Delays are Go durations
// ("1.5s") or plain numbers of seconds.
type Config struct {
	Name                string                     `json:"name"                toml:"name"                yaml:"name"`
	DefaultState        string                     `json:"defaultState"        toml:"defaultState"        yaml:"defaultState"`
	States              []string                   `json:"states"              toml:"states"              yaml:"states"`
	Transitions         []TransitionConfig         `json:"transitions"         toml:"transitions"         yaml:"transitions"`
	AnyStateTransitions []AnyStateTransitionConfig `json:"anyStateTransitions" toml:"anyStateTransitions" yaml:"anyStateTransitions"`
	Debug               *DebugSettings             `json:"debug,omitempty"     toml:"debug,omitempty"     yaml:"debug,omitempty"`
}

// TransitionConfig defines a direct transition.
type TransitionConfig struct {
	From      string `json:"from"      toml:"from"      yaml:"from"`
	To        string `json:"to"        toml:"to"        yaml:"to"`
	Condition string `json:"condition" toml:"condition" yaml:"condition"`
	Delay     string `json:"delay"     toml:"delay"     yaml:"delay"`
}

// AnyStateTransitionConfig defines a transition that applies from every state.
type AnyStateTransitionConfig struct {
	To        string `json:"to"        toml:"to"        yaml:"to"`
	Condition string `json:"condition" toml:"condition" yaml:"condition"`
	Delay     string `json:"delay"     toml:"delay"     yaml:"delay"`
}

// LoadConfig loads a configuration by path or name.
// Supports two modes:
//   - Path mode: a value containing a path separator or a known extension is
//     read from the filesystem and decoded by extension.
//   - Name mode: a bare name is resolved through the registered ConfigLoader.
func LoadConfig(pathOrName string) (*Config, error) {
	isPath := strings.ContainsAny(pathOrName, `/\`)
	if _, err := FormatFromPath(pathOrName); err == nil {
		isPath = true
	}

	if isPath {
		format, err := FormatFromPath(pathOrName)
		if err != nil {
			return nil, logger.AnnotateError(err, "config_path", pathOrName)
		}

		data, err := os.ReadFile(pathOrName) //nolint:gosec // Intentional path-based loading
		if err != nil {
			return nil, logger.AnnotateError(fmt.Errorf("failed to read config file %q: %w", pathOrName, err),
				"config_path", pathOrName, "format", string(format))
		}

		config, err := LoadConfigFromBytes(data, format)
		if err != nil {
			return nil, logger.AnnotateError(err, "config_path", pathOrName, "format", string(format))
		}

		return config, nil
	}

	if defaultConfigLoader == nil {
		return nil, ErrNoConfigLoader
	}

	data, err := defaultConfigLoader.LoadByName(pathOrName)
	if err != nil {
		available := defaultConfigLoader.ListAvailable()

		return nil, logger.AnnotateError(
			fmt.Errorf("failed to load config %q (available: %v): %w", pathOrName, available, err),
			"config_name", pathOrName)
	}

	return LoadConfigFromBytes(data, FormatYAML)
}

// LoadConfigFromBytes decodes and validates a configuration. Errors carry a
// "format" attribute for logger.ErrorAttrs.
func LoadConfigFromBytes(data []byte, format Format) (*Config, error) {
	config, err := DecodeConfig(data, format)
	if err != nil {
		return nil, logger.AnnotateError(err, "format", string(format))
	}

	if err := config.Validate(); err != nil {
		return nil, logger.AnnotateError(err, "format", string(format), "config", config.Name)
	}

	return config, nil
}

// DecodeConfig decodes a configuration without validating it.
func DecodeConfig(data []byte, format Format) (*Config, error) {
	var config Config

	switch format {
	case FormatYAML, FormatJSON:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)

		if err := dec.Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", format, err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()

		if err := dec.Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to parse toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	return &config, nil
}

// LoadConfigFromFS loads a configuration from fsys, decoding by extension.
func LoadConfigFromFS(fsys fs.FS, path string) (*Config, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config from FS: %w", err)
	}

	return LoadConfigFromBytes(data, format)
}

// Marshal encodes the configuration.
func (c *Config) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(c)
	case FormatTOML:
		return toml.Marshal(c)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ParseDelay parses a transition delay. Empty is zero.
func ParseDelay(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}

	delay, err := time.ParseDuration(value)
	if err != nil {
		seconds, numErr := strconv.ParseFloat(value, 64)
		if numErr != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, value)
		}

		delay = time.Duration(seconds * float64(time.Second))
	}

	if delay < 0 {
		return 0, fmt.Errorf("%w: %q", ErrNegativeDelay, value)
	}

	return delay, nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, ErrConfigNameRequired)
	}

	if len(c.States) == 0 {
		errs = append(errs, ErrStateRequired)
	}

	known := make(map[string]bool, len(c.States))

	for _, state := range c.States {
		if state == "" {
			errs = append(errs, fmt.Errorf("%w: empty name", ErrInvalidConfig))

			continue
		}

		if known[state] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateStateName, state))
		}

		known[state] = true
	}

	if c.DefaultState != "" && !known[c.DefaultState] {
		errs = append(errs, fmt.Errorf("default state: %w: %s", ErrUnknownState, c.DefaultState))
	}

	scratch := NewBlackboard()
	direct := make(map[[2]string]string)

	for i, t := range c.Transitions {
		prefix := fmt.Sprintf("transition %d (%s -> %s)", i, t.From, t.To)

		switch {
		case t.From == "":
			errs = append(errs, fmt.Errorf("transition %d: %w", i, ErrTransitionFromRequired))
		case !known[t.From]:
			errs = append(errs, fmt.Errorf("%s: %w: %s", prefix, ErrUnknownState, t.From))
		}

		switch {
		case t.To == "":
			errs = append(errs, fmt.Errorf("transition %d: %w", i, ErrTransitionToRequired))
		case !known[t.To]:
			errs = append(errs, fmt.Errorf("%s: %w: %s", prefix, ErrUnknownState, t.To))
		}

		if t.From != "" && t.From == t.To {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, ErrSelfTransition))
		}

		errs = append(errs, checkEdge(prefix, scratch, t.Condition, t.Delay)...)

		pair := [2]string{t.From, t.To}
		if previous, dup := direct[pair]; dup {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, duplicateKind(scratch, previous, t.Condition)))
		} else {
			direct[pair] = t.Condition
		}
	}

	anyState := make(map[string]string)

	for i, t := range c.AnyStateTransitions {
		prefix := fmt.Sprintf("any-state transition %d (-> %s)", i, t.To)

		switch {
		case t.To == "":
			errs = append(errs, fmt.Errorf("any-state transition %d: %w", i, ErrTransitionToRequired))
		case !known[t.To]:
			errs = append(errs, fmt.Errorf("%s: %w: %s", prefix, ErrUnknownState, t.To))
		}

		errs = append(errs, checkEdge(prefix, scratch, t.Condition, t.Delay)...)

		if previous, dup := anyState[t.To]; dup {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, duplicateKind(scratch, previous, t.Condition)))
		} else {
			anyState[t.To] = t.Condition
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

func checkEdge(prefix string, scratch *Blackboard, condition, delay string) []error {
	var errs []error

	if _, err := ExpressionGuard(scratch, condition); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
	}

	if _, err := ParseDelay(delay); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
	}

	return errs
}

// duplicateKind mirrors the table's policy: an equal condition is a
// duplicate, a different one a conflict.
func duplicateKind(scratch *Blackboard, a, b string) error {
	ga, errA := ExpressionGuard(scratch, a)
	gb, errB := ExpressionGuard(scratch, b)

	if errA == nil && errB == nil && ga.Equals(gb) {
		return ErrDuplicateTransition
	}

	return ErrTransitionConflict
}

// Enumeration interns the configured states in order. Config-driven machines use NamedState as their enumeration type.
func (c *Config) Enumeration() (*Enumeration[NamedState], error) {
	values := make([]NamedState, 0, len(c.States))
	for _, name := range c.States {
		values = append(values, InternState(name))
	}

	return NewEnumeration(values...)
}

// Definition describes the configuration the way Core.Definition describes a
// live machine. Transition ids are built from interned NamedState ordinals.
func (c *Config) Definition() Definition {
	def := Definition{
		Name:    c.Name,
		States:  append([]string(nil), c.States...),
		Default: c.DefaultState,
	}

	if def.Default == "" && len(c.States) > 0 {
		def.Default = c.States[0]
	}

	scratch := NewBlackboard()

	for _, t := range c.AnyStateTransitions {
		delay, _ := ParseDelay(t.Delay)

		def.Transitions = append(def.Transitions, TransitionDefinition{
			ID:       string(AnyStateID(InternState(t.To))),
			To:       t.To,
			AnyState: true,
			Guard:    guardKey(scratch, t.Condition),
			Delay:    delay,
		})
	}

	direct := make([]TransitionDefinition, 0, len(c.Transitions))

	for _, t := range c.Transitions {
		delay, _ := ParseDelay(t.Delay)

		direct = append(direct, TransitionDefinition{
			ID:    string(CreateTransitionID(InternState(t.From), InternState(t.To))),
			From:  t.From,
			To:    t.To,
			Guard: guardKey(scratch, t.Condition),
			Delay: delay,
		})
	}

	def.Transitions = append(def.Transitions, sortDirect(direct)...)

	return def
}

func guardKey(scratch *Blackboard, condition string) string {
	guard, err := ExpressionGuard(scratch, condition)
	if err != nil {
		return strings.TrimSpace(condition)
	}

	return guard.Key
}
