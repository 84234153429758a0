// Package visualizer generates Mermaid state diagrams from machine
// definitions, whether they come from a live Core or a declarative Config.
//
//nolint:varnamelen // short names idiomatic
package visualizer

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/amp-labs/automachine/statemachine"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Visualizer errors.
var (
	ErrConfigNil = errors.New("config cannot be nil")
	ErrNoStates  = errors.New("definition must declare at least one state")
)

const (
	anyStateNode  = "AnyState"
	anyStateLabel = "Any State"
	exprPrefix    = "expr:"
)

// GenerateMermaid converts a Definition to a Mermaid state diagram.
func GenerateMermaid(def statemachine.Definition) (string, error) {
	return GenerateMermaidWithOptions(def, DefaultOptions())
}

// GenerateMermaidFromConfig renders a declarative config.
func GenerateMermaidFromConfig(config *statemachine.Config, opts Options) (string, error) {
	if config == nil {
		return "", ErrConfigNil
	}

	return GenerateMermaidWithOptions(config.Definition(), opts)
}

// GenerateMermaidFromFile loads a config by path or registered name and
// generates a Mermaid diagram with the default options.
func GenerateMermaidFromFile(path string) (string, error) {
	config, err := statemachine.LoadConfig(path)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	return GenerateMermaidFromConfig(config, DefaultOptions())
}

// GenerateMermaidWithOptions generates a Mermaid diagram with custom options.
// Any-state transitions are drawn from a single "Any State" pseudo-node.
func GenerateMermaidWithOptions(def statemachine.Definition, opts Options) (string, error) {
	if len(def.States) == 0 {
		return "", ErrNoStates
	}

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}

	ids := newIDSet(def.States)

	var sb strings.Builder

	sb.WriteString("```mermaid\n")

	if opts.Theme != "" && opts.Theme != "default" {
		sb.WriteString(fmt.Sprintf("%%%%{init: {'theme':'%s'}}%%%%\n", opts.Theme))
	}

	sb.WriteString(fmt.Sprintf("stateDiagram-%s\n", direction))

	if def.Default != "" {
		sb.WriteString(fmt.Sprintf("    [*] --> %s\n", ids.of(def.Default)))
	}

	highlightMap := make(map[string]bool)
	for _, state := range opts.HighlightPath {
		highlightMap[state] = true
	}

	for _, state := range def.States {
		id := ids.of(state)

		label := state
		if opts.TitleCase {
			label = titleLabel(state)
		}

		if label != id {
			sb.WriteString(fmt.Sprintf("    state \"%s\" as %s\n", escapeLabel(label), id))
		}

		if highlightMap[state] {
			sb.WriteString(fmt.Sprintf("    class %s highlighted\n", id))
		}
	}

	anyState := def.AnyStateTransitions()
	if len(anyState) > 0 {
		sb.WriteString(fmt.Sprintf("    state \"%s\" as %s\n", anyStateLabel, ids.anyState))
		sb.WriteString(fmt.Sprintf("    class %s anyState\n", ids.anyState))
	}

	for _, t := range anyState {
		sb.WriteString(fmt.Sprintf("    %s --> %s%s\n", ids.anyState, ids.of(t.To), edgeLabel(t, opts)))
	}

	for _, t := range def.DirectTransitions() {
		sb.WriteString(fmt.Sprintf("    %s --> %s%s\n", ids.of(t.From), ids.of(t.To), edgeLabel(t, opts)))
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef anyState fill:#eceff1,stroke:#455a64,stroke-dasharray: 5 5\n")
	sb.WriteString("    classDef highlighted fill:#fff9c4,stroke:#f57f17,stroke-width:3px\n")

	sb.WriteString("```\n")

	return sb.String(), nil
}

func edgeLabel(t statemachine.TransitionDefinition, opts Options) string {
	var parts []string

	if opts.ShowConditions && t.Guard != "" && t.Guard != statemachine.AlwaysKey {
		parts = append(parts, escapeLabel(strings.TrimPrefix(t.Guard, exprPrefix)))
	}

	if opts.ShowDelays && t.Delay > 0 {
		parts = append(parts, "after "+formatDelay(t.Delay))
	}

	if len(parts) == 0 {
		return ""
	}

	return ": " + strings.Join(parts, " ")
}

func formatDelay(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}

	return d.String()
}

// escapeLabel swaps characters mermaid treats as syntax.
func escapeLabel(label string) string {
	return strings.NewReplacer(`"`, "#quot;", ";", "#59;").Replace(label)
}

func titleLabel(state string) string {
	spaced := strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}

		return r
	}, state)

	return cases.Title(language.English).String(spaced)
}

// idSet maps state names to unique mermaid identifiers.
type idSet struct {
	ids      map[string]string
	anyState string
}

func newIDSet(states []string) *idSet {
	set := &idSet{ids: make(map[string]string, len(states))}
	used := make(map[string]bool, len(states)+1)

	for _, state := range states {
		id := uniqueID(sanitizeID(state), used)
		set.ids[state] = id
	}

	set.anyState = uniqueID(anyStateNode, used)

	return set
}

func (s *idSet) of(state string) string {
	if id, ok := s.ids[state]; ok {
		return id
	}

	return sanitizeID(state)
}

func uniqueID(id string, used map[string]bool) string {
	candidate := id
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s_%d", id, i)
	}

	used[candidate] = true

	return candidate
}

// sanitizeID folds accents away and replaces everything outside
// [A-Za-z0-9_] with an underscore.
func sanitizeID(name string) string {
	var sb strings.Builder

	for _, r := range norm.NFD.String(name) {
		switch {
		case unicode.IsMark(r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'):
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}

	id := sb.String()

	switch {
	case id == "":
		return "state"
	case unicode.IsDigit(rune(id[0])):
		return "s_" + id
	default:
		return id
	}
}
