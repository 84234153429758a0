package statemachine

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type logLine struct {
	Level   string `yaml:"level"`
	Msg     string `yaml:"msg"`
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Machine string `yaml:"machine"`
	Entity  string `yaml:"entity"`
}

// readLines decodes JSON log output; every JSON line is a YAML flow mapping.
func readLines(t *testing.T, buf *bytes.Buffer) []logLine {
	t.Helper()

	var lines []logLine

	for raw := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}

		var line logLine
		require.NoError(t, yaml.Unmarshal([]byte(raw), &line), raw)

		lines = append(lines, line)
	}

	return lines
}

func messages(lines []logLine) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Msg)
	}

	return out
}

func bufferedCore(t *testing.T, settings DebugSettings) (*Core[enemyState], *bytes.Buffer) {
	t.Helper()

	buf := &bytes.Buffer{}
	l := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	core, err := NewCore(enemyStates, []State[enemyState]{newCountingState(Idle), newCountingState(Walking)},
		WithName[enemyState]("logged"),
		WithLogger[enemyState](NewSlogLogger(l, settings)),
	)
	require.NoError(t, err)

	return core, buf
}

func TestDefaultLogger_AllCategories(t *testing.T) {
	t.Parallel()

	core, buf := bufferedCore(t, DefaultDebugSettings())
	ctx := t.Context()

	_, err := core.AddTransition(ctx, Idle, Walking, Always())
	require.NoError(t, err)

	require.NoError(t, core.Initialize(ctx))
	core.Tick(ctx)

	lines := readLines(t, buf)
	assert.Equal(t, []string{
		"Machine initialized",
		"Default state chosen",
		"State switched",
		"Transition fired",
		"State switched",
	}, messages(lines))

	assert.Equal(t, "Idle", lines[4].From)
	assert.Equal(t, "Walking", lines[4].To)
	assert.Equal(t, "DEBUG", lines[3].Level)
}

func TestDefaultLogger_Gating(t *testing.T) {
	t.Parallel()

	core, buf := bufferedCore(t, DebugSettings{})
	ctx := t.Context()

	require.NoError(t, core.Initialize(ctx))
	assert.Empty(t, buf.String(), "every category off")

	require.Error(t, core.ChangeState(ctx, enemyState(9)))

	require.NoError(t, core.ChangeStateDelayed(ctx, Walking, time.Second))
	require.Error(t, core.ChangeState(ctx, Idle))

	_, err := core.AddTransition(ctx, Dead, Dead, Always())
	require.Error(t, err)

	lines := readLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "ERROR", lines[0].Level)
	assert.Equal(t, "Transition rejected", lines[1].Msg)
	assert.Equal(t, "ERROR", lines[1].Level)
}

func TestDefaultLogger_AnyStateSource(t *testing.T) {
	t.Parallel()

	core, buf := bufferedCore(t, DefaultDebugSettings())

	require.Error(t, core.AddAnyStateTransition(t.Context(), enemyState(5), Always()))

	lines := readLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "*", lines[0].From)
}

func TestDefaultLogger_CarriesMachineIdentity(t *testing.T) {
	t.Parallel()

	core, buf := bufferedCore(t, DefaultDebugSettings())

	require.NoError(t, core.Initialize(t.Context()))

	lines := readLines(t, buf)
	require.NotEmpty(t, lines)

	for _, line := range lines {
		assert.Equal(t, "logged", line.Machine, line.Msg)
	}
}

func TestDefaultLogger_UnnamedMachineOmitsEmptyAttrs(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	l := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	core, err := NewCore(enemyStates, []State[enemyState]{newCountingState(Idle)},
		WithLogger[enemyState](NewSlogLogger(l, DefaultDebugSettings())),
	)
	require.NoError(t, err)
	require.NoError(t, core.Initialize(t.Context()))

	out := buf.String()
	require.Contains(t, out, "Machine initialized")
	assert.NotContains(t, out, `"name"`)
	assert.NotContains(t, out, `"machine":""`)
	assert.NotContains(t, out, `"subsystem":""`)
	assert.NotContains(t, out, `"entity":""`)
	assert.Contains(t, out, `"machine_id"`)
}
