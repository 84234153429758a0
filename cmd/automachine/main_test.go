//nolint:paralleltest // Commands reconfigure the process-wide logger.
package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const doorYAML = `name: door
defaultState: Closed
states: [Closed, Open]
transitions:
  - from: Closed
    to: Open
    condition: data.push
  - from: Open
    to: Closed
    condition: "!data.push"
`

const stunYAML = `name: stun
defaultState: Ready
states: [Ready, Stunned]
transitions:
  - from: Ready
    to: Stunned
    condition: data.hit
  - from: Stunned
    to: Ready
    condition: always
    delay: 2s
`

const brokenYAML = `name: broken
defaultState: Closed
states: [Closed, Open]
transitions:
  - from: Closed
    to: Nowhere
    condition: data.push
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout bytes.Buffer

	root := newRootCmd(&stdout, io.Discard)
	root.SetArgs(args)

	err := root.ExecuteContext(t.Context())

	return stdout.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := runCmd(t, "validate", writeFile(t, "door.yaml", doorYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	out, err = runCmd(t, "validate", writeFile(t, "broken.yaml", brokenYAML))
	require.ErrorIs(t, err, errValidationFailed)
	assert.Contains(t, out, "UNKNOWN_STATE")

	_, err = runCmd(t, "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestRenderCommand(t *testing.T) {
	path := writeFile(t, "door.yaml", doorYAML)

	out, err := runCmd(t, "render", path, "--direction", "LR", "--theme", "dark")
	require.NoError(t, err)

	assert.Contains(t, out, "```mermaid")
	assert.Contains(t, out, "stateDiagram-LR")
	assert.Contains(t, out, "%%{init: {'theme':'dark'}}%%")
	assert.Contains(t, out, "[*] --> Closed")
	assert.Contains(t, out, "Closed --> Open: data.push")

	target := filepath.Join(t.TempDir(), "door.md")
	out, err = runCmd(t, "render", path, "--no-conditions", "--output", target)
	require.NoError(t, err)
	assert.Empty(t, out)

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(written), "Closed --> Open")
	assert.NotContains(t, string(written), "data.push")
}

func TestSimulateCommand(t *testing.T) {
	out, err := runCmd(t, "simulate", writeFile(t, "door.yaml", doorYAML),
		"--ticks", "4", "--set", "2:push=true", "--set", "4:push=false")
	require.NoError(t, err)

	assert.Contains(t, out, "[tick 0] start in Closed")
	assert.Contains(t, out, "[tick 2] set push = true")
	assert.Contains(t, out, "[tick 2] Closed -> Open")
	assert.Contains(t, out, "[tick 4] Open -> Closed")
	assert.Contains(t, out, "switches: 2")
	assert.Contains(t, out, "final:    Closed")
	assert.NotContains(t, out, "[tick 3]")
}

func TestSimulateDelayedTransition(t *testing.T) {
	out, err := runCmd(t, "simulate", writeFile(t, "stun.yaml", stunYAML),
		"--ticks", "4", "--dt", "1s", "--set", "1:hit=true", "--set", "3:hit=false")
	require.NoError(t, err)

	assert.Contains(t, out, "[tick 1] Ready -> Stunned")
	assert.Contains(t, out, "[tick 4] Stunned -> Ready")
	assert.Contains(t, out, "final:    Ready")
}

func TestSimulateRejectsBadInput(t *testing.T) {
	path := writeFile(t, "door.yaml", doorYAML)

	_, err := runCmd(t, "simulate", path, "--set", "push=true")
	require.ErrorIs(t, err, errInvalidSet)

	_, err = runCmd(t, "simulate", path, "--ticks", "-1")
	require.Error(t, err)

	_, err = runCmd(t, "simulate", writeFile(t, "broken.yaml", brokenYAML))
	require.Error(t, err)
}

func TestParseSetFlags(t *testing.T) {
	schedule, err := parseSetFlags([]string{"3:hp=10", "1:name='orc'", "3:alive=true", " 2 :speed=1.5"})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, scheduledTicks(schedule))
	assert.Equal(t, []assignment{{key: "hp", value: 10}, {key: "alive", value: true}}, schedule[3])
	assert.Equal(t, []assignment{{key: "name", value: "orc"}}, schedule[1])
	assert.Equal(t, []assignment{{key: "speed", value: 1.5}}, schedule[2])

	for _, bad := range []string{"hp=10", "x:hp=1", "0:hp=1", "2:=1", "2:hp"} {
		_, err := parseSetFlags([]string{bad})
		require.ErrorIs(t, err, errInvalidSet, bad)
	}
}

func TestSimClock(t *testing.T) {
	clock := newSimClock()
	start := clock.Now()

	clock.Advance(time.Second)
	clock.Advance(-time.Hour)

	assert.Equal(t, time.Second, clock.Now().Sub(start))
}

func TestWatchFile(t *testing.T) {
	path := writeFile(t, "door.yaml", doorYAML)
	other := filepath.Join(filepath.Dir(path), "other.yaml")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var changes atomic.Int32

	done := make(chan error, 1)

	go func() {
		done <- watchFile(ctx, path, func() { changes.Inc() })
	}()

	// Writes to a sibling never trigger.
	require.NoError(t, os.WriteFile(other, []byte(doorYAML), 0o600))

	require.Eventually(t, func() bool {
		require.NoError(t, os.WriteFile(path, []byte(doorYAML+"\n"), 0o600))

		return changes.Load() > 0
	}, 5*time.Second, 3*watchDebounce)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watchFile didn't return after cancel")
	}
}

func TestVersionFlag(t *testing.T) {
	out, err := runCmd(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, appName+" version ")
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer

	_, err := runCmd(t, "simulate", filepath.Join(t.TempDir(), "gone.yaml"))
	require.Error(t, err)

	reportError(&buf, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Error: failed to read config file"))
	assert.True(t, strings.HasPrefix(lines[1], "  config_path: "))
	assert.Equal(t, "  format: yaml", lines[2])

	_, err = runCmd(t, "simulate", writeFile(t, "door.yaml", doorYAML), "--set", "push")
	require.ErrorIs(t, err, errInvalidSet)

	buf.Reset()
	reportError(&buf, err)
	assert.Contains(t, buf.String(), "  flag: --set")
}
