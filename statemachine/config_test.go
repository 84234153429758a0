package statemachine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/amp-labs/automachine/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const enemyYAML = `
name: enemy
defaultState: Idle
states: [Idle, Walking, Dead]
transitions:
  - from: Idle
    to: Walking
    condition: data.counter > 0
  - from: Walking
    to: Idle
    condition: data.counter == 0
    delay: 1.5
anyStateTransitions:
  - to: Dead
    condition: data.hp <= 0
    delay: 250ms
debug:
  logCreatedStates: false
  logDefaultState: true
  logSwitchingState: true
  logTransitions: false
  logRejections: true
`

const enemyTOML = `
name = "enemy"
defaultState = "Idle"
states = ["Idle", "Walking", "Dead"]

[[transitions]]
from = "Idle"
to = "Walking"
condition = "data.counter > 0"

[[anyStateTransitions]]
to = "Dead"
condition = "data.hp <= 0"
delay = "2s"
`

const enemyJSON = `{
  "name": "enemy",
  "states": ["Idle", "Walking", "Dead"],
  "transitions": [{"from": "Idle", "to": "Walking", "condition": "data.counter > 0", "delay": "2s"}]
}`

func TestLoadConfigFromBytes(t *testing.T) {
	t.Parallel()

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFromBytes([]byte(enemyYAML), FormatYAML)
		require.NoError(t, err)

		assert.Equal(t, "enemy", cfg.Name)
		assert.Equal(t, "Idle", cfg.DefaultState)
		assert.Equal(t, []string{"Idle", "Walking", "Dead"}, cfg.States)
		require.Len(t, cfg.Transitions, 2)
		assert.Equal(t, "1.5", cfg.Transitions[1].Delay)
		require.Len(t, cfg.AnyStateTransitions, 1)
		require.NotNil(t, cfg.Debug)
		assert.False(t, cfg.Debug.LogCreatedStates)
		assert.True(t, cfg.Debug.LogRejections)
	})

	t.Run("toml", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFromBytes([]byte(enemyTOML), FormatTOML)
		require.NoError(t, err)

		assert.Equal(t, "enemy", cfg.Name)
		require.Len(t, cfg.AnyStateTransitions, 1)
		assert.Equal(t, "2s", cfg.AnyStateTransitions[0].Delay)
		assert.Nil(t, cfg.Debug)
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFromBytes([]byte(enemyJSON), FormatJSON)
		require.NoError(t, err)

		assert.Empty(t, cfg.DefaultState)
		require.Len(t, cfg.Transitions, 1)
		assert.Equal(t, "2s", cfg.Transitions[0].Delay)
	})

	t.Run("unknown field", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFromBytes([]byte("name: x\nstates: [A]\nstats: 3\n"), FormatYAML)
		require.Error(t, err)

		_, err = LoadConfigFromBytes([]byte("name = \"x\"\nstates = [\"A\"]\nstats = 3\n"), FormatTOML)
		require.Error(t, err)
	})

	t.Run("unsupported format", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFromBytes([]byte(enemyYAML), Format("xml"))
		require.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Name:   "enemy",
			States: []string{"Idle", "Walking", "Dead"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   []error
	}{
		{
			name:   "missing name and states",
			mutate: func(c *Config) { *c = Config{} },
			want:   []error{ErrConfigNameRequired, ErrStateRequired},
		},
		{
			name:   "duplicate state",
			mutate: func(c *Config) { c.States = append(c.States, "Idle") },
			want:   []error{ErrDuplicateStateName},
		},
		{
			name:   "unknown default",
			mutate: func(c *Config) { c.DefaultState = "Sleeping" },
			want:   []error{ErrUnknownState},
		},
		{
			name: "self transition and missing endpoints",
			mutate: func(c *Config) {
				c.Transitions = []TransitionConfig{
					{From: "Idle", To: "Idle"},
					{To: "Walking"},
					{From: "Walking"},
				}
			},
			want: []error{ErrSelfTransition, ErrTransitionFromRequired, ErrTransitionToRequired},
		},
		{
			name: "bad condition and delay",
			mutate: func(c *Config) {
				c.Transitions = []TransitionConfig{{From: "Idle", To: "Walking", Condition: "hp > 1", Delay: "soon"}}
				c.AnyStateTransitions = []AnyStateTransitionConfig{{To: "Dead", Delay: "-1s"}}
			},
			want: []error{ErrUnsupportedExpression, ErrInvalidDelay, ErrNegativeDelay},
		},
		{
			name: "duplicate transitions",
			mutate: func(c *Config) {
				c.Transitions = []TransitionConfig{
					{From: "Idle", To: "Walking", Condition: "data.go"},
					{From: "Idle", To: "Walking", Condition: "data.go"},
				}
				c.AnyStateTransitions = []AnyStateTransitionConfig{
					{To: "Dead", Condition: "data.hp <= 0"},
					{To: "Dead", Condition: "data.hp < 1"},
				}
			},
			want: []error{ErrDuplicateTransition, ErrTransitionConflict},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)

			for _, want := range tt.want {
				assert.ErrorIs(t, err, want)
			}
		})
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())
}

func TestParseDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    time.Duration
		wantErr error
	}{
		{in: "", want: 0},
		{in: "2s", want: 2 * time.Second},
		{in: "1.5", want: 1500 * time.Millisecond},
		{in: " 250ms ", want: 250 * time.Millisecond},
		{in: "3", want: 3 * time.Second},
		{in: "later", wantErr: ErrInvalidDelay},
		{in: "-2", wantErr: ErrNegativeDelay},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseDelay(tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]Format{
		"a.yaml":      FormatYAML,
		"dir/b.YML":   FormatYAML,
		"c.toml":      FormatTOML,
		"/tmp/d.json": FormatJSON,
	} {
		got, err := FormatFromPath(path)
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}

	_, err := FormatFromPath("machine.ini")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

type mapLoader map[string]string

func (m mapLoader) LoadByName(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, errors.New("not found")
	}

	return []byte(data), nil
}

func (m mapLoader) ListAvailable() []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}

	return out
}

//nolint:paralleltest // mutates the package-level config loader
func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enemy.toml")
	require.NoError(t, os.WriteFile(path, []byte(enemyTOML), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "enemy", cfg.Name)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	SetConfigLoader(nil)

	_, err = LoadConfig("enemy")
	require.ErrorIs(t, err, ErrNoConfigLoader)

	SetConfigLoader(mapLoader{"enemy": enemyYAML})
	t.Cleanup(func() { SetConfigLoader(nil) })

	cfg, err = LoadConfig("enemy")
	require.NoError(t, err)
	assert.Len(t, cfg.Transitions, 2)

	_, err = LoadConfig("boss")
	require.ErrorContains(t, err, "available: [enemy]")
}

func errorAttrs(err error) map[string]string {
	out := make(map[string]string)

	for _, attr := range logger.ErrorAttrs(err) {
		out[attr.Key] = attr.Value.String()
	}

	return out
}

func TestLoadConfig_AnnotatesErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("name: [unterminated\n"), 0o600))

	_, err := LoadConfig(broken)
	require.Error(t, err)
	assert.Equal(t, map[string]string{"config_path": broken, "format": "yaml"}, errorAttrs(err))

	invalid := filepath.Join(dir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalid, []byte("name = \"x\"\nstates = []\n"), 0o600))

	_, err = LoadConfig(invalid)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, map[string]string{"config_path": invalid, "format": "toml"}, errorAttrs(err))

	_, err = LoadConfigFromBytes([]byte("name = 1"), FormatTOML)
	require.Error(t, err)
	assert.Equal(t, map[string]string{"format": "toml"}, errorAttrs(err))
}

func TestLoadConfigFromFS(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"machines/enemy.yaml": &fstest.MapFile{Data: []byte(enemyYAML)},
		"machines/enemy.sh":   &fstest.MapFile{Data: []byte("#!/bin/sh")},
	}

	cfg, err := LoadConfigFromFS(fsys, "machines/enemy.yaml")
	require.NoError(t, err)
	assert.Equal(t, "enemy", cfg.Name)

	_, err = LoadConfigFromFS(fsys, "machines/enemy.sh")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = LoadConfigFromFS(fsys, "machines/boss.yaml")
	require.Error(t, err)
}

func TestConfig_MarshalRoundTrip(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromBytes([]byte(enemyYAML), FormatYAML)
	require.NoError(t, err)

	for _, format := range []Format{FormatYAML, FormatTOML} {
		data, err := cfg.Marshal(format)
		require.NoError(t, err)

		again, err := LoadConfigFromBytes(data, format)
		require.NoError(t, err, string(data))
		assert.Equal(t, cfg, again)
	}

	_, err = cfg.Marshal(FormatJSON)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestConfig_Definition(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromBytes([]byte(enemyYAML), FormatYAML)
	require.NoError(t, err)

	def := cfg.Definition()

	assert.Equal(t, "enemy", def.Name)
	assert.Equal(t, "Idle", def.Default)
	require.Len(t, def.Transitions, 3)

	anyState := def.AnyStateTransitions()
	require.Len(t, anyState, 1)
	assert.Equal(t, "Dead", anyState[0].ID)
	assert.Equal(t, "expr:data.hp <= 0", anyState[0].Guard)
	assert.Equal(t, 250*time.Millisecond, anyState[0].Delay)

	direct := def.DirectTransitions()
	require.Len(t, direct, 2)

	idle, walking := InternState("Idle"), InternState("Walking")
	ids := []string{direct[0].ID, direct[1].ID}
	assert.ElementsMatch(t, []string{
		string(CreateTransitionID(idle, walking)),
		string(CreateTransitionID(walking, idle)),
	}, ids)

	assert.True(t, def.HasState("Walking"))
	assert.False(t, def.HasState("Sleeping"))

	enum, err := cfg.Enumeration()
	require.NoError(t, err)
	assert.Equal(t, cfg.States, enum.Names())
}
