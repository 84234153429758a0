package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssignment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input     string
		wantKey   string
		wantValue any
		wantErr   bool
	}{
		{input: "counter=3", wantKey: "counter", wantValue: 3},
		{input: " hp = -2 ", wantKey: "hp", wantValue: -2},
		{input: "speed=1.5", wantKey: "speed", wantValue: 1.5},
		{input: "alive=true", wantKey: "alive", wantValue: true},
		{input: "alive=false", wantKey: "alive", wantValue: false},
		{input: "mode=patrol", wantKey: "mode", wantValue: "patrol"},
		{input: "mode='42'", wantKey: "mode", wantValue: "42"},
		{input: `label="a=b"`, wantKey: "label", wantValue: "a=b"},
		{input: "empty=", wantKey: "empty", wantValue: ""},
		{input: "novalue", wantErr: true},
		{input: "=3", wantErr: true},
		{input: "two words=1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			key, value, err := ParseAssignment(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAssignment)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantValue, value)
		})
	}
}

func TestBanner(t *testing.T) {
	t.Parallel()

	banner := Banner("enemy\nticks: 3", 12, AlignLeft)
	lines := strings.Split(banner, "\n")

	require.Len(t, lines, 4)
	assert.Equal(t, "╒══════════╕", lines[0])
	assert.Equal(t, "│enemy     │", lines[1])
	assert.Equal(t, "│ticks: 3  │", lines[2])
	assert.Equal(t, "└──────────┘", lines[3])

	assert.Equal(t, "│   ab   │", strings.Split(Banner("ab", 10, AlignCenter), "\n")[1])
	assert.Equal(t, "│      ab│", strings.Split(Banner("ab", 10, AlignRight), "\n")[1])
	assert.Equal(t, "│abcdefg…│", strings.Split(Banner("abcdefghijkl", 10, AlignLeft), "\n")[1])

	assert.Empty(t, Banner("", 10, AlignLeft))
	assert.Empty(t, Banner("x", 0, AlignLeft))
	assert.Empty(t, Banner("x", 10, Alignment(9)))
}

func TestDivider(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "┠────┨\n", Divider(6))
	assert.Equal(t, "┠┨\n", Divider(1))
}

func TestParseSize(t *testing.T) {
	t.Parallel()

	rows, cols, err := parseSize("24 80\n")
	require.NoError(t, err)
	assert.Equal(t, 24, rows)
	assert.Equal(t, 80, cols)

	_, _, err = parseSize("garbage")
	require.ErrorIs(t, err, ErrInvalidSize)

	_, _, err = parseSize("24 x")
	require.ErrorIs(t, err, ErrInvalidSize)
}

func TestSelectedInOrder(t *testing.T) {
	t.Parallel()

	got := selectedInOrder([]string{"walk", "idle", "dead", "idle"}, map[string]bool{"idle": true, "dead": true})
	assert.Equal(t, []string{"idle", "dead"}, got)

	search := prefixSearcher([]string{doneItem, "Walking", "Idle"}, true)
	assert.False(t, search("", 1))
	assert.False(t, search("[", 0))
	assert.True(t, search("wal", 1))
	assert.False(t, search("wal", 2))
}

func TestValidators(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, validateNonEmpty(""), ErrEmptyInput)
	require.NoError(t, validateNonEmpty("x"))
	require.Error(t, validateInt("1.5"))
	require.NoError(t, validateInt("-7"))
}
