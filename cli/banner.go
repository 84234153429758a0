package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/caarlos0/env/v11"
)

const (
	boxTopLeft     = "╒"
	boxBottomLeft  = "└"
	boxTopRight    = "╕"
	boxBottomRight = "┘"
	boxSide        = "│"
	boxTop         = "═"
	boxBottom      = "─"
	dividerLeft    = "┠"
	dividerMiddle  = "─"
	dividerRight   = "┨"
	ellipsis       = "…"

	boxPadding = 2
)

// Alignment positions text inside a banner line.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

// DefaultTerminalWidth is used when the terminal size cannot be read.
const DefaultTerminalWidth = 80

type bannerEnv struct {
	NoBanner bool `env:"AUTOMACHINE_NO_BANNER" envDefault:"false"`
}

// suppressBanner reads AUTOMACHINE_NO_BANNER once. Unparsable values keep
// banners on.
var suppressBanner = sync.OnceValue(func() bool { //nolint:gochecknoglobals
	var cfg bannerEnv
	if err := env.Parse(&cfg); err != nil {
		return false
	}

	return cfg.NoBanner
})

// DividerAutoWidth returns a divider as wide as the terminal.
func DividerAutoWidth() string {
	return Divider(terminalWidth())
}

// BannerAutoWidth boxes s at the terminal width.
func BannerAutoWidth(s string, a Alignment) string {
	if suppressBanner() {
		return s + "\n"
	}

	return Banner(s, terminalWidth(), a)
}

// Divider returns a horizontal rule of the given width.
func Divider(width int) string {
	return dividerLeft + strings.Repeat(dividerMiddle, max(width-boxPadding, 0)) + dividerRight + "\n"
}

// Banner boxes every line of s. It returns "" for empty input, a
// non-positive width or an unknown alignment.
func Banner(s string, width int, alignment Alignment) string {
	if suppressBanner() {
		return s + "\n"
	}

	if s == "" || width <= boxPadding {
		return ""
	}

	inner := width - boxPadding
	parts := []string{boxTopLeft + strings.Repeat(boxTop, inner) + boxTopRight}

	for _, l := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		line, ok := pad(l, inner, alignment)
		if !ok {
			return ""
		}

		parts = append(parts, boxSide+line+boxSide)
	}

	parts = append(parts, boxBottomLeft+strings.Repeat(boxBottom, inner)+boxBottomRight)

	return strings.Join(parts, "\n")
}

func countGraphic(s string) int {
	count := 0

	for _, r := range s {
		if unicode.IsGraphic(r) {
			count++
		}
	}

	return count
}

// truncateGraphic keeps the first n-1 graphic runes of s.
func truncateGraphic(s string, n int) (string, int) {
	var sb strings.Builder

	count := 0

	for _, r := range s {
		if unicode.IsGraphic(r) {
			count++
		}

		if count >= n {
			break
		}

		sb.WriteRune(r)
	}

	return sb.String(), count
}

func pad(text string, width int, alignment Alignment) (string, bool) {
	length := countGraphic(text)

	if length > width {
		text, length = truncateGraphic(text, width)
		text += ellipsis
	}

	diff := max(width-length, 0)

	switch alignment {
	case AlignLeft:
		return text + strings.Repeat(" ", diff), true
	case AlignRight:
		return strings.Repeat(" ", diff) + text, true
	case AlignCenter:
		left := diff / 2 //nolint:mnd

		return strings.Repeat(" ", left) + text + strings.Repeat(" ", diff-left), true
	default:
		return "", false
	}
}

func terminalWidth() int {
	_, cols, err := TerminalDimensions()
	if err != nil || cols == 0 {
		return DefaultTerminalWidth
	}

	return cols
}

func size() (string, error) {
	f, err := os.Open("/dev/tty")
	if err != nil {
		return "", err
	}

	defer f.Close() //nolint:errcheck

	// Outputs: "rows columns"
	cmd := exec.Command("stty", "size")
	cmd.Stdin = f

	out, err := cmd.Output()

	return string(out), err
}

func parseSize(input string) (int, int, error) {
	rowsText, colsText, ok := strings.Cut(strings.TrimSpace(input), " ")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSize, input)
	}

	rows, err := strconv.Atoi(rowsText)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidSize, err)
	}

	cols, err := strconv.Atoi(strings.TrimSpace(colsText))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidSize, err)
	}

	return rows, cols, nil
}

// TerminalDimensions returns (rows, cols, err).
func TerminalDimensions() (int, int, error) {
	output, err := size()
	if err != nil {
		return 0, 0, err
	}

	return parseSize(output)
}
