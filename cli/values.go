package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAssignment splits "key=value" and types the value: true/false become
// bools, integers become int, other numbers float64, quoted or anything else
// stays a string.
func ParseAssignment(s string) (string, any, error) {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)

	if !ok || key == "" || strings.ContainsAny(key, " \t") {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidAssignment, s)
	}

	return key, ParseValue(raw), nil
}

// ParseValue types a raw value the way ParseAssignment does.
func ParseValue(raw string) any {
	raw = strings.TrimSpace(raw)

	if len(raw) >= 2 && (raw[0] == '\'' || raw[0] == '"') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1]
	}

	switch raw {
	case "true":
		return true
	case "false":
		return false
	}

	if i, err := strconv.Atoi(raw); err == nil {
		return i
	}

	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}

	return raw
}
