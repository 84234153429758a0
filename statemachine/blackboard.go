package statemachine

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"
)

// Blackboard is a thread-safe variable map that expression guards read.
// Hosts write to it from anywhere; guards read it during Tick.
type Blackboard struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewBlackboard creates an empty blackboard.
func NewBlackboard() *Blackboard {
	return &Blackboard{data: make(map[string]any)}
}

// Get retrieves a value.
func (b *Blackboard) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	val, ok := b.data[key]

	return val, ok
}

// Set stores a value.
func (b *Blackboard) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data[key] = value
}

// Delete removes a value.
func (b *Blackboard) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.data, key)
}

// GetString retrieves a string value.
func (b *Blackboard) GetString(key string) (string, bool) {
	val, ok := b.Get(key)
	if !ok {
		return "", false
	}

	str, ok := val.(string)

	return str, ok
}

// GetBool retrieves a boolean value.
func (b *Blackboard) GetBool(key string) (bool, bool) {
	val, ok := b.Get(key)
	if !ok {
		return false, false
	}

	v, ok := val.(bool)

	return v, ok
}

// GetInt retrieves an integer value.
func (b *Blackboard) GetInt(key string) (int, bool) {
	val, ok := b.Get(key)
	if !ok {
		return 0, false
	}

	i, ok := val.(int)

	return i, ok
}

// GetFloat retrieves any numeric value as a float64. Numeric strings count.
func (b *Blackboard) GetFloat(key string) (float64, bool) {
	val, ok := b.Get(key)
	if !ok {
		return 0, false
	}

	return toFloat(val)
}

// Merge copies data into the blackboard.
func (b *Blackboard) Merge(data map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	maps.Copy(b.data, data)
}

// Snapshot returns a copy of the current contents.
func (b *Blackboard) Snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return maps.Clone(b.data)
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return f, err == nil
	default:
		return 0, false
	}
}

const dataPrefix = "data."

// Comparison operators, longest first so ">=" is not read as ">".
var expressionOperators = []string{"==", "!=", ">=", "<=", ">", "<"} //nolint:gochecknoglobals

// ExpressionGuard compiles expr into a guard reading bb. Supported forms:
//
//	always
//	data.key
//	!data.key
//	data.key == 'value'   (also !=, compared as strings)
//	data.key > 3          (also >=, <, <=, compared as numbers)
//
// An empty expression is "always". A missing key makes every comparison
// false except != and the negation. The guard key is "expr:" followed by the
// normalized expression, so equal expressions are equal guards.
func ExpressionGuard(bb *Blackboard, expr string) (Guard, error) {
	expr = strings.TrimSpace(expr)

	if expr == "" || expr == AlwaysKey {
		return Always(), nil
	}

	if bb == nil {
		return Guard{}, fmt.Errorf("%w: no blackboard for %q", ErrInvalidExpression, expr)
	}

	if left, op, right, found := splitComparison(expr); found {
		return comparisonGuard(bb, expr, op, strings.TrimSpace(left), strings.TrimSpace(right))
	}

	if key, ok := strings.CutPrefix(expr, "!"+dataPrefix); ok {
		if err := checkKey(expr, key); err != nil {
			return Guard{}, err
		}

		return NewGuard("expr:!"+dataPrefix+key, func() bool {
			value, exists := bb.GetBool(key)

			return !exists || !value
		}), nil
	}

	if key, ok := strings.CutPrefix(expr, dataPrefix); ok {
		if err := checkKey(expr, key); err != nil {
			return Guard{}, err
		}

		return NewGuard("expr:"+dataPrefix+key, func() bool {
			value, exists := bb.GetBool(key)

			return exists && value
		}), nil
	}

	return Guard{}, fmt.Errorf("%w: %s", ErrUnsupportedExpression, expr)
}

// MustExpressionGuard is ExpressionGuard that panics on error.
func MustExpressionGuard(bb *Blackboard, expr string) Guard {
	guard, err := ExpressionGuard(bb, expr)
	if err != nil {
		panic(err)
	}

	return guard
}

func checkKey(expr, key string) error {
	if key == "" || strings.ContainsAny(key, " \t'\"=!<>") {
		return fmt.Errorf("%w: %s", ErrInvalidExpression, expr)
	}

	return nil
}

// splitComparison cuts expr at its leftmost operator outside quotes.
func splitComparison(expr string) (left, op, right string, found bool) {
	var quote byte

	for i := 0; i < len(expr); i++ {
		c := expr[i]

		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}

			continue
		case c == '\'' || c == '"':
			quote = c

			continue
		}

		for _, candidate := range expressionOperators {
			if strings.HasPrefix(expr[i:], candidate) {
				return expr[:i], candidate, expr[i+len(candidate):], true
			}
		}
	}

	return "", "", "", false
}

// parseLiteral strips one pair of matching quotes. Unquoted literals must not
// contain operator or quote characters.
func parseLiteral(raw string) (string, bool) {
	if len(raw) >= 2 && (raw[0] == '\'' || raw[0] == '"') {
		if raw[len(raw)-1] != raw[0] {
			return "", false
		}

		inner := raw[1 : len(raw)-1]

		return inner, !strings.ContainsRune(inner, rune(raw[0]))
	}

	if raw == "" || strings.ContainsAny(raw, "=<>!'\"") {
		return "", false
	}

	return raw, true
}

func comparisonGuard(bb *Blackboard, expr, op, left, right string) (Guard, error) {
	key, ok := strings.CutPrefix(left, dataPrefix)
	if !ok {
		return Guard{}, fmt.Errorf("%w: %s", ErrUnsupportedExpression, expr)
	}

	if err := checkKey(expr, key); err != nil {
		return Guard{}, err
	}

	literal, ok := parseLiteral(right)
	if !ok {
		return Guard{}, fmt.Errorf("%w: %s", ErrInvalidExpression, expr)
	}
	guardKey := "expr:" + dataPrefix + key + " " + op + " " + literal

	switch op {
	case "==", "!=":
		negate := op == "!="

		return NewGuard(guardKey, func() bool {
			value, exists := bb.Get(key)
			if !exists {
				return negate
			}

			return (fmt.Sprint(value) == literal) != negate
		}), nil
	}

	threshold, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return Guard{}, fmt.Errorf("%w: %s: right side is not a number", ErrInvalidExpression, expr)
	}

	compare := numericComparison(op)

	return NewGuard(guardKey, func() bool {
		value, exists := bb.GetFloat(key)

		return exists && compare(value, threshold)
	}), nil
}

func numericComparison(op string) func(a, b float64) bool {
	switch op {
	case ">":
		return func(a, b float64) bool { return a > b }
	case ">=":
		return func(a, b float64) bool { return a >= b }
	case "<":
		return func(a, b float64) bool { return a < b }
	default:
		return func(a, b float64) bool { return a <= b }
	}
}
