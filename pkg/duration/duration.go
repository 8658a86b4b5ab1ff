// Package duration parses human-readable interval strings ("30m", "1.5h")
// into time.Duration values with millisecond precision. It exists so that
// every time-based component in the system interprets configuration the same
// way; the parser is a pure function and safe to call from replayed workflow
// code.
package duration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ErrInvalid is returned for negative, non-finite, or unrecognized input.
var ErrInvalid = errors.New("invalid duration")

// unitMillis maps a normalized unit suffix to its length in milliseconds.
var unitMillis = map[string]float64{
	"ms":      1,
	"s":       1000,
	"sec":     1000,
	"second":  1000,
	"seconds": 1000,
	"m":       60 * 1000,
	"min":     60 * 1000,
	"minute":  60 * 1000,
	"minutes": 60 * 1000,
	"h":       60 * 60 * 1000,
	"hr":      60 * 60 * 1000,
	"hour":    60 * 60 * 1000,
	"hours":   60 * 60 * 1000,
	"d":       24 * 60 * 60 * 1000,
	"day":     24 * 60 * 60 * 1000,
	"days":    24 * 60 * 60 * 1000,
	"w":       7 * 24 * 60 * 60 * 1000,
	"week":    7 * 24 * 60 * 60 * 1000,
	"weeks":   7 * 24 * 60 * 60 * 1000,
}

// Parse converts v to a duration. Accepted inputs are a non-negative number
// of milliseconds (any integer or float type), a bare numeric string (also
// milliseconds), or a "<number><unit>" string such as "30m" or "1.5h".
// Fractional results are floored to whole milliseconds.
func Parse(v any) (time.Duration, error) {
	switch x := v.(type) {
	case string:
		return ParseString(x)
	case int:
		return fromMillis(float64(x))
	case int32:
		return fromMillis(float64(x))
	case int64:
		return fromMillis(float64(x))
	case float32:
		return fromMillis(float64(x))
	case float64:
		return fromMillis(x)
	case time.Duration:
		if x < 0 {
			return 0, fmt.Errorf("%w: negative value %s", ErrInvalid, x)
		}
		return x, nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalid, v)
	}
}

// ParseString parses a duration string. The unit suffix is case-insensitive;
// surrounding whitespace is ignored.
func ParseString(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalid)
	}

	// Split the numeric prefix from the unit suffix.
	split := len(trimmed)
	for i, r := range trimmed {
		if unicode.IsLetter(r) {
			split = i
			break
		}
	}
	numPart := strings.TrimSpace(trimmed[:split])
	unitPart := strings.ToLower(strings.TrimSpace(trimmed[split:]))

	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if unitPart == "" {
		return fromMillis(n)
	}
	factor, ok := unitMillis[unitPart]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q in %q", ErrInvalid, unitPart, s)
	}
	return fromMillis(n * factor)
}

func fromMillis(ms float64) (time.Duration, error) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0, fmt.Errorf("%w: non-finite value", ErrInvalid)
	}
	if ms < 0 {
		return 0, fmt.Errorf("%w: negative value", ErrInvalid)
	}
	return time.Duration(math.Floor(ms)) * time.Millisecond, nil
}

// Format renders d in the largest canonical unit that divides it evenly,
// preferring w > d > h > m > s > ms. Parse(Format(d)) == d for any
// millisecond-aligned duration.
func Format(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 {
		return "0ms"
	}
	type unit struct {
		suffix string
		millis int64
	}
	units := []unit{
		{"w", 7 * 24 * 60 * 60 * 1000},
		{"d", 24 * 60 * 60 * 1000},
		{"h", 60 * 60 * 1000},
		{"m", 60 * 1000},
		{"s", 1000},
	}
	for _, u := range units {
		if ms%u.millis == 0 {
			return fmt.Sprintf("%d%s", ms/u.millis, u.suffix)
		}
	}
	return fmt.Sprintf("%dms", ms)
}
