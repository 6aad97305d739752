package proxy

import (
	"fmt"
	"strings"
)

// Axis tags what a series position measures.
type Axis int

const (
	// AxisDepth positions are depths below the section top.
	AxisDepth Axis = iota + 1
	// AxisAge positions are ages in ka.
	AxisAge
)

func (a Axis) String() string {
	switch a {
	case AxisDepth:
		return "depth"
	case AxisAge:
		return "age"
	default:
		return "unknown"
	}
}

// Valid reports whether a is one of the declared axes.
func (a Axis) Valid() bool { return a == AxisDepth || a == AxisAge }

// ParseAxis accepts "depth" or "age" (case-insensitive).
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "depth":
		return AxisDepth, nil
	case "age":
		return AxisAge, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAxis, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Axis) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAxis, int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Axis) UnmarshalText(b []byte) error {
	parsed, err := ParseAxis(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
