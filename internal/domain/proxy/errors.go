package proxy

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrEmptySeries        = errors.New("empty series")
	ErrDuplicatePosition  = errors.New("duplicate position")
	ErrUnorderedPositions = errors.New("positions not increasing")
	ErrInvalidPosition    = errors.New("invalid position")
	ErrInvalidAxis        = errors.New("invalid axis")
	ErrAxisMismatch       = errors.New("axis mismatch")
)

// PositionError identifies the sample that broke a series ordering rule.
type PositionError struct {
	Kind     error
	Index    int
	Position float64
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("%v at sample %d (position %g)", e.Kind, e.Index, e.Position)
}

func (e *PositionError) Unwrap() error { return e.Kind }
