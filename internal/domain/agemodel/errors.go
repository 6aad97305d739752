package agemodel

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInsufficientTiePoints = errors.New("insufficient tie points")
	ErrNonMonotonicTiePoints = errors.New("non-monotonic tie points")
	ErrInvalidTiePoint       = errors.New("invalid tie point")
	ErrForeignTiePoint       = errors.New("tie point belongs to another section")
	ErrTiePointNotFound      = errors.New("tie point not found")
)

// NonMonotonicError names the adjacent pair (in depth order) whose ages do
// not increase, or whose depths coincide.
type NonMonotonicError struct {
	Prev TiePoint
	Next TiePoint
}

func (e *NonMonotonicError) Error() string {
	if e.Prev.Depth == e.Next.Depth {
		return fmt.Sprintf("%v: %s and %s share depth %g",
			ErrNonMonotonicTiePoints, e.Prev.ID, e.Next.ID, e.Prev.Depth)
	}
	return fmt.Sprintf("%v: %s (depth %g, age %g) then %s (depth %g, age %g)",
		ErrNonMonotonicTiePoints,
		e.Prev.ID, e.Prev.Depth, e.Prev.Age,
		e.Next.ID, e.Next.Depth, e.Next.Age)
}

func (e *NonMonotonicError) Unwrap() error { return ErrNonMonotonicTiePoints }
