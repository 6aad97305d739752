package correlation

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInsufficientOverlap = errors.New("insufficient overlap")
	ErrInvalidLagRange     = errors.New("invalid lag range")
)
