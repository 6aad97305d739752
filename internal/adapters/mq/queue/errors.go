package queue

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrQueueFull   = errors.New("job queue full")
	ErrQueueClosed = errors.New("job queue closed")
	ErrTaskPanic   = errors.New("job task panicked")
)
