package repository

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNotFound      = errors.New("section not found")
	ErrAlreadyExists = errors.New("section already exists")
	ErrStaleVersion  = errors.New("age model version is stale")
)
