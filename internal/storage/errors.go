package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable is returned when the backing store cannot be reached
	// or rejects a read/write. Callers keep running on in-memory state.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
