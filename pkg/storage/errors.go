package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a discussion does not exist or has been deleted.
	ErrNotFound = errors.New("discussion not found")

	// ErrConflict is returned when a discussion was modified concurrently
	// since it was read.
	ErrConflict = errors.New("discussion modified concurrently")
)
