package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an optimistic concurrency check fails
	ErrConflict = errors.New("conflict: entity was modified concurrently")

	// ErrDuplicate is returned when a unique constraint fails
	ErrDuplicate = errors.New("duplicate entity")

	// ErrRetryExhausted is returned when a transaction kept conflicting
	// past its retry bound. The operation is safe to retry later.
	ErrRetryExhausted = errors.New("transaction retries exhausted")
)
