package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("entity conflict")

	// ErrPreconditionFailed is returned when a guarded update finds the row
	// no longer in the expected state.
	ErrPreconditionFailed = errors.New("precondition failed")
)
