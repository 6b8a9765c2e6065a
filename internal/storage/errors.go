package storage

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrStatusConflict is returned when a run transition is attempted from a
	// status that does not allow it, including any write to a terminal run.
	ErrStatusConflict = errors.New("storage: run status conflict")
)
