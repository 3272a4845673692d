package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrIncomplete is returned when a course references a lesson that is
	// not stored yet.
	ErrIncomplete = errors.New("course incomplete")
)
