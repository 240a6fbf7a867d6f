package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row, or a
	// conditional update affects no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert violates a unique
	// constraint.
	ErrDuplicate = errors.New("already exists")
)
