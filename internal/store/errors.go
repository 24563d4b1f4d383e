package store

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")

	// ErrTerminal is returned by conditional execution updates when the row
	// is already in a terminal status. Callers discard the pending write.
	ErrTerminal = errors.New("execution already in terminal status")
)
