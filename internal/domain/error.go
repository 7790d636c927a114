package domain

import "errors"

var (
	// Common domain errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEmptyMessage    = errors.New("message text is empty")
)

// ErrInvalidExecContext is returned when a repository receives a transaction
// handle of a type it does not understand.
var ErrInvalidExecContext = errors.New("invalid execution context")
