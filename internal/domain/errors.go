package domain

import "errors"

var (
	// ErrValidation marks malformed or incomplete input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing persistent record.
	ErrNotFound = errors.New("not found")
)
