package domain

import "errors"

var (
	// ErrNotFound indicates a referenced user or post does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a request was rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the active user's role does not allow the action.
	ErrForbidden = errors.New("forbidden")
)
