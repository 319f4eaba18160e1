package team

import "errors"

var (
	// ErrNotFound indicates the team doesn't exist.
	ErrNotFound = errors.New("team not found")
	// ErrInvalidInput indicates invalid input for team operations.
	ErrInvalidInput = errors.New("invalid team input")
	// ErrInactive indicates the team has been deactivated.
	ErrInactive = errors.New("team is inactive")
)
