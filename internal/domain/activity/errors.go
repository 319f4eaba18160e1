package activity

import "errors"

var (
	// ErrInvalidInput indicates invalid input for activity operations.
	ErrInvalidInput = errors.New("invalid activity input")
	// ErrTeamNotFound indicates the audited team doesn't exist.
	ErrTeamNotFound = errors.New("team not found")
)
