package ledger

import "errors"

var (
	// ErrAlreadySolved indicates the team has already solved the quest.
	ErrAlreadySolved = errors.New("quest already solved by team")
	// ErrInvalidInput indicates invalid input for ledger operations.
	ErrInvalidInput = errors.New("invalid answer input")
)
