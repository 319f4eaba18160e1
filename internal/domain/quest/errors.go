package quest

import "errors"

var (
	// ErrNotFound indicates the quest doesn't exist.
	ErrNotFound = errors.New("quest not found")
	// ErrInvalidInput indicates invalid input for quest operations.
	ErrInvalidInput = errors.New("invalid quest input")
	// ErrNoAssignableQuest indicates every active quest is excluded for the team.
	ErrNoAssignableQuest = errors.New("no assignable quest")
)
