package proximity

import "errors"

var (
	// ErrInvalidRadius indicates a non-positive or non-finite radius.
	ErrInvalidRadius = errors.New("radius must be a positive number of meters")
	// ErrSubscriptionEnded indicates a range subscription closed without being asked to.
	ErrSubscriptionEnded = errors.New("range subscription ended")
)
