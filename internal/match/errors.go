package match

import "errors"

// Domain errors for the match package, checked with errors.Is().
var (
	// ErrMatchNotFound is returned when a match ID does not exist.
	ErrMatchNotFound = errors.New("match: not found")

	// ErrInvalidTransition is returned when an operation is not legal in
	// the match's current state.
	ErrInvalidTransition = errors.New("match: invalid state transition")

	// ErrNotCreator is returned when a non-creator attempts a
	// creator-only operation (start, cancel, end).
	ErrNotCreator = errors.New("match: only the creator may do this")
)
