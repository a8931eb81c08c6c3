package session

import "errors"

// ErrVoteLocked is returned when a repeat ballot arrives without the
// change-of-vote flag set.
var ErrVoteLocked = errors.New("session: vote already cast")
