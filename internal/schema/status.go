package schema

import (
	"errors"
	"fmt"
)

// Status tracks an element through the pipeline.
type Status string

const (
	// StatusDocumented marks elements whose existing docs are kept. They
	// never enter generation.
	StatusDocumented   Status = "documented"
	StatusUndocumented Status = "undocumented"
	StatusGenerated    Status = "generated"
	StatusAccepted     Status = "accepted"
	StatusFlagged      Status = "flagged"
	StatusRefined      Status = "refined"
	StatusFailed       Status = "failed"
)

// ErrInvalidTransition is returned for a status change the pipeline does
// not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[Status][]Status{
	StatusUndocumented: {StatusGenerated, StatusFailed},
	StatusGenerated:    {StatusAccepted, StatusFlagged},
	StatusFlagged:      {StatusRefined, StatusFailed},
	StatusRefined:      {StatusAccepted, StatusFlagged, StatusFailed},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func transitionError(path Path, from, to Status) error {
	return fmt.Errorf("%w: %s: %s -> %s", ErrInvalidTransition, path, from, to)
}
