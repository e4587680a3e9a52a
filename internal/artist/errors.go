package artist

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariant marks any violation of the graph invariants. A graph that
	// fails validation must not be used.
	ErrInvariant = errors.New("artist graph invariant violated")

	// ErrDuplicateEdge is returned when a membership edge already exists.
	// It also matches ErrInvariant.
	ErrDuplicateEdge = fmt.Errorf("%w: duplicate membership edge", ErrInvariant)

	// ErrNotFound is returned when an artist or line-up does not exist.
	ErrNotFound = errors.New("artist not found")
)

// InvariantError describes one invariant violation.
type InvariantError struct {
	Op     string
	Reason string
	Err    error
}

func (e *InvariantError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Reason)
}

func (e *InvariantError) Unwrap() error { return e.Err }

func invariantf(op, format string, args ...any) error {
	return &InvariantError{Op: op, Reason: fmt.Sprintf(format, args...), Err: ErrInvariant}
}

func duplicateEdge(op string, m Membership) error {
	return &InvariantError{Op: op, Reason: m.String(), Err: ErrDuplicateEdge}
}
