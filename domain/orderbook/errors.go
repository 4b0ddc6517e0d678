package orderbook

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by cancel/replace/amend when the id is
// unknown or the order already reached a terminal state. The race
// between a cancel request and a concurrent match resolves as
// "matching wins": if the match was sequenced first, cancel reports
// ErrNotFound.
var ErrNotFound = errors.New("orderbook: order not found")

// ValidationError rejects bad input before any book mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "orderbook: invalid order: " + e.Reason
}

func errValidation(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// InvariantError signals internal corruption (crossed book after an
// operation returned, index/level desynchronization). It is fatal to
// the instance: the book refuses all further mutation once raised, so
// a bug cannot be mistaken for bad input.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "orderbook: invariant violation: " + e.Detail
}
