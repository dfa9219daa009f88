package types

import "fmt"

// Status represents the lifecycle state of a step or scenario.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Terminal reports whether the status is an end state that cannot transition further.
func (s Status) Terminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// InvalidStateError indicates a lifecycle method was called out of order.
// These are programmer errors in the calling integration and are surfaced
// loudly instead of being swallowed like reporting failures.
type InvalidStateError struct {
	Entity string // "step", "scenario" or "execution"
	Op     string // the attempted operation
	State  Status // the state the entity was in
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s %s while %s", e.Op, e.Entity, e.State)
}

// NewInvalidStateError creates a new InvalidStateError.
func NewInvalidStateError(entity, op string, state Status) *InvalidStateError {
	return &InvalidStateError{Entity: entity, Op: op, State: state}
}
