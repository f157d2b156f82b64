package generator

import (
	"errors"
	"fmt"
)

// Kind classifies a phase failure so callers can map it to a status code or
// branch on it without parsing messages.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindInsufficientCredits Kind = "insufficient_credits"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindInvalidState        Kind = "invalid_state"
	KindStorage             Kind = "storage_error"
	KindGeneration          Kind = "generation_failed"
	KindPersistence         Kind = "persistence_error"
	KindTimedOut            Kind = "timed_out"
)

// Error is the failure half of a phase result. Debited reports whether the
// phase's cost had been taken from the ledger before the failure, in which
// case a refund was already attempted.
type Error struct {
	Kind    Kind
	Message string
	Debited bool
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err, or "" for untyped errors.
func KindOf(err error) Kind {
	var phaseErr *Error
	if errors.As(err, &phaseErr) {
		return phaseErr.Kind
	}
	return ""
}

// WasDebited reports whether err carries a compensated debit.
func WasDebited(err error) bool {
	var phaseErr *Error
	if errors.As(err, &phaseErr) {
		return phaseErr.Debited
	}
	return false
}
