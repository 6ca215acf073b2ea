package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures for the external boundary. Every
// user-visible failure maps to exactly one kind plus a human-readable
// message.
type Kind string

const (
	// KindMalformedInput covers bad identifiers and missing required fields;
	// rejected before any mutation.
	KindMalformedInput Kind = "MALFORMED_INPUT"
	// KindDuplicateIdentifier is returned when a panel or order with the
	// same identifier already exists.
	KindDuplicateIdentifier Kind = "DUPLICATE_IDENTIFIER"
	// KindDuplicateInspection is returned when the (panel, station) pair
	// already has an inspection for the current rework cycle.
	KindDuplicateInspection Kind = "DUPLICATE_INSPECTION"
	// KindPrecondViolation names a violated workflow invariant; the caller
	// may retry with corrected input.
	KindPrecondViolation Kind = "PRECONDITION_VIOLATION"
	// KindValueOutOfRange rejects electrical readings outside physical
	// bounds; values are never silently clamped.
	KindValueOutOfRange Kind = "VALUE_OUT_OF_RANGE"
	// KindNotCompleted rejects pallet assignment of a panel that has not
	// reached Completed.
	KindNotCompleted Kind = "NOT_COMPLETED"
	// KindPalletClosed rejects assignment to a completed pallet.
	KindPalletClosed Kind = "PALLET_CLOSED"
	// KindPalletFull rejects assignment past capacity.
	KindPalletFull Kind = "PALLET_FULL"
	// KindAlreadyClosed rejects a manual close of an already-completed
	// pallet.
	KindAlreadyClosed Kind = "ALREADY_CLOSED"
	// KindNotFound is returned for unknown panels, orders and pallets.
	KindNotFound Kind = "NOT_FOUND"
	// KindTransient marks storage failures the caller may retry; the engine
	// itself never retries and guarantees no partial state was committed.
	KindTransient Kind = "TRANSIENT_FAILURE"
	// KindInternal marks programmer errors, e.g. referencing a station that
	// does not exist.
	KindInternal Kind = "INTERNAL"
)

// Error is the engine's typed error. Invariant names the violated rule for
// precondition failures; it is empty for the other kinds.
type Error struct {
	Kind      Kind
	Invariant string
	Message   string
	cause     error
}

func (e *Error) Error() string {
	if e.Invariant != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Invariant, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a typed engine error.
func NewError(kind Kind, invariant, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Invariant: invariant, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a cause to a typed engine error.
func WrapError(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf extracts the Kind from an error chain, or KindInternal when the
// error is not a workflow error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain contains a workflow error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
