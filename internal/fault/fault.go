// Package fault defines the tagged error kinds shared across the core
// services, so callers can branch on failure class without inspecting
// concrete types.
package fault

import (
	"errors"
	"fmt"
)

// Kind tags an error with its failure class.
type Kind string

const (
	// InsufficientBalance means a hold could not be placed. Recoverable by
	// the caller (top up and retry).
	InsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	// NotFound means the referenced job or user is unknown.
	NotFound Kind = "NOT_FOUND"
	// InvalidTransition means settlement was attempted from a status that
	// forbids it; indicates a caller or worker bug.
	InvalidTransition Kind = "INVALID_TRANSITION"
	// UnknownFixType means the reconciliation fix type is not recognized.
	UnknownFixType Kind = "UNKNOWN_FIX_TYPE"
	// InvalidPrecondition means a reconciliation fix's precondition on the
	// job's current state does not hold.
	InvalidPrecondition Kind = "INVALID_PRECONDITION"
	// Validation means the request itself was malformed.
	Validation Kind = "VALIDATION"
)

// Error is a kinded error. All core-service failures that callers are
// expected to branch on are of this type; infrastructure failures are
// plain wrapped errors.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New returns a kinded error.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Newf returns a kinded error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, unwrapping as needed. The boolean is
// false when err carries no kind.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// Is reports whether err is tagged with the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
