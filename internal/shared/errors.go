package shared

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the presentation boundary.
type Kind string

const (
	// KindValidation marks malformed or out-of-range input.
	KindValidation Kind = "validation"
	// KindNotFound marks a missing warehouse, product or record.
	KindNotFound Kind = "not_found"
	// KindDuplicate marks unique-constraint violations.
	KindDuplicate Kind = "duplicate"
	// KindInsufficientStock marks a decrement exceeding available quantity.
	KindInsufficientStock Kind = "insufficient_stock"
	// KindConflict marks lost-update or duplicate-submission conflicts.
	KindConflict Kind = "conflict"
	// KindPersistence marks storage failures; details stay internal.
	KindPersistence Kind = "persistence"
)

// Error carries a kind alongside a user-displayable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind, defaulting to persistence for unclassified errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindPersistence
}

// UserSafeMessage returns a message safe to surface verbatim. Persistence
// failures collapse into a generic retry prompt so storage internals never
// leak to users.
func UserSafeMessage(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Kind != KindPersistence {
		return se.Message
	}
	return "could not complete operation, please retry"
}
