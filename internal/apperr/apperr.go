// Package apperr implements a closed error taxonomy. Handlers at the
// HTTP boundary are the only place that knows how a Kind maps to a
// status code (respondErr in internal/api/server.go); every other layer just
// returns an *Error.
package apperr

import "fmt"

// Kind is the closed set of error categories the core can produce.
type Kind string

const (
	NotFound        Kind = "NOT_FOUND"
	Conflict        Kind = "CONFLICT"
	Validation      Kind = "VALIDATION"
	RuleViolation   Kind = "RULE_VIOLATION"
	InsufficientData Kind = "INSUFFICIENT_DATA"
	OutOfRange      Kind = "OUT_OF_RANGE"
	Forbidden       Kind = "FORBIDDEN"
	Unavailable     Kind = "UNAVAILABLE"
	Timeout         Kind = "TIMEOUT"
	Internal        Kind = "INTERNAL"
)

// Error is the typed error every layer returns instead of ad-hoc errors.
type Error struct {
	Kind    Kind
	Code    string // stable machine code, e.g. a RULE_VIOLATION reason
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no machine code (used for generic kinds).
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithCode builds an *Error carrying a stable machine code (rule-violation
// reasons, conflict reasons).
func WithCode(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a Kind to an underlying cause, e.g. a store transient fault.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Internal for anything
// that isn't an *Error — the boundary must still answer with something.
func KindOf(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return Internal
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
