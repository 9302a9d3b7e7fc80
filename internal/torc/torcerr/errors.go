// Package torcerr classifies errors the way spec §7 requires: every error
// the core raises carries a Kind drawn from a closed taxonomy, plus enough
// context for the external HTTP/CLI surfaces to render {kind, message,
// details?} without re-deriving the classification from error strings.
//
// The shape is grounded on the teacher's pkg/errors classification package
// (ErrorCategory/ErrorSeverity/ClassifiedError) but keyed to the Kind
// taxonomy of spec.md §7 instead of the teacher's infra-oriented categories.
package torcerr

import (
	"errors"
	"fmt"
)

// Kind is the closed taxonomy of spec §7.
type Kind string

const (
	NotFound          Kind = "NotFound"
	Conflict          Kind = "Conflict"
	Unauthorized      Kind = "Unauthorized"
	Forbidden         Kind = "Forbidden"
	InvalidArgument   Kind = "InvalidArgument"
	CyclicDependency  Kind = "CyclicDependency"
	ImmutableField    Kind = "ImmutableField"
	StorageConflict   Kind = "StorageConflict"
	Transient         Kind = "Transient"
	AlreadyInitialized Kind = "AlreadyInitialized"
	ResourceBusy      Kind = "ResourceBusy"
)

// Error is a classified error. Message is safe to surface to a caller;
// Details carries optional field-level context (e.g. which field violated
// InvalidArgument).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a classified error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error under the given kind.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetail attaches a field-level detail and returns the same error for
// chaining at the call site.
func (e *Error) WithDetail(field, msg string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[field] = msg
	return e
}

// KindOf extracts the Kind of a classified error, defaulting to Transient
// for anything the core didn't explicitly classify — matching spec §7's
// instruction that storage timeouts and other unclassified failures are
// retried by workers rather than surfaced as hard errors.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return Transient
}

// Is reports whether err is classified with the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
