// Package apperr defines the error taxonomy shared by the storage adapters
// and the lifecycle engine. Every public operation returns an *Error (or an
// error wrapping one) so callers can branch on Kind.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindValidation         Kind = "validation"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindInvalidTransition  Kind = "invalid_transition"
	KindAlreadyInProgress  Kind = "already_in_progress"
	KindConstraint         Kind = "constraint"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindNotInitialized     Kind = "not_initialized"
)

// Retryable reports whether a caller may retry the failed operation as-is.
func (k Kind) Retryable() bool {
	return k == KindStorageUnavailable
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind, so errors.Is(err, apperr.ErrNotFound)
// holds for any not-found failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrAlreadyInProgress  = &Error{Kind: KindAlreadyInProgress}
	ErrConstraint         = &Error{Kind: KindConstraint}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable}
	ErrNotInitialized     = &Error{Kind: KindNotInitialized}
)

// New builds a classified error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. An error that is already classified keeps its kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, format, args...)
}

func Forbidden(op, format string, args ...any) *Error {
	return New(KindForbidden, op, format, args...)
}

func NotFound(op, format string, args ...any) *Error {
	return New(KindNotFound, op, format, args...)
}

func InvalidTransition(op, format string, args ...any) *Error {
	return New(KindInvalidTransition, op, format, args...)
}

func Constraint(op, format string, args ...any) *Error {
	return New(KindConstraint, op, format, args...)
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

const accessDenied = "You do not have access to this event."

// UserMessage renders err for end users. NotFound and Forbidden produce the
// same text so that responses never reveal whether a record exists.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if !errors.As(err, &ae) {
		return "Something went wrong. Please try again."
	}
	switch ae.Kind {
	case KindNotFound, KindForbidden:
		return accessDenied
	case KindValidation, KindConstraint:
		if ae.Message != "" {
			return ae.Message
		}
		return ae.Error()
	case KindInvalidTransition:
		return "This action is not available for the event right now."
	case KindAlreadyInProgress:
		return "XP awarding is already running for this event."
	case KindStorageUnavailable, KindNotInitialized:
		return "The data store is unavailable. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
