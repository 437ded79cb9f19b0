// Package failure defines the error taxonomy shared by every wallet component.
// Collaborator clients convert transport and remote errors into one of these kinds
// at their boundary, so callers only ever match on the sentinels below.
package failure

import (
	"errors"
	"fmt"
)

// Kind is the taxonomy bucket of an error.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindDelivery          Kind = "delivery"
	KindNotFound          Kind = "not_found"
	KindExpired           Kind = "expired"
	KindMismatch          Kind = "mismatch"
	KindCooldown          Kind = "cooldown_active"
	KindAttemptInProgress Kind = "attempt_in_progress"
	KindInvalidTransition Kind = "invalid_state_transition"
	KindRemoteRejected    Kind = "remote_commit_rejected"
	KindStaleData         Kind = "stale_data"
)

// Error is the concrete error type for every taxonomy kind.
type Error struct {
	Kind Kind
	// Code narrows a kind (e.g. unknown_recipient within validation). Optional.
	Code string
	// Field names the offending input field for validation errors.
	Field   string
	Message string
	Err     error
}

// Sentinels. Match with errors.Is; construct concrete errors with New or Wrap.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrUnknownRecipient  = &Error{Kind: KindValidation, Code: "unknown_recipient"}
	ErrDelivery          = &Error{Kind: KindDelivery}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrExpired           = &Error{Kind: KindExpired}
	ErrMismatch          = &Error{Kind: KindMismatch, Code: "invalid_code"}
	ErrCooldownActive    = &Error{Kind: KindCooldown}
	ErrAttemptInProgress = &Error{Kind: KindAttemptInProgress}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrRemoteRejected    = &Error{Kind: KindRemoteRejected}
	ErrStaleData         = &Error{Kind: KindStaleData}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
		if e.Code != "" {
			msg += ": " + e.Code
		}
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel of the same kind. A sentinel with a Code only
// matches errors carrying that code; a sentinel without one matches the whole kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// New returns an error of the sentinel's kind and code with a human-readable message.
func New(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap is New with an underlying cause kept for errors.Unwrap.
func Wrap(sentinel *Error, err error, format string, args ...any) *Error {
	e := New(sentinel, format, args...)
	e.Err = err
	return e
}

// Invalid returns a validation error bound to an input field.
func Invalid(field, format string, args ...any) *Error {
	e := New(ErrValidation, format, args...)
	e.Field = field
	return e
}

// KindOf returns the taxonomy kind of err, or "" if err is not a taxonomy error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the human-readable part of err suitable for showing to a user.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Recoverable reports whether the caller may retry within the same attempt.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindDelivery, KindMismatch, KindCooldown, KindStaleData:
		return true
	default:
		return false
	}
}
