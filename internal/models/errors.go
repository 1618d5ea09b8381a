package models

import (
	"errors"
	"fmt"
)

// Kind sentinels for the error taxonomy. Every public operation returns
// either a success value or an error wrapping exactly one of these, so
// callers can branch with errors.Is and transports can map to a status.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrAuthorization = errors.New("not authorized")
	ErrConflict      = errors.New("conflict")
	ErrDependency    = errors.New("dependency unavailable")
)

// Error carries the kind plus enough detail to act on (which field, which
// permission) without leaking identifiers of unrelated records.
type Error struct {
	Kind  error
	Field string
	Msg   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Validation reports malformed or missing input for the named field.
func Validation(field, msg string) error {
	return &Error{Kind: ErrValidation, Field: field, Msg: msg}
}

// NotFound reports an absent conversation, message, or user.
func NotFound(what string) error {
	return &Error{Kind: ErrNotFound, Msg: what}
}

// Authorization reports a missing permission.
func Authorization(msg string) error {
	return &Error{Kind: ErrAuthorization, Msg: msg}
}

// Conflict reports a duplicate record or a lost concurrent-create race.
func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Msg: msg}
}

// Dependency wraps an underlying store failure.
func Dependency(err error) error {
	return &Error{Kind: ErrDependency, Msg: err.Error()}
}
