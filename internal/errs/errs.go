// Package errs defines the closed set of error kinds used across the
// server, per the propagation policy in the core specification: every
// operation returns a structured error with a stable kind tag and a
// human-readable message, and no stack traces cross the plugin RPC or
// platform boundaries.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the behavioral error categories recognized by the core.
type Kind string

const (
	Auth         Kind = "Auth"
	Platform     Kind = "Platform"
	NotFound     Kind = "NotFound"
	InvalidInput Kind = "InvalidInput"
	Conflict     Kind = "Conflict"
	Database     Kind = "Database"
	Parse        Kind = "Parse"
	Io           Kind = "Io"
)

// Error is the concrete structured error carried across component
// boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf attaches a kind and formatted message to an underlying cause.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, walking the Unwrap chain. Returns
// ("", false) if no *Error is found anywhere in the chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
