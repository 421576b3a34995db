// Package apperr defines the error taxonomy shared by the commerce pipeline.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindForbidden           Kind = "forbidden"
	KindInvalid             Kind = "invalid"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindInternal            Kind = "internal"
)

// Error carries a stable code and message. Values declared at package level are
// sentinels and are matched with errors.Is.
type Error struct {
	Kind    Kind
	Code    string
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

// Is matches on code so that a wrapped copy of a sentinel still matches it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Wrap returns a copy of e that carries cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

// Retryable reports whether the caller may retry the same request.
func (e *Error) Retryable() bool {
	return e.Kind == KindUpstreamUnavailable
}

func NotFound(code, msg string) *Error  { return &Error{Kind: KindNotFound, Code: code, Message: msg} }
func Conflict(code, msg string) *Error  { return &Error{Kind: KindConflict, Code: code, Message: msg} }
func Forbidden(code, msg string) *Error { return &Error{Kind: KindForbidden, Code: code, Message: msg} }
func Invalid(code, msg string) *Error   { return &Error{Kind: KindInvalid, Code: code, Message: msg} }

// Upstream reports a failed or timed-out call to an external collaborator.
func Upstream(code, msg string, cause error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Code: code, Message: msg, Err: cause}
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for untyped errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
