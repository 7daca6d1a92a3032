package registry

import (
	"errors"
	"fmt"
)

// Kind is the machine-checkable discriminant of a registry error.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindAlreadyExists
	KindUnauthorized
	KindInvalidInput
	KindConflict
	KindDependencyUnavailable
)

var kindNames = map[Kind]string{
	KindInternal:              "Internal",
	KindNotFound:              "NotFound",
	KindAlreadyExists:         "AlreadyExists",
	KindUnauthorized:          "Unauthorized",
	KindInvalidInput:          "InvalidInput",
	KindConflict:              "Conflict",
	KindDependencyUnavailable: "DependencyUnavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the only error type returned to callers of the Service.
// Message is safe to show to users; Err carries the underlying cause and is
// never rendered by the transport layers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrAlreadyExists         = &Error{Kind: KindAlreadyExists}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrDependencyUnavailable = &Error{Kind: KindDependencyUnavailable}
	ErrInternal              = &Error{Kind: KindInternal}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NotFound error. Exported for Database implementations.
func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// Conflictf builds a Conflict error wrapping cause.
func Conflictf(cause error, format string, args ...any) *Error {
	e := newError(KindConflict, format, args...)
	e.Err = cause
	return e
}

// Unavailable wraps a collaborator failure.
func Unavailable(what string, cause error) *Error {
	return &Error{Kind: KindDependencyUnavailable, Message: what + " unavailable", Err: cause}
}

// KindOf returns the kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
