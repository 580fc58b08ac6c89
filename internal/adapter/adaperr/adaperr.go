// Package adaperr defines the tagged-kind error taxonomy shared across the
// adapter. Most components return one of these kinds rather than a bare
// error so that the dispatcher can translate failures into well-formed DAP
// error responses without guessing at intent.
package adaperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an adapter error into the taxonomy the dispatcher uses to
// decide how a failure surfaces on the wire.
type Kind string

const (
	KindConfiguration Kind = "ConfigurationError"
	KindTransport      Kind = "TransportError"
	KindIPC            Kind = "IPCError"
	KindDebuggee       Kind = "DebuggeeError"
	KindTimeout        Kind = "TimeoutError"
	KindProtocol       Kind = "ProtocolError"
	KindValidation     Kind = "ValidationError"
)

// Error is the adapter's concrete error type. Details carry structured
// context (e.g. {"command": "evaluate"}) mirrored into a DAP response body.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an existing error, preserving
// it as Cause via github.com/pkg/errors so Cause()/stack traces keep working.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: errors.Wrap(cause, message)}
}

// WithDetail attaches a structured detail key/value and returns the receiver
// for chaining at the call site.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// As extracts the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Configuration, Transport, IPC, Debuggee, Timeout, Protocol, and Validation
// are shorthand constructors for the corresponding Kind.
func Configuration(format string, args ...any) *Error {
	return New(KindConfiguration, fmt.Sprintf(format, args...))
}

func Transport(format string, args ...any) *Error {
	return New(KindTransport, fmt.Sprintf(format, args...))
}

func IPC(format string, args ...any) *Error {
	return New(KindIPC, fmt.Sprintf(format, args...))
}

func Debuggee(format string, args ...any) *Error {
	return New(KindDebuggee, fmt.Sprintf(format, args...))
}

func Timeout(format string, args ...any) *Error {
	return New(KindTimeout, fmt.Sprintf(format, args...))
}

func Protocol(format string, args ...any) *Error {
	return New(KindProtocol, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}
