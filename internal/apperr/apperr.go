// Package apperr defines the error taxonomy shared by the tasak runners.
//
// Every failure a runner can surface maps to one of these kinds. Lower
// layers return a typed error and never exit; the command layer decides
// fatality and translates the kind into an exit code and a remedial hint.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a runner failure.
type Kind int

const (
	// ConfigMissing means the application or a required field is absent
	// from the merged configuration.
	ConfigMissing Kind = iota

	// NotAuthenticated means no credential entry exists for the app.
	NotAuthenticated

	// ReauthRequired means a stored credential could not be refreshed.
	ReauthRequired

	// TransportUnavailable means the tool server subprocess failed to
	// start or the connection was refused.
	TransportUnavailable

	// ToolNotFound means the requested tool is absent from the catalog.
	ToolNotFound

	// EmptyCatalog means a live fetch returned zero tools.
	EmptyCatalog

	// ToolExecutionError means the tool itself reported a failure.
	ToolExecutionError
)

func (k Kind) String() string {
	switch k {
	case ConfigMissing:
		return "config missing"
	case NotAuthenticated:
		return "not authenticated"
	case ReauthRequired:
		return "re-authentication required"
	case TransportUnavailable:
		return "transport unavailable"
	case ToolNotFound:
		return "tool not found"
	case EmptyCatalog:
		return "empty catalog"
	case ToolExecutionError:
		return "tool execution error"
	default:
		return "unknown"
	}
}

// Error is a classified runner failure. Hint, when set, names the exact
// command the user should run to recover.
type Error struct {
	Kind Kind
	Msg  string
	Hint string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// WithHint attaches a remedial command to the error.
func (e *Error) WithHint(format string, args ...interface{}) *Error {
	e.Hint = fmt.Sprintf(format, args...)
	return e
}

// IsKind reports whether err (or anything it wraps) is an *Error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// HintOf returns the remedial hint carried by err, if any.
func HintOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Hint
	}
	return ""
}

// ExitCode maps an error to the process exit code. Nil is success; user
// interrupts are reported with the conventional SIGINT code by the caller.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
