// Package vfserrors defines the single operation-error taxonomy that
// FileService uses to report failures. Providers and the provider registry
// may already return *Error values; FileService keeps a code it receives
// where it can and wraps other errors into this taxonomy, keeping
// business-logic errors distinct from infrastructure errors while flowing
// through one error type.
package vfserrors

import (
	"errors"
	"fmt"
)

// Code discriminates the kind of failure a FileService operation reports.
type Code int

const (
	// Unknown is used for provider errors that could not be normalized;
	// the original error is preserved as Cause and its message is kept.
	Unknown Code = iota

	FileNotFound
	FileIsDirectory
	FileNotADirectory
	FileExists
	FileModifiedSince
	FileNotModifiedSince
	FileMoveConflict
	FilePermissionDenied
	FileReadOnly
	FileInvalidPath
	NoProvider
)

var codeNames = map[Code]string{
	Unknown:              "UNKNOWN",
	FileNotFound:         "FILE_NOT_FOUND",
	FileIsDirectory:      "FILE_IS_DIRECTORY",
	FileNotADirectory:    "FILE_NOT_A_DIRECTORY",
	FileExists:           "FILE_EXISTS",
	FileModifiedSince:    "FILE_MODIFIED_SINCE",
	FileNotModifiedSince: "FILE_NOT_MODIFIED_SINCE",
	FileMoveConflict:     "FILE_MOVE_CONFLICT",
	FilePermissionDenied: "FILE_PERMISSION_DENIED",
	FileReadOnly:         "FILE_READ_ONLY",
	FileInvalidPath:      "FILE_INVALID_PATH",
	NoProvider:           "NoProvider",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// Error is the single operation-error type carried across FileService,
// the remote bridge, and the resource façade.
type Error struct {
	Code   Code
	Op     string // operation name: "resolve", "writeFile", "move", ...
	Source string // source URI, when applicable
	Target string // target URI, when applicable (move/copy)
	Msg    string // human-readable detail, set when Cause is nil or opaque
	Cause  error  // wrapped provider/infra error, if any
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = e.Code.String()
	}
	switch {
	case e.Source != "" && e.Target != "":
		return fmt.Sprintf("%s(%s -> %s): %s: %s", e.Op, e.Source, e.Target, e.Code, msg)
	case e.Source != "":
		return fmt.Sprintf("%s(%s): %s: %s", e.Op, e.Source, e.Code, msg)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with no wrapped cause.
func New(code Code, op string, msg string) *Error {
	return &Error{Code: code, Op: op, Msg: msg}
}

// Wrap constructs an Error around a provider/infra error, normalizing it
// into code. The original error is retained as Cause so errors.Is/As
// against it still works through Unwrap.
func Wrap(cause error, code Code, op string) *Error {
	return &Error{Code: code, Op: op, Cause: cause}
}

// WithSource and WithTarget attach context URIs and return the receiver,
// so constructors read as New(...).WithSource(uri).
func (e *Error) WithSource(uri string) *Error { e.Source = uri; return e }
func (e *Error) WithTarget(uri string) *Error { e.Target = uri; return e }

// Is reports whether err carries the given Code, unwrapping as needed so
// that an Error wrapped by fmt.Errorf("...: %w", err) still matches.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the Code from err, or Unknown if err is not (or does not
// wrap) an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}
