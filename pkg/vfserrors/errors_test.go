package vfserrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew_Error(t *testing.T) {
	err := New(FileNotFound, "stat", "").WithSource("file:///a.txt")
	want := "stat(file:///a.txt): FILE_NOT_FOUND: FILE_NOT_FOUND"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestNew_ErrorWithSourceAndTarget(t *testing.T) {
	err := New(FileMoveConflict, "move", "").
		WithSource("file:///a.txt").
		WithTarget("file:///b.txt")
	want := "move(file:///a.txt -> file:///b.txt): FILE_MOVE_CONFLICT: FILE_MOVE_CONFLICT"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("permission denied by os")
	err := Wrap(cause, FilePermissionDenied, "delete").WithSource("file:///secret")

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if got := err.Error(); got == "" {
		t.Fatal("expected a non-empty error message")
	}
}

func TestIs_UnwrapsWrappedError(t *testing.T) {
	base := New(FileExists, "createFile", "")
	wrapped := fmt.Errorf("rpc call failed: %w", base)

	if !Is(wrapped, FileExists) {
		t.Error("expected Is to unwrap through fmt.Errorf to match the code")
	}
	if Is(wrapped, FileNotFound) {
		t.Error("did not expect Is to match an unrelated code")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(errors.New("plain error")); got != Unknown {
		t.Errorf("CodeOf(plain error) = %v, want Unknown", got)
	}
	if got := CodeOf(nil); got != Unknown {
		t.Errorf("CodeOf(nil) = %v, want Unknown", got)
	}

	err := New(FileReadOnly, "writeFile", "")
	if got := CodeOf(err); got != FileReadOnly {
		t.Errorf("CodeOf(err) = %v, want FileReadOnly", got)
	}

	wrapped := fmt.Errorf("context: %w", err)
	if got := CodeOf(wrapped); got != FileReadOnly {
		t.Errorf("CodeOf(wrapped) = %v, want FileReadOnly", got)
	}
}

func TestCode_StringUnknownFallback(t *testing.T) {
	var c Code = 9999
	if got := c.String(); got != "UNKNOWN" {
		t.Errorf("String() on an unregistered code = %q, want %q", got, "UNKNOWN")
	}
}
