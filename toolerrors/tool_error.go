// Package toolerrors provides the structured failure type a tool body's
// Err(...) result carries. A ToolError keeps the human-readable message that
// flows into the model-facing Completion alongside an optional causal error,
// so a tool body can wrap a lower-level failure (a timeout, an HTTP error, a
// missing argument) without losing it to a flattened string until the
// moment the call's Completion is actually persisted.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError is the error type demotools (and any other tool body) should
// construct on failure. Completion.Result carries it verbatim until a
// snapshot flattens it to a message string for durable storage.
type ToolError struct {
	// Message is the tool-facing summary surfaced to the model loop.
	Message string
	// Cause is the lower-level error that triggered the failure, if any.
	// Left as a plain error (not another *ToolError) so a tool body can
	// wrap os/net/driver errors directly and still support errors.Is/As
	// against them through Unwrap.
	Cause error
}

// New constructs a ToolError carrying message with no further cause.
func New(message string) *ToolError {
	if message == "" {
		message = "tool failed"
	}
	return &ToolError{Message: message}
}

// Errorf builds a ToolError from a format string, mirroring fmt.Errorf for
// the common case of a tool body failing without an underlying error value.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Wrap attaches message to cause, so the failure keeps both a tool-facing
// summary and the originating error for errors.Is/As. If cause is nil, Wrap
// behaves like New. If message is empty, cause's own text is used.
func Wrap(message string, cause error) *ToolError {
	if cause == nil {
		return New(message)
	}
	if message == "" {
		message = cause.Error()
	}
	return &ToolError{Message: message, Cause: cause}
}

// AsToolError returns err as a *ToolError, converting it if it is not
// already one. A nil err returns nil.
func AsToolError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Message: err.Error()}
}

// Error implements the error interface, folding in Cause's text when present
// and different from Message, so a plain %v of a ToolError is still
// informative without the caller needing to walk Unwrap.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns Cause, supporting errors.Is/As against the original
// failure a tool body wrapped.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
