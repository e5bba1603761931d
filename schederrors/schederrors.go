// Package schederrors defines the scheduler-level error taxonomy: the
// structural failures that are returned synchronously to the model loop
// (UnknownTool, SchemaError, DuplicateTool) and the typed failures that
// surface around persistence (StorageError). Tool-body failures use
// toolerrors instead; schederrors never wraps a tool's own Err value.
package schederrors

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTool is returned by Submit when no descriptor is registered
	// under the requested name. No call is created.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDuplicateTool is returned by Registry.Register when a descriptor's
	// name collides with one already registered. Raised at startup; callers
	// should fail fast.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrChannelClosed indicates a receiver's sender was dropped without
	// producing a value. Surfaced as a final completion, not returned
	// directly from Submit.
	ErrChannelClosed = errors.New("channel closed")

	// ErrTimedOut indicates a call was still outstanding when a quiesce
	// deadline fired. Surfaced as a final completion with this error.
	ErrTimedOut = errors.New("timed_out")

	// ErrSessionNotFound indicates Submit, Tick, or CleanupSession was
	// called for a session id the scheduler has no live handler for.
	ErrSessionNotFound = errors.New("session not found")
)

// SchemaError reports that tool call arguments failed validation against the
// tool's declared argument schema. Returned synchronously from Submit.
type SchemaError struct {
	// Tool is the name of the tool whose schema rejected the arguments.
	Tool string
	// Detail carries the underlying jsonschema validation failure text.
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error for tool %q: %s", e.Tool, e.Detail)
}

// NewSchemaError wraps a validation failure for the named tool.
func NewSchemaError(tool string, cause error) *SchemaError {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &SchemaError{Tool: tool, Detail: detail}
}

// StorageError reports a persistence bridge failure on save or load. Per the
// error handling policy, a save failure discards the quiesce snapshot (the
// session still logs out) and a load failure is treated as "no prior state".
// The core never retries storage; the caller may.
type StorageError struct {
	// Op names the failing operation ("save" or "load").
	Op string
	// SessionID identifies the session whose snapshot was being persisted.
	SessionID string
	// Err is the underlying storage driver error.
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for session %q: %v", e.Op, e.SessionID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError constructs a StorageError for the given operation.
func NewStorageError(op, sessionID string, err error) *StorageError {
	return &StorageError{Op: op, SessionID: sessionID, Err: err}
}
