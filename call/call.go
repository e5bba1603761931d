// Package call implements the call-future and stream types: CallMetadata,
// the ReceiverWrapper for unresolved calls, the Stream type for ongoing
// calls, and the Completion the model loop ultimately observes. Stream's
// poll_once semantics distinguish an intermediate chunk from a final
// completion uniformly across the Single/Multi channel variants.
package call

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sessiontools/toolsched/channel"
	"github.com/sessiontools/toolsched/schederrors"
	"github.com/sessiontools/toolsched/toolerrors"
)

// Metadata identifies one tool invocation. (id) is unique within the
// process; (id, external_id) is the pair used when emitting a tool-result
// back to the model.
type Metadata struct {
	// Name is the tool name, from the registry.
	Name string
	// ID is the scheduler-assigned opaque identifier, unique within the
	// process and preserved across persistence.
	ID string
	// ExternalID is the caller-supplied identifier used to correlate the
	// eventual tool-result message with the original tool-call message on
	// the model side. Never rewritten after submission.
	ExternalID string
	// IsMultiStep is derived from the registry at submission time and is
	// immutable thereafter.
	IsMultiStep bool
}

// NewID generates a scheduler-assigned call identifier shaped
// "<tool-name>/<uuid>", matching the id surfaced in queued_payload.
func NewID(toolName string) string {
	return toolName + "/" + uuid.NewString()
}

// Completion is one observation the model loop receives for a call: either
// a non-final intermediate/ACK chunk or the terminal completion. For
// single-step tools the single completion is always final. For multi-step
// tools, the first completion emitted is flagged ACK (is_final=false);
// subsequent ones are intermediate; the terminal one is flagged final.
type Completion struct {
	Metadata Metadata
	IsFinal  bool
	Result   channel.Result
}

// Output classifies what a Stream's PollOnce call returned.
type Output int

const (
	// OutputPending means no new completion is available this poll.
	OutputPending Output = iota
	// OutputChunk is an intermediate, non-final completion (multi-step only).
	OutputChunk
	// OutputFinal is the terminal completion; the stream is drained
	// afterward.
	OutputFinal
)

// ReceiverWrapper bundles metadata with a receiver for a call that has been
// submitted but not yet resolved. Its lifetime runs from submission until
// the session handler's next ResolveCalls, which promotes it to a Stream via
// IntoStream whether or not a chunk has been produced yet.
type ReceiverWrapper struct {
	Metadata Metadata
	Receiver channel.Receiver
}

// IntoStream promotes the wrapper into an ongoing Stream.
func (w ReceiverWrapper) IntoStream() *Stream {
	return &Stream{metadata: w.Metadata, receiver: w.Receiver}
}

// Stream represents an ongoing call: from resolution until channel close.
// For Single wrappers it ends at the first poll that is not Pending.
type Stream struct {
	metadata       Metadata
	receiver       channel.Receiver
	firstChunkSent bool
}

// Metadata returns the call metadata this stream belongs to.
func (s *Stream) Metadata() Metadata { return s.metadata }

// FirstChunkSent reports whether this stream has already yielded at least
// one intermediate (non-final) chunk. It stays false for Single streams.
func (s *Stream) FirstChunkSent() bool { return s.firstChunkSent }

// PollOnce performs one non-blocking poll against the underlying receiver.
// It never awaits; callers drive it with a no-op waker via ctx.
//
// For Single streams the first poll that is not Pending yields OutputFinal;
// any Chunk-shaped result is treated as Final too, since a single-shot
// receiver never legitimately yields an intermediate chunk.
func (s *Stream) PollOnce(ctx context.Context) (Completion, Output) {
	result, status := s.receiver.Poll(ctx)
	switch status {
	case channel.Pending:
		return Completion{}, OutputPending
	case channel.Closed:
		// A closed Multi with no items observed is an empty success; a
		// Single sender dropped without sending surfaces as a "channel
		// closed" ToolError wrapping schederrors.ErrChannelClosed.
		if errors.Is(result.Err, channel.ErrSenderDropped) {
			result = channel.Err(toolerrors.Wrap("channel closed", schederrors.ErrChannelClosed))
		}
		return Completion{Metadata: s.metadata, IsFinal: true, Result: result}, OutputFinal
	case channel.Ready:
		if !s.metadata.IsMultiStep {
			// Single-shot never legitimately yields an intermediate chunk:
			// its one and only Ready is the final completion.
			return Completion{Metadata: s.metadata, IsFinal: true, Result: result}, OutputFinal
		}
		s.firstChunkSent = true
		return Completion{Metadata: s.metadata, IsFinal: false, Result: result}, OutputChunk
	default:
		return Completion{}, OutputPending
	}
}
