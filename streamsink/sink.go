// Package streamsink implements best-effort, UI-facing forwarding of
// ACK/Chunk/Final completions. It is independent of the authoritative
// completion path: a streamsink failure is logged and otherwise ignored,
// never gates session.Handler.TakeCompleted, and never blocks the
// scheduler tick that produced the update.
package streamsink

import (
	"context"

	"github.com/sessiontools/toolsched/call"
	"github.com/sessiontools/toolsched/telemetry"
)

// Update is the UI-facing shape of one completion, forwarded alongside (not
// instead of) the authoritative Completion the model loop consumes.
type Update struct {
	SessionID string
	Metadata  call.Metadata
	IsFinal   bool
	Value     string
	ErrMsg    string
}

// FromCompletion projects a call.Completion into an Update for sessionID.
func FromCompletion(sessionID string, c call.Completion) Update {
	u := Update{
		SessionID: sessionID,
		Metadata:  c.Metadata,
		IsFinal:   c.IsFinal,
		Value:     c.Result.Value,
	}
	if c.Result.Err != nil {
		u.ErrMsg = c.Result.Err.Error()
	}
	return u
}

// Sink publishes one Update. Implementations must not block the calling
// scheduler tick for long; slow sinks should buffer or drop rather than
// apply backpressure to the authoritative path.
type Sink interface {
	Send(ctx context.Context, update Update) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, update Update) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, update Update) error { return f(ctx, update) }

// Forward sends update to sink, logging (not propagating) any failure. This
// is the call site every scheduler tick uses: streamsink is always
// best-effort.
func Forward(ctx context.Context, sink Sink, logger telemetry.Logger, update Update) {
	if sink == nil {
		return
	}
	if err := sink.Send(ctx, update); err != nil {
		logger.Error(ctx, "streamsink forward failed",
			"component", "streamsink",
			"session_id", update.SessionID,
			"call_id", update.Metadata.ID,
			"tool", update.Metadata.Name,
			"err", err,
		)
	}
}
