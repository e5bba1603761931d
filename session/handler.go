// Package session implements the per-session handler that owns the
// lifecycle of in-flight calls (unresolved -> streaming -> completed),
// poll-drives them cooperatively, and isolates sessions from one another.
// This is the hardest part of the scheduler: see handler.go's polling
// algorithm for the ordering and first-chunk-ACK guarantees the model loop
// depends on.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sessiontools/toolsched/call"
	"github.com/sessiontools/toolsched/channel"
	"github.com/sessiontools/toolsched/schederrors"
	"github.com/sessiontools/toolsched/telemetry"
	"github.com/sessiontools/toolsched/toolerrors"
	"github.com/sessiontools/toolsched/toolregistry"
)

// DefaultQuiescePollInterval is how often QuiesceToSnapshot re-polls while
// waiting for unresolved and ongoing work to drain.
const DefaultQuiescePollInterval = 10 * time.Millisecond

// StreamHandle is the per-call handle ResolveCalls hands back to the UI: it
// identifies which call was just acknowledged, without exposing the
// handler's internal Stream type.
type StreamHandle struct {
	Metadata call.Metadata
}

// Handler owns one session's in-flight tool calls. Session is the unit of
// isolation: no handler observes another's calls. The scheduler service
// exclusively owns handlers, indexed by session id, and hands out shared
// references for concurrent polling; the model loop borrows a handler for
// the duration of a turn.
type Handler struct {
	mu sync.Mutex

	sessionID         string
	namespaces        []string
	availableTools    map[string]toolregistry.Descriptor
	unresolvedCalls   []call.ReceiverWrapper
	ongoingStreams    []*call.Stream
	completedCalls    []call.Completion
	quiescePollPeriod time.Duration

	logger telemetry.Logger
	tracer telemetry.Tracer
}

// Option configures a Handler at construction time.
type Option func(*Handler)

// WithLogger attaches a telemetry.Logger. Defaults to a noop logger.
func WithLogger(l telemetry.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithTracer attaches a telemetry.Tracer. Defaults to a noop tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(h *Handler) { h.tracer = t }
}

// WithQuiescePollInterval overrides DefaultQuiescePollInterval.
func WithQuiescePollInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.quiescePollPeriod = d
		}
	}
}

// New constructs a Handler for sessionID, scoped to namespaces, with
// availableTools as computed by the registry's VisibleTo at session
// instantiation time.
func New(sessionID string, namespaces []string, availableTools map[string]toolregistry.Descriptor, opts ...Option) *Handler {
	h := &Handler{
		sessionID:         sessionID,
		namespaces:        namespaces,
		availableTools:    availableTools,
		quiescePollPeriod: DefaultQuiescePollInterval,
		logger:            telemetry.NewNoopLogger(),
		tracer:            telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SessionID returns the session this handler belongs to.
func (h *Handler) SessionID() string { return h.sessionID }

// Namespaces returns the session's namespace set, verbatim as supplied at
// construction or restore.
func (h *Handler) Namespaces() []string { return h.namespaces }

// AvailableTools returns the tools visible to this session.
func (h *Handler) AvailableTools() map[string]toolregistry.Descriptor { return h.availableTools }

// CanInvoke reports whether tool is among this session's available tools,
// implementing the namespace isolation invariant: a call for tool T is
// accepted by session S iff T's namespace is in S's namespaces.
func (h *Handler) CanInvoke(tool string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.availableTools[tool]
	return ok
}

// Register appends a wrapper produced by the scheduler to unresolved_calls.
// O(1); never fails.
func (h *Handler) Register(wrapper call.ReceiverWrapper) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unresolvedCalls = append(h.unresolvedCalls, wrapper)
}

// ResolveCalls drains unresolved_calls into ongoing_streams, performing an
// immediate first poll on each before returning its handle. This is the
// first-chunk ACK: for Single calls that poll usually yields Pending; for
// Multi calls whose producer has already emitted, it yields an ACK
// completion appended to completed_calls with is_final=false. The model
// loop sees an ACK for every newly-registered call before any further
// polling.
func (h *Handler) ResolveCalls(ctx context.Context) []StreamHandle {
	ctx, span := h.tracer.Start(ctx, "session.resolve_calls", trace.WithAttributes(
		attribute.String("toolsched.session_id", h.sessionID),
	))
	defer span.End()

	h.mu.Lock()
	handles := h.resolveCallsLocked(ctx)
	h.mu.Unlock()

	if len(handles) > 0 {
		h.logger.Debug(ctx, "resolved newly submitted calls",
			"component", "session",
			"session_id", h.sessionID,
			"count", len(handles),
		)
	}
	return handles
}

func (h *Handler) resolveCallsLocked(ctx context.Context) []StreamHandle {
	if len(h.unresolvedCalls) == 0 {
		return nil
	}
	pending := h.unresolvedCalls
	h.unresolvedCalls = nil

	handles := make([]StreamHandle, 0, len(pending))
	for _, wrapper := range pending {
		handles = append(handles, StreamHandle{Metadata: wrapper.Metadata})
		stream := wrapper.IntoStream()
		h.pollStreamLocked(ctx, stream, true)
	}
	return handles
}

// pollStreamLocked performs one poll of stream and applies the polling
// algorithm's disposition rules. keepIfPending controls whether a Pending
// result appends the stream to ongoing_streams; ResolveCalls, its only
// caller, passes true because the stream is new and must be retained.
// PollStreamsOnce does not use this helper: it runs its own loop over
// streams already in ongoing_streams.
func (h *Handler) pollStreamLocked(ctx context.Context, stream *call.Stream, keepIfPending bool) (produced int) {
	completion, output := stream.PollOnce(ctx)
	switch output {
	case call.OutputPending:
		if keepIfPending {
			h.ongoingStreams = append(h.ongoingStreams, stream)
		}
		return 0
	case call.OutputChunk:
		h.completedCalls = append(h.completedCalls, completion)
		h.ongoingStreams = append(h.ongoingStreams, stream)
		return 1
	case call.OutputFinal:
		h.completedCalls = append(h.completedCalls, completion)
		return 1
	default:
		if keepIfPending {
			h.ongoingStreams = append(h.ongoingStreams, stream)
		}
		return 0
	}
}

// PollStreamsOnce performs one non-blocking poll across all ongoing
// streams, appending any produced completions to completed_calls and
// removing streams that emit a Final completion. It never blocks and is
// safe to call from a cooperative scheduler tick. Returns the count of
// completions produced this tick.
//
// The pass is O(len(ongoing_streams)); ongoing streams are visited in
// insertion order, so the model sees a deterministic interleaving of their
// outputs for a given real-time arrival sequence.
func (h *Handler) PollStreamsOnce(ctx context.Context) int {
	ctx, span := h.tracer.Start(ctx, "session.poll_streams_once", trace.WithAttributes(
		attribute.String("toolsched.session_id", h.sessionID),
	))
	defer span.End()

	h.mu.Lock()
	produced := h.pollStreamsOnceLocked(ctx)
	h.mu.Unlock()

	if produced > 0 {
		h.logger.Debug(ctx, "polled ongoing streams",
			"component", "session",
			"session_id", h.sessionID,
			"produced", produced,
		)
	}
	return produced
}

func (h *Handler) pollStreamsOnceLocked(ctx context.Context) int {
	if len(h.ongoingStreams) == 0 {
		return 0
	}
	produced := 0
	remaining := h.ongoingStreams[:0]
	for _, stream := range h.ongoingStreams {
		completion, output := stream.PollOnce(ctx)
		switch output {
		case call.OutputPending:
			remaining = append(remaining, stream)
		case call.OutputChunk:
			h.completedCalls = append(h.completedCalls, completion)
			produced++
			remaining = append(remaining, stream)
		case call.OutputFinal:
			h.completedCalls = append(h.completedCalls, completion)
			produced++
		}
	}
	h.ongoingStreams = remaining
	return produced
}

// TakeCompleted atomically drains completed_calls. The caller observes each
// completion exactly once.
func (h *Handler) TakeCompleted() []call.Completion {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.completedCalls) == 0 {
		return nil
	}
	drained := h.completedCalls
	h.completedCalls = nil
	return drained
}

// HasPendingWork is true iff any of unresolved_calls, ongoing_streams, or
// completed_calls is non-empty. Used to gate quiesce and cleanup.
func (h *Handler) HasPendingWork() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.unresolvedCalls) > 0 || len(h.ongoingStreams) > 0 || len(h.completedCalls) > 0
}

// QuiesceToSnapshot polls unresolved and ongoing calls to empty, then
// returns a snapshot with namespaces, available tool names, and remaining
// completed_calls. On deadline, unfinished calls are replaced with
// Err("timed_out") completions; a snapshot is still returned.
func (h *Handler) QuiesceToSnapshot(ctx context.Context, deadline time.Time) Snapshot {
	ctx, span := h.tracer.Start(ctx, "session.quiesce_to_snapshot", trace.WithAttributes(
		attribute.String("toolsched.session_id", h.sessionID),
	))
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	timedOut := false
	for {
		h.resolveCallsLocked(ctx)
		h.pollStreamsOnceLocked(ctx)

		if len(h.unresolvedCalls) == 0 && len(h.ongoingStreams) == 0 {
			break
		}

		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			timedOut = true
			h.timeOutRemainingLocked()
			break
		}
		wait := h.quiescePollPeriod
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}

	if timedOut {
		span.AddEvent("quiesce deadline exceeded")
		h.logger.Warn(ctx, "quiesce deadline exceeded, outstanding calls timed out",
			"component", "session",
			"session_id", h.sessionID,
		)
	}
	snapshot := h.snapshotLocked()
	h.logger.Info(ctx, "session quiesced to snapshot",
		"component", "session",
		"session_id", h.sessionID,
		"completed_calls", len(snapshot.CompletedCalls),
		"timed_out", timedOut,
	)
	return snapshot
}

// timeOutRemainingLocked converts any still-outstanding unresolved or
// ongoing call into a Final completion with Err("timed_out"), per the
// deadline-exceeded failure semantics.
func (h *Handler) timeOutRemainingLocked() {
	for _, wrapper := range h.unresolvedCalls {
		h.completedCalls = append(h.completedCalls, call.Completion{
			Metadata: wrapper.Metadata,
			IsFinal:  true,
			Result:   channelErrTimedOut(),
		})
	}
	h.unresolvedCalls = nil
	for _, stream := range h.ongoingStreams {
		h.completedCalls = append(h.completedCalls, call.Completion{
			Metadata: stream.Metadata(),
			IsFinal:  true,
			Result:   channelErrTimedOut(),
		})
	}
	h.ongoingStreams = nil
}

func (h *Handler) snapshotLocked() Snapshot {
	names := make([]string, 0, len(h.availableTools))
	for name := range h.availableTools {
		names = append(names, name)
	}
	sort.Strings(names)
	completed := make([]call.Completion, len(h.completedCalls))
	copy(completed, h.completedCalls)
	return Snapshot{
		SessionID:          h.sessionID,
		Namespaces:         append([]string(nil), h.namespaces...),
		AvailableToolNames: names,
		CompletedCalls:     completed,
	}
}

// FromSnapshot rebuilds a handler from a persisted snapshot: available_tools
// is reinstantiated by intersecting the snapshot's namespaces with the
// current registry, and completed_calls is populated directly. Tool bodies
// are never re-executed.
func FromSnapshot(snapshot Snapshot, registry *toolregistry.Registry, opts ...Option) *Handler {
	h := New(snapshot.SessionID, snapshot.Namespaces, registry.VisibleTo(snapshot.Namespaces), opts...)
	h.completedCalls = append(h.completedCalls, snapshot.CompletedCalls...)
	return h
}

// channelErrTimedOut constructs the Err("timed_out") result used for calls
// still outstanding when a quiesce deadline fires. The underlying
// schederrors.ErrTimedOut stays reachable via errors.Is through Unwrap, but
// the completion's surfaced error is the toolerrors.ToolError shape every
// other tool-body failure uses, per the ToolError -> Completion.Result
// mapping.
func channelErrTimedOut() channel.Result {
	return channel.Err(toolerrors.Wrap("timed_out", schederrors.ErrTimedOut))
}
