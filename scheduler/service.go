// Package scheduler wires the registry, per-session handlers, rate-limited
// tool-body spawning, persistence, and the best-effort streaming sink into
// the top-level Service a session-scoped tool execution host runs against.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/sessiontools/toolsched/call"
	"github.com/sessiontools/toolsched/channel"
	"github.com/sessiontools/toolsched/persistence"
	"github.com/sessiontools/toolsched/schederrors"
	"github.com/sessiontools/toolsched/session"
	"github.com/sessiontools/toolsched/streamsink"
	"github.com/sessiontools/toolsched/telemetry"
	"github.com/sessiontools/toolsched/toolregistry"
)

// DefaultQuiesceDeadline matches schedconfig.DefaultQuiesceDeadline; kept
// independent so this package has no hard dependency on schedconfig.
const DefaultQuiesceDeadline = 30 * time.Second

// Options configures a Service.
type Options struct {
	// MultiCapacity bounds a Multi channel's buffered chunk backlog. Zero
	// falls back to channel.NewMulti's own default (100).
	MultiCapacity int
	// QuiesceDeadline bounds CleanupSession's resolve-then-persist phase.
	// Zero falls back to DefaultQuiesceDeadline.
	QuiesceDeadline time.Duration
	// MaxConcurrentToolCalls rate-limits tool-body starts across all
	// sessions: at most this many per second, with a burst of the same
	// size. It does not bound how many bodies run at once. Zero means
	// unlimited (no limiter is installed).
	MaxConcurrentToolCalls int

	Persistence persistence.Bridge
	Sink        streamsink.Sink
	Logger      telemetry.Logger
	Tracer      telemetry.Tracer
	Metrics     telemetry.Metrics
}

// Service is the scheduler's top-level entry point: one process-wide
// registry, a live map of session handlers, and the shared machinery
// (rate limiter, persistence bridge, streaming sink) every session draws on.
type Service struct {
	registry *toolregistry.Registry

	mu       sync.RWMutex
	sessions map[string]*session.Handler

	multiCapacity   int
	quiesceDeadline time.Duration
	limiter         *rate.Limiter

	persistence persistence.Bridge
	sink        streamsink.Sink
	logger      telemetry.Logger
	tracer      telemetry.Tracer
	metrics     telemetry.Metrics
}

// New constructs a Service bound to registry.
func New(registry *toolregistry.Registry, opts Options) *Service {
	s := &Service{
		registry:        registry,
		sessions:        make(map[string]*session.Handler),
		multiCapacity:   opts.MultiCapacity,
		quiesceDeadline: opts.QuiesceDeadline,
		persistence:     opts.Persistence,
		sink:            opts.Sink,
		logger:          opts.Logger,
		tracer:          opts.Tracer,
		metrics:         opts.Metrics,
	}
	if s.quiesceDeadline <= 0 {
		s.quiesceDeadline = DefaultQuiesceDeadline
	}
	if opts.MaxConcurrentToolCalls > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.MaxConcurrentToolCalls), opts.MaxConcurrentToolCalls)
	}
	if s.logger == nil {
		s.logger = telemetry.NewNoopLogger()
	}
	if s.tracer == nil {
		s.tracer = telemetry.NewNoopTracer()
	}
	if s.metrics == nil {
		s.metrics = telemetry.NewNoopMetrics()
	}
	return s
}

// OpenSession instantiates a fresh Handler for sessionID scoped to
// namespaces and registers it with the service. It is the login path for a
// session with no prior snapshot; see RestoreSession for returning sessions.
func (s *Service) OpenSession(sessionID string, namespaces []string) *session.Handler {
	h := session.New(sessionID, namespaces, s.registry.VisibleTo(namespaces), session.WithLogger(s.logger), session.WithTracer(s.tracer))
	s.mu.Lock()
	s.sessions[sessionID] = h
	s.mu.Unlock()
	return h
}

// Handler returns the live handler for sessionID, if any.
func (s *Service) Handler(sessionID string) (*session.Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.sessions[sessionID]
	return h, ok
}

// Submit validates args against tool's schema, spawns its body under the
// service's rate limiter, and registers the resulting call with
// sessionID's handler. It returns the call metadata the caller threads back
// to the model as the queued-call acknowledgement.
func (s *Service) Submit(ctx context.Context, sessionID, toolName, externalID string, args map[string]any) (call.Metadata, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.submit", trace.WithAttributes(
		attribute.String("toolsched.session_id", sessionID),
		attribute.String("toolsched.tool", toolName),
	))
	defer span.End()

	h, ok := s.Handler(sessionID)
	if !ok {
		err := fmt.Errorf("%w: %s", schederrors.ErrSessionNotFound, sessionID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "session not found")
		return call.Metadata{}, err
	}
	if !h.CanInvoke(toolName) {
		err := fmt.Errorf("%w: %s", schederrors.ErrUnknownTool, toolName)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool not visible to session")
		return call.Metadata{}, err
	}
	descriptor, ok := s.registry.Lookup(toolName)
	if !ok {
		err := fmt.Errorf("%w: %s", schederrors.ErrUnknownTool, toolName)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool not registered")
		return call.Metadata{}, err
	}
	if err := s.registry.Validate(toolName, args); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "argument validation failed")
		return call.Metadata{}, err
	}

	metadata := call.Metadata{
		Name:        toolName,
		ID:          call.NewID(toolName),
		ExternalID:  externalID,
		IsMultiStep: descriptor.MultiStep,
	}

	var pair channel.Pair
	if descriptor.MultiStep {
		pair = channel.NewMulti(s.multiCapacity, s.metrics)
	} else {
		pair = channel.NewSingle()
	}

	h.Register(call.ReceiverWrapper{Metadata: metadata, Receiver: pair.Receiver})
	s.spawn(ctx, sessionID, metadata, descriptor, pair.Sender, args)

	span.AddEvent("submitted")
	return metadata, nil
}

// spawn runs descriptor.Invoke in its own goroutine, blocking on the
// service's rate limiter first when one is configured. The tool body owns
// sender for its full lifetime and is responsible for closing it.
func (s *Service) spawn(ctx context.Context, sessionID string, metadata call.Metadata, descriptor toolregistry.Descriptor, sender channel.Sender, args map[string]any) {
	go func() {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				sender.Send(ctx, channel.Err(err))
				sender.Close()
				return
			}
		}
		callCtx, span := s.tracer.Start(ctx, "scheduler.tool_call", trace.WithAttributes(
			attribute.String("toolsched.session_id", sessionID),
			attribute.String("toolsched.tool", metadata.Name),
			attribute.String("toolsched.call_id", metadata.ID),
		))
		defer span.End()
		descriptor.Invoke(callCtx, sender, args)
	}()
}

// Tick drives one cooperative scheduling step for sessionID: it resolves
// any newly-submitted calls (first-chunk ACK), polls ongoing streams once,
// drains completed calls, and forwards each one to the service's streaming
// sink on a best-effort basis. It never blocks.
func (s *Service) Tick(ctx context.Context, sessionID string) ([]call.Completion, error) {
	h, ok := s.Handler(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", schederrors.ErrSessionNotFound, sessionID)
	}
	h.ResolveCalls(ctx)
	h.PollStreamsOnce(ctx)
	completed := h.TakeCompleted()
	for _, c := range completed {
		streamsink.Forward(ctx, s.sink, s.logger, streamsink.FromCompletion(sessionID, c))
	}
	return completed, nil
}

// CleanupSession implements logout: it quiesces sessionID's handler (resolve
// + drain with a bounded deadline), persists the resulting snapshot, and
// removes the handler from the live session map. A zero or negative
// deadline falls back to the service's configured QuiesceDeadline.
func (s *Service) CleanupSession(ctx context.Context, sessionID string, deadline time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.cleanup_session", trace.WithAttributes(
		attribute.String("toolsched.session_id", sessionID),
	))
	defer span.End()

	if deadline <= 0 {
		deadline = s.quiesceDeadline
	}

	h, ok := s.Handler(sessionID)
	if !ok {
		err := fmt.Errorf("%w: %s", schederrors.ErrSessionNotFound, sessionID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "session not found")
		return err
	}

	snapshot := h.QuiesceToSnapshot(ctx, time.Now().Add(deadline))

	if s.persistence != nil {
		if err := s.persistence.Save(ctx, sessionID, snapshot); err != nil {
			// Per the persistence error policy, a save failure discards the
			// snapshot with a logged warning; logout still succeeds.
			span.RecordError(err)
			s.logger.Warn(ctx, "discarding quiesce snapshot after save failure",
				"component", "scheduler",
				"session_id", sessionID,
				"err", err,
			)
		}
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// RestoreSession implements login for a returning session: it loads the
// persisted snapshot (if any) and rebuilds a live handler from it without
// re-executing any tool body. The bool result reports whether a snapshot
// was found; when false, the caller should fall back to OpenSession. A load
// failure is logged and reported as "no prior state" (false, nil error).
func (s *Service) RestoreSession(ctx context.Context, sessionID string) (*session.Handler, bool, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.restore_session", trace.WithAttributes(
		attribute.String("toolsched.session_id", sessionID),
	))
	defer span.End()

	if s.persistence == nil {
		return nil, false, nil
	}
	snapshot, found, err := s.persistence.Load(ctx, sessionID)
	if err != nil {
		// Per the persistence error policy, a load failure is treated as
		// "no prior state" with a logged warning.
		span.RecordError(err)
		span.SetStatus(codes.Error, "load snapshot")
		s.logger.Warn(ctx, "treating session as having no prior state after load failure",
			"component", "scheduler",
			"session_id", sessionID,
			"err", err,
		)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	h := session.FromSnapshot(snapshot, s.registry, session.WithLogger(s.logger), session.WithTracer(s.tracer))
	s.mu.Lock()
	s.sessions[sessionID] = h
	s.mu.Unlock()
	return h, true, nil
}
