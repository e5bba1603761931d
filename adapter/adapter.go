// Package adapter exposes the narrow completion-loop contract an external
// model loop drives: submit, tick, drain_completions, cleanup, restore, and
// nothing else. Generated tool or transport code talks to an Adapter, never
// to session.Handler or toolregistry.Registry directly — mirroring the
// teacher's narrow runtime-client façade pattern.
package adapter

import (
	"context"
	"time"

	"github.com/sessiontools/toolsched/call"
	"github.com/sessiontools/toolsched/scheduler"
)

// QueuedPayload is the short JSON-serializable acknowledgement the model
// sees as a submitted tool call's immediate result.
type QueuedPayload struct {
	Status     string `json:"status"`
	ID         string `json:"id"`
	ToolName   string `json:"tool_name"`
	ExternalID string `json:"external_id"`
}

// Adapter wraps a *scheduler.Service behind the five operations spec.md
// §4.G/§6 names. It holds no state of its own.
type Adapter struct {
	svc *scheduler.Service
}

// New wraps svc.
func New(svc *scheduler.Service) *Adapter {
	return &Adapter{svc: svc}
}

// Submit validates and enqueues a tool call, returning the queued-call
// acknowledgement the model sees as the call's immediate result.
func (a *Adapter) Submit(ctx context.Context, sessionID, toolName, externalID string, args map[string]any) (QueuedPayload, error) {
	metadata, err := a.svc.Submit(ctx, sessionID, toolName, externalID, args)
	if err != nil {
		return QueuedPayload{}, err
	}
	return QueuedPayload{
		Status:     "queued",
		ID:         metadata.ID,
		ToolName:   metadata.Name,
		ExternalID: metadata.ExternalID,
	}, nil
}

// Tick drives one cooperative scheduling step for sessionID and returns how
// many completions it produced.
func (a *Adapter) Tick(ctx context.Context, sessionID string) (int, error) {
	completions, err := a.svc.Tick(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(completions), nil
}

// DrainCompletions exposes the session handler's take_completed: every
// completion produced since the last drain, each observed exactly once.
func (a *Adapter) DrainCompletions(ctx context.Context, sessionID string) ([]call.Completion, error) {
	h, ok := a.svc.Handler(sessionID)
	if !ok {
		if _, err := a.svc.Tick(ctx, sessionID); err != nil {
			return nil, err
		}
		h, ok = a.svc.Handler(sessionID)
		if !ok {
			return nil, nil
		}
	}
	return h.TakeCompleted(), nil
}

// Cleanup delegates to the scheduler's logout hook: quiesce, persist,
// remove from the live session map.
func (a *Adapter) Cleanup(ctx context.Context, sessionID string, deadline time.Duration) error {
	return a.svc.CleanupSession(ctx, sessionID, deadline)
}

// Restore delegates to the scheduler's login hook: reconstruct the handler
// from its persisted snapshot, bypassing re-execution. found is false when
// no prior snapshot exists.
func (a *Adapter) Restore(ctx context.Context, sessionID string) (found bool, err error) {
	_, found, err = a.svc.RestoreSession(ctx, sessionID)
	return found, err
}
