package session

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sessiontools/toolsched/call"
	"github.com/sessiontools/toolsched/channel"
	"github.com/sessiontools/toolsched/toolregistry"
)

func noopInvoke(ctx context.Context, sender channel.Sender, args map[string]any) {
	sender.Send(ctx, channel.Ok(""))
	sender.Close()
}

// TestFromSnapshotToSnapshotRoundTrip verifies invariant 5 of spec.md §8:
// from_snapshot(to_snapshot(H)) = H, up to ephemeral channel state (empty by
// precondition since a snapshot is only ever taken once unresolved_calls and
// ongoing_streams have drained).
func TestFromSnapshotToSnapshotRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("snapshot round-trips through FromSnapshot", prop.ForAll(
		func(sessionID, toolName string, values []string) bool {
			if toolName == "" {
				toolName = "tool"
			}
			registry := toolregistry.New()
			registry.Register(toolregistry.Descriptor{Name: toolName, Namespace: "ns", Invoke: noopInvoke})

			h := New(sessionID, []string{"ns"}, registry.VisibleTo([]string{"ns"}))
			for _, v := range values {
				h.completedCalls = append(h.completedCalls, call.Completion{
					Metadata: call.Metadata{Name: toolName, ID: call.NewID(toolName)},
					IsFinal:  true,
					Result:   channel.Ok(v),
				})
			}

			snapshot := h.QuiesceToSnapshot(context.Background(), time.Now().Add(time.Second))
			restored := FromSnapshot(snapshot, registry)

			if restored.SessionID() != h.SessionID() {
				return false
			}
			if len(restored.Namespaces()) != 1 || restored.Namespaces()[0] != "ns" {
				return false
			}
			roundTripped := restored.TakeCompleted()
			if len(roundTripped) != len(snapshot.CompletedCalls) {
				return false
			}
			for i, c := range roundTripped {
				if c != snapshot.CompletedCalls[i] {
					return false
				}
			}
			return true
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.SliceOfN(3, gen.AlphaString()),
	))

	properties.TestingRun(t)
}
