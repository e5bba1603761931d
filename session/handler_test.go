package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessiontools/toolsched/call"
	"github.com/sessiontools/toolsched/channel"
	"github.com/sessiontools/toolsched/schederrors"
	"github.com/sessiontools/toolsched/toolregistry"
)

func newWrapper(name string, multi bool, receiver channel.Receiver) call.ReceiverWrapper {
	return call.ReceiverWrapper{
		Metadata: call.Metadata{Name: name, ID: call.NewID(name), IsMultiStep: multi},
		Receiver: receiver,
	}
}

func TestResolveCallsYieldsACKForMultiAndPendingForSingle(t *testing.T) {
	h := New("alice", []string{"time", "forge"}, map[string]toolregistry.Descriptor{})
	ctx := context.Background()

	singlePair := channel.NewSingle()
	multiPair := channel.NewMulti(4)
	require.NoError(t, multiPair.Sender.Send(ctx, channel.Ok("ack")))

	h.Register(newWrapper("current_time", false, singlePair.Receiver))
	h.Register(newWrapper("forge_execute", true, multiPair.Receiver))

	handles := h.ResolveCalls(ctx)
	assert.Len(t, handles, 2)

	completed := h.TakeCompleted()
	require.Len(t, completed, 1)
	assert.Equal(t, "forge_execute", completed[0].Metadata.Name)
	assert.False(t, completed[0].IsFinal)
	assert.Equal(t, "ack", completed[0].Result.Value)

	assert.True(t, h.HasPendingWork())
}

func TestPollStreamsOnceDrainsFinalSingle(t *testing.T) {
	h := New("alice", nil, map[string]toolregistry.Descriptor{})
	ctx := context.Background()

	singlePair := channel.NewSingle()
	h.Register(newWrapper("current_time", false, singlePair.Receiver))
	h.ResolveCalls(ctx)
	h.TakeCompleted()

	require.NoError(t, singlePair.Sender.Send(ctx, channel.Ok("42")))
	produced := h.PollStreamsOnce(ctx)
	assert.Equal(t, 1, produced)

	completed := h.TakeCompleted()
	require.Len(t, completed, 1)
	assert.True(t, completed[0].IsFinal)
	assert.Equal(t, "42", completed[0].Result.Value)
	assert.False(t, h.HasPendingWork())
}

func TestQuiesceToSnapshotWaitsForCompletion(t *testing.T) {
	h := New("alice", []string{"time"}, map[string]toolregistry.Descriptor{"current_time": {}})
	ctx := context.Background()

	singlePair := channel.NewSingle()
	h.Register(newWrapper("current_time", false, singlePair.Receiver))

	go func() {
		time.Sleep(5 * time.Millisecond)
		singlePair.Sender.Send(ctx, channel.Ok("42"))
	}()

	snapshot := h.QuiesceToSnapshot(ctx, time.Now().Add(time.Second))
	require.Len(t, snapshot.CompletedCalls, 1)
	assert.True(t, snapshot.CompletedCalls[0].IsFinal)
	assert.Equal(t, "42", snapshot.CompletedCalls[0].Result.Value)
	assert.Equal(t, []string{"current_time"}, snapshot.AvailableToolNames)
}

func TestQuiesceToSnapshotTimesOutOutstandingCalls(t *testing.T) {
	h := New("alice", []string{"forge"}, map[string]toolregistry.Descriptor{}, WithQuiescePollInterval(time.Millisecond))
	ctx := context.Background()

	multiPair := channel.NewMulti(4)
	require.NoError(t, multiPair.Sender.Send(ctx, channel.Ok("ack")))
	h.Register(newWrapper("forge_execute", true, multiPair.Receiver))

	snapshot := h.QuiesceToSnapshot(ctx, time.Now().Add(10*time.Millisecond))

	require.Len(t, snapshot.CompletedCalls, 2)
	last := snapshot.CompletedCalls[len(snapshot.CompletedCalls)-1]
	assert.True(t, last.IsFinal)
	assert.ErrorIs(t, last.Result.Err, schederrors.ErrTimedOut)
}

func TestFromSnapshotRebuildsWithoutReexecution(t *testing.T) {
	registry := toolregistry.New()
	require.NoError(t, registry.Register(toolregistry.Descriptor{
		Name:      "current_time",
		Namespace: "time",
		Invoke: func(ctx context.Context, sender channel.Sender, args map[string]any) {
			t.Fatal("tool body must not be re-executed on restore")
		},
	}))

	snapshot := Snapshot{
		SessionID:          "alice",
		Namespaces:         []string{"time"},
		AvailableToolNames: []string{"current_time"},
		CompletedCalls: []call.Completion{
			{Metadata: call.Metadata{Name: "current_time", ID: "current_time/1"}, IsFinal: true, Result: channel.Ok("42")},
		},
	}

	h := FromSnapshot(snapshot, registry)
	assert.Equal(t, "alice", h.SessionID())
	assert.True(t, h.CanInvoke("current_time"))
	assert.Equal(t, []call.Completion{snapshot.CompletedCalls[0]}, h.TakeCompleted())
}
