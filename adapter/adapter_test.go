package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessiontools/toolsched/channel"
	"github.com/sessiontools/toolsched/persistence"
	"github.com/sessiontools/toolsched/scheduler"
	"github.com/sessiontools/toolsched/toolregistry"
)

func newTestAdapter(t *testing.T) (*Adapter, *scheduler.Service) {
	t.Helper()
	registry := toolregistry.New()
	require.NoError(t, registry.Register(toolregistry.Descriptor{
		Name:      "current_time",
		Namespace: "time",
		MultiStep: false,
		Invoke: func(ctx context.Context, sender channel.Sender, args map[string]any) {
			sender.Send(ctx, channel.Ok("1_700_000_000"))
			sender.Close()
		},
	}))
	svc := scheduler.New(registry, scheduler.Options{Persistence: persistence.NewInMemory()})
	svc.OpenSession("alice", []string{"time"})
	return New(svc), svc
}

func TestSubmitTickDrainHappyPath(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()

	payload, err := a.Submit(ctx, "alice", "current_time", "ext-1", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "queued", payload.Status)
	assert.Equal(t, "ext-1", payload.ExternalID)

	require.Eventually(t, func() bool {
		n, err := a.Tick(ctx, "alice")
		require.NoError(t, err)
		return n > 0
	}, time.Second, time.Millisecond)

	completions, err := a.DrainCompletions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, completions, 1)
	assert.True(t, completions[0].IsFinal)
	assert.Equal(t, "1_700_000_000", completions[0].Result.Value)
}

func TestSubmitUnknownToolReturnsError(t *testing.T) {
	a, _ := newTestAdapter(t)
	_, err := a.Submit(context.Background(), "alice", "swap_tokens", "ext-3", map[string]any{})
	assert.Error(t, err)
}

func TestCleanupThenRestore(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.Submit(ctx, "alice", "current_time", "ext-1", map[string]any{})
	require.NoError(t, err)

	require.NoError(t, a.Cleanup(ctx, "alice", time.Second))

	found, err := a.Restore(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)

	completions, err := a.DrainCompletions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, completions, 1)
}
