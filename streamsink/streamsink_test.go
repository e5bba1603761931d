package streamsink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessiontools/toolsched/call"
	"github.com/sessiontools/toolsched/channel"
	"github.com/sessiontools/toolsched/telemetry"
)

func TestFromCompletionProjectsErrorToMessage(t *testing.T) {
	c := call.Completion{
		Metadata: call.Metadata{Name: "current_time", ID: "current_time/1"},
		IsFinal:  true,
		Result:   channel.Err(errors.New("boom")),
	}
	update := FromCompletion("alice", c)
	assert.Equal(t, "alice", update.SessionID)
	assert.Equal(t, "boom", update.ErrMsg)
	assert.True(t, update.IsFinal)
}

func TestBusFansOutToAllSubscribersDespiteErrors(t *testing.T) {
	bus := NewBus()
	var firstCalled, secondCalled bool

	bus.Subscribe(SubscriberFunc(func(ctx context.Context, update Update) error {
		firstCalled = true
		return errors.New("subscriber failure")
	}))
	bus.Subscribe(SubscriberFunc(func(ctx context.Context, update Update) error {
		secondCalled = true
		return nil
	}))

	err := bus.Send(context.Background(), Update{SessionID: "alice"})
	require.NoError(t, err)
	assert.True(t, firstCalled)
	assert.True(t, secondCalled)
}

func TestBusSubscriptionCloseStopsDelivery(t *testing.T) {
	bus := NewBus()
	var calls int
	sub := bus.Subscribe(SubscriberFunc(func(ctx context.Context, update Update) error {
		calls++
		return nil
	}))
	sub.Close()
	sub.Close() // idempotent

	require.NoError(t, bus.Send(context.Background(), Update{SessionID: "alice"}))
	assert.Equal(t, 0, calls)
}

func TestForwardNilSinkIsNoop(t *testing.T) {
	Forward(context.Background(), nil, telemetry.NewNoopLogger(), Update{})
}

func TestForwardLogsSinkErrorWithoutPanicking(t *testing.T) {
	failing := SinkFunc(func(ctx context.Context, update Update) error { return errors.New("down") })
	Forward(context.Background(), failing, telemetry.NewNoopLogger(), Update{SessionID: "alice"})
}
