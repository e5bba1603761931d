package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessiontools/toolsched/telemetry"
)

// recordingMetrics captures IncCounter calls by name, for asserting that
// TrySend backpressure is actually counted rather than just dropped.
type recordingMetrics struct {
	counts map[string]int
}

var _ telemetry.Metrics = (*recordingMetrics)(nil)

func newRecordingMetrics() *recordingMetrics { return &recordingMetrics{counts: map[string]int{}} }

func (r *recordingMetrics) IncCounter(name string, _ float64, _ ...string) { r.counts[name]++ }
func (r *recordingMetrics) RecordTimer(string, time.Duration, ...string)   {}
func (r *recordingMetrics) RecordGauge(string, float64, ...string)        {}

func TestSingleChannelHappyPath(t *testing.T) {
	pair := NewSingle()
	require.Equal(t, Single, pair.Kind)

	_, status := pair.Receiver.Poll(context.Background())
	assert.Equal(t, Pending, status)

	require.NoError(t, pair.Sender.Send(context.Background(), Ok("42")))

	result, status := pair.Receiver.Poll(context.Background())
	require.Equal(t, Ready, status)
	assert.Equal(t, "42", result.Value)

	_, status = pair.Receiver.Poll(context.Background())
	assert.Equal(t, Closed, status)
}

func TestSingleChannelSecondSendIsNoop(t *testing.T) {
	pair := NewSingle()
	require.NoError(t, pair.Sender.Send(context.Background(), Ok("first")))
	err := pair.Sender.Send(context.Background(), Ok("second"))
	assert.Error(t, err)

	result, status := pair.Receiver.Poll(context.Background())
	require.Equal(t, Ready, status)
	assert.Equal(t, "first", result.Value)
}

func TestSingleChannelSenderDroppedWithoutSend(t *testing.T) {
	pair := NewSingle()
	pair.Sender.Close()

	result, status := pair.Receiver.Poll(context.Background())
	require.Equal(t, Closed, status)
	assert.ErrorIs(t, result.Err, ErrSenderDropped)
}

func TestMultiChannelOrderingAndClose(t *testing.T) {
	pair := NewMulti(4)
	require.Equal(t, Multi, pair.Kind)

	require.NoError(t, pair.Sender.Send(context.Background(), Ok("a")))
	require.NoError(t, pair.Sender.Send(context.Background(), Ok("b")))
	pair.Sender.Close()

	result, status := pair.Receiver.Poll(context.Background())
	require.Equal(t, Ready, status)
	assert.Equal(t, "a", result.Value)

	// "b" is both the last buffered item and the stream is already closed,
	// so it fuses into one Closed observation carrying "b" rather than a
	// Ready followed by an empty Closed.
	result, status = pair.Receiver.Poll(context.Background())
	require.Equal(t, Closed, status)
	assert.Equal(t, "b", result.Value)

	_, status = pair.Receiver.Poll(context.Background())
	assert.Equal(t, Closed, status)
}

func TestMultiChannelTrySendBackpressure(t *testing.T) {
	pair := NewMulti(1)
	trySender, ok := pair.Sender.(TrySender)
	require.True(t, ok)

	require.NoError(t, trySender.TrySend(Ok("only slot")))
	err := trySender.TrySend(Ok("overflow"))
	assert.ErrorIs(t, err, ErrBackpressure)
}

func TestMultiChannelEmptyCloseIsEmptySuccess(t *testing.T) {
	pair := NewMulti(4)
	pair.Sender.Close()

	_, status := pair.Receiver.Poll(context.Background())
	assert.Equal(t, Closed, status)
}

func TestMultiChannelTrySendBackpressureIsCounted(t *testing.T) {
	metrics := newRecordingMetrics()
	pair := NewMulti(1, metrics)
	trySender := pair.Sender.(TrySender)

	require.NoError(t, trySender.TrySend(Ok("only slot")))
	assert.ErrorIs(t, trySender.TrySend(Ok("overflow")), ErrBackpressure)
	assert.ErrorIs(t, trySender.TrySend(Ok("overflow again")), ErrBackpressure)

	assert.Equal(t, 2, metrics.counts["channel.multi.try_send_backpressure"])
}

func TestNewMultiDefaultsCapacity(t *testing.T) {
	pair := NewMulti(0)
	trySender := pair.Sender.(TrySender)
	for i := 0; i < 100; i++ {
		require.NoError(t, trySender.TrySend(Ok("x")))
	}
	assert.ErrorIs(t, trySender.TrySend(Ok("overflow")), ErrBackpressure)
}
