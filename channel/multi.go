package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/sessiontools/toolsched/telemetry"
)

// multiChannel implements both Receiver and TrySender for the Multi
// variant: a bounded stream of Results. The producer may emit many items,
// then close; a closed stream with no items is an empty success.
type multiChannel struct {
	items   chan Result
	metrics telemetry.Metrics

	mu     sync.Mutex
	closed bool
}

func newMultiChannel(capacity int, metrics telemetry.Metrics) *multiChannel {
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &multiChannel{items: make(chan Result, capacity), metrics: metrics}
}

// Send delivers one item, blocking until buffer capacity is available or
// ctx is done. Tool bodies await this like any other suspension point.
func (m *multiChannel) Send(ctx context.Context, result Result) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("channel: multi sender: send after close")
	}
	m.mu.Unlock()
	select {
	case m.items <- result:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend attempts to enqueue result without blocking, failing with
// ErrBackpressure if the buffer is full.
func (m *multiChannel) TrySend(result Result) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("channel: multi sender: send after close")
	}
	m.mu.Unlock()
	select {
	case m.items <- result:
		return nil
	default:
		m.metrics.IncCounter("channel.multi.try_send_backpressure", 1)
		return ErrBackpressure
	}
}

// Close signals the stream is done. Buffered items are still delivered to
// the receiver before it observes the close.
func (m *multiChannel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.items)
}

// Poll returns Ready for each buffered item in order, then Closed once the
// stream is drained and closed, or Pending if the producer has not yet
// produced or closed.
//
// When the item just received is both the last one buffered and the
// producer has already closed, Poll reports it as Closed rather than Ready,
// carrying that item's Result. This lets a terminal emission double as the
// Stream layer's Final completion instead of requiring one more empty poll
// to notice the close — matching the one-completion-per-emission contract
// multi-step tools are specified against.
func (m *multiChannel) Poll(context.Context) (Result, PollStatus) {
	select {
	case v, ok := <-m.items:
		if !ok {
			return Result{}, Closed
		}
		m.mu.Lock()
		drained := m.closed && len(m.items) == 0
		m.mu.Unlock()
		if drained {
			return v, Closed
		}
		return v, Ready
	default:
		return Result{}, Pending
	}
}
