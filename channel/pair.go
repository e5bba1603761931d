// Package channel implements the Receiver/Sender pair: a tagged variant with
// exactly two shapes, Single (a one-shot slot) and Multi (a bounded
// stream), presenting one uniform poll_once surface to the handler. This
// avoids paying multi-producer-queue overhead for the common single-shot
// case while still supporting multi-step tools.
package channel

import (
	"context"
	"errors"

	"github.com/sessiontools/toolsched/telemetry"
)

// Result is the value a tool body produces: either a successful string
// payload or an error. It mirrors the design-level Result<Value, Error>;
// Go's zero value (empty Err) is a successful empty-string result.
type Result struct {
	Value string
	Err   error
}

// Ok constructs a successful Result.
func Ok(value string) Result { return Result{Value: value} }

// Err constructs a failed Result.
func Err(err error) Result { return Result{Err: err} }

// Kind tags which variant a Pair holds.
type Kind int

const (
	// Single is a one-shot slot, producible once.
	Single Kind = iota
	// Multi is a bounded stream of items, closed by the producer when done.
	Multi
)

// PollStatus reports the outcome of a non-blocking Receiver.Poll call.
type PollStatus int

const (
	// Pending means no value is available yet; the producer has not closed.
	Pending PollStatus = iota
	// Ready means a value was returned in this poll.
	Ready
	// Closed means the producer is done; no further values will arrive.
	Closed
)

// ErrSenderDropped indicates a Single sender's channel was closed without
// ever sending a value — the receiver's perspective on a dropped producer.
var ErrSenderDropped = errors.New("sender dropped without sending")

// ErrBackpressure is returned by a Multi sender's TrySend when the bounded
// buffer is full.
var ErrBackpressure = errors.New("multi channel backpressure: buffer full")

// Receiver is the uniform polling surface the handler drives. Every poll is
// non-blocking; the scheduler always polls with a no-op waker, so
// implementations must never block.
type Receiver interface {
	// Poll attempts to retrieve the next value without blocking.
	Poll(ctx context.Context) (Result, PollStatus)
}

// Sender is the producer-side handle passed to a tool body.
type Sender interface {
	// Send delivers one value. For Single, only the first call delivers;
	// later calls return an error and leave the delivered value unchanged.
	// For Multi, Send may be called repeatedly until the caller invokes
	// Close.
	//
	// For Multi, Send blocks until capacity is available; tool bodies await
	// it like any other suspension point. Use TrySend for the non-blocking
	// variant. A Single Send never blocks.
	Send(ctx context.Context, result Result) error
	// Close signals that no more values will be produced. For Single, Close
	// before any Send causes the receiver to observe ErrSenderDropped. For
	// Multi, Close ends the stream; any buffered items are still delivered
	// first.
	Close()
}

// TrySender is implemented by Multi senders to expose the non-blocking
// try_send operation described in the component design. Single senders do
// not implement this interface: their Send is already non-blocking because
// the slot has capacity one and is claimed exactly once.
type TrySender interface {
	Sender
	// TrySend attempts to enqueue result without blocking. It fails with
	// ErrBackpressure if the buffer is full.
	TrySend(result Result) error
}

// Pair bundles a Receiver and Sender produced together, tagged by Kind.
type Pair struct {
	Kind     Kind
	Receiver Receiver
	Sender   Sender
}

// NewSingle instantiates a one-shot slot pair: capacity 1, no queue
// allocation. This is the default variant selected by the scheduler when a
// tool descriptor is not multi-step.
func NewSingle() Pair {
	s := newSingleChannel()
	return Pair{Kind: Single, Receiver: s, Sender: s}
}

// NewMulti instantiates a bounded stream pair with the given capacity. A
// capacity of zero or less falls back to the default capacity of 100 items,
// matching the scheduler's default for multi-step tools. An optional
// telemetry.Metrics recorder counts TrySend backpressure failures under
// "channel.multi.try_send_backpressure"; omitting it records to a noop
// recorder instead. The scheduler passes its Options.Metrics here.
func NewMulti(capacity int, metrics ...telemetry.Metrics) Pair {
	if capacity <= 0 {
		capacity = 100
	}
	var m telemetry.Metrics
	if len(metrics) > 0 {
		m = metrics[0]
	}
	mc := newMultiChannel(capacity, m)
	return Pair{Kind: Multi, Receiver: mc, Sender: mc}
}
