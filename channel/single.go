package channel

import (
	"context"
	"fmt"
	"sync"
)

// singleChannel implements both Receiver and Sender for the Single variant:
// a one-shot slot carrying a Result, producible once. No queue is
// allocated — this is the size optimization the design calls for when a
// tool is not multi-step.
type singleChannel struct {
	mu       sync.Mutex
	result   Result
	sent     bool
	closed   bool
	consumed bool
}

func newSingleChannel() *singleChannel {
	return &singleChannel{}
}

// Send delivers the one value this slot will ever carry. At most one call
// is permitted; a second call returns an error.
func (s *singleChannel) Send(_ context.Context, result Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent || s.closed {
		return fmt.Errorf("channel: single sender: send called after send/close")
	}
	s.result = result
	s.sent = true
	s.closed = true
	return nil
}

// Close marks the slot closed. If called before Send, the receiver observes
// ErrSenderDropped on its next poll.
func (s *singleChannel) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Poll returns Ready with the sent value exactly once, then Closed on every
// subsequent call (or immediately, with ErrSenderDropped, if the sender was
// dropped without sending).
func (s *singleChannel) Poll(context.Context) (Result, PollStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent && !s.consumed {
		s.consumed = true
		return s.result, Ready
	}
	if s.closed {
		if !s.sent {
			return Result{Err: ErrSenderDropped}, Closed
		}
		return Result{}, Closed
	}
	return Result{}, Pending
}
