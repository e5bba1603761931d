package streamsink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
)

// PulseSink forwards Updates onto a goa.design/pulse stream so a UI-facing
// consumer can subscribe independently of the authoritative completion
// path. One stream is shared across all sessions; consumers filter by
// Update.SessionID.
type PulseSink struct {
	stream *streaming.Stream
	event  string
}

// NewPulseSink opens (creating if needed) the named Pulse stream backed by
// redisClient. event names the Pulse entry type used for each publish;
// when empty it defaults to "tool_update".
func NewPulseSink(streamName string, redisClient *redis.Client, event string) (*PulseSink, error) {
	if streamName == "" {
		return nil, fmt.Errorf("streamsink: pulse stream name is required")
	}
	if event == "" {
		event = "tool_update"
	}
	stream, err := streaming.NewStream(streamName, redisClient)
	if err != nil {
		return nil, fmt.Errorf("streamsink: open pulse stream %q: %w", streamName, err)
	}
	return &PulseSink{stream: stream, event: event}, nil
}

// Send publishes update as one Pulse stream entry.
func (s *PulseSink) Send(ctx context.Context, update Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("streamsink: marshal update: %w", err)
	}
	_, err = s.stream.Add(ctx, s.event, payload)
	return err
}
