// Package redis implements a persistence.Bridge backed by Redis, reusing
// the same redis/go-redis/v9 dependency that also backs the pulse-based
// streaming sink, for a second, durable concern: each session's snapshot is
// stored as one JSON string value under a namespaced key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sessiontools/toolsched/persistence"
	"github.com/sessiontools/toolsched/schederrors"
	"github.com/sessiontools/toolsched/session"
)

const defaultKeyPrefix = "toolsched:session:"

// Options configures the Redis-backed bridge.
type Options struct {
	// Client is a connected Redis client. Required.
	Client *redis.Client
	// KeyPrefix is prepended to the session id to form the Redis key.
	// Defaults to "toolsched:session:".
	KeyPrefix string
	// TTL, when non-zero, sets an expiration on each saved snapshot. Zero
	// means snapshots never expire on their own.
	TTL time.Duration
}

// Bridge is a persistence.Bridge backed by Redis.
type Bridge struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// New constructs a Bridge.
func New(opts Options) (*Bridge, error) {
	if opts.Client == nil {
		return nil, errors.New("redis: client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Bridge{client: opts.Client, keyPrefix: prefix, ttl: opts.TTL}, nil
}

func (b *Bridge) key(sessionID string) string {
	return b.keyPrefix + sessionID
}

// Save serializes the snapshot to JSON and writes it under the session's key.
func (b *Bridge) Save(ctx context.Context, sessionID string, snapshot session.Snapshot) error {
	dto := persistence.ToDTO(snapshot)
	dto.PersistedAt = time.Now().UTC()
	payload, err := json.Marshal(dto)
	if err != nil {
		return schederrors.NewStorageError("save", sessionID, fmt.Errorf("marshal snapshot: %w", err))
	}
	if err := b.client.Set(ctx, b.key(sessionID), payload, b.ttl).Err(); err != nil {
		return schederrors.NewStorageError("save", sessionID, err)
	}
	return nil
}

// Load fetches and deserializes the session's snapshot, if any.
func (b *Bridge) Load(ctx context.Context, sessionID string) (session.Snapshot, bool, error) {
	payload, err := b.client.Get(ctx, b.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Snapshot{}, false, nil
	}
	if err != nil {
		return session.Snapshot{}, false, schederrors.NewStorageError("load", sessionID, err)
	}
	var dto persistence.SnapshotDTO
	if err := json.Unmarshal(payload, &dto); err != nil {
		return session.Snapshot{}, false, schederrors.NewStorageError("load", sessionID, fmt.Errorf("unmarshal snapshot: %w", err))
	}
	return persistence.FromDTO(dto), true, nil
}
