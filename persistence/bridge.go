// Package persistence defines the bridge contract that translates a
// quiesced session.Snapshot to and from durable rows, and a default
// in-memory implementation suitable for tests and local development.
// Durable backends live in the persistence/mongo and persistence/redis
// subpackages; both satisfy the same Bridge contract.
package persistence

import (
	"context"
	"errors"
	"sync"

	"github.com/sessiontools/toolsched/call"
	"github.com/sessiontools/toolsched/schederrors"
	"github.com/sessiontools/toolsched/session"
)

var errSessionIDRequired = errors.New("session id is required")

// Bridge persists and restores session snapshots. Storage model is opaque
// to the core: one row per session keyed by session id, containing
// namespaces, available_tool_names, and a serialized completed_calls
// sequence.
type Bridge interface {
	// Save persists snapshot for sessionID. Per the error handling policy, a
	// failure here means the quiesce snapshot is discarded with a logged
	// warning; logout still succeeds. The core never retries.
	Save(ctx context.Context, sessionID string, snapshot session.Snapshot) error
	// Load returns the persisted snapshot for sessionID. found is false when
	// no prior state exists (not an error); a non-nil error indicates a
	// genuine storage failure, treated by callers as "no prior state" per
	// the StorageError policy.
	Load(ctx context.Context, sessionID string) (snapshot session.Snapshot, found bool, err error)
}

// InMemory is a Bridge backed by a mutex-guarded map. It is intended for
// tests and local development; production deployments should use
// persistence/mongo or persistence/redis.
type InMemory struct {
	mu   sync.RWMutex
	rows map[string]session.Snapshot
}

// NewInMemory returns an empty InMemory bridge. Safe for concurrent use.
func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[string]session.Snapshot)}
}

// Save implements Bridge.
func (b *InMemory) Save(_ context.Context, sessionID string, snapshot session.Snapshot) error {
	if sessionID == "" {
		return schederrors.NewStorageError("save", sessionID, errSessionIDRequired)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[sessionID] = cloneSnapshot(snapshot)
	return nil
}

// Load implements Bridge.
func (b *InMemory) Load(_ context.Context, sessionID string) (session.Snapshot, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	row, ok := b.rows[sessionID]
	if !ok {
		return session.Snapshot{}, false, nil
	}
	return cloneSnapshot(row), true, nil
}

func cloneSnapshot(in session.Snapshot) session.Snapshot {
	out := in
	out.Namespaces = append([]string(nil), in.Namespaces...)
	out.AvailableToolNames = append([]string(nil), in.AvailableToolNames...)
	out.CompletedCalls = append([]call.Completion(nil), in.CompletedCalls...)
	return out
}
