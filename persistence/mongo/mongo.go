// Package mongo implements a persistence.Bridge backed by MongoDB. Each
// session's snapshot is stored as one document keyed by session_id,
// upserted on save so cleanup_session is idempotent under retry.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sessiontools/toolsched/persistence"
	"github.com/sessiontools/toolsched/schederrors"
	"github.com/sessiontools/toolsched/session"
)

const (
	defaultCollection = "toolsched_sessions"
	defaultTimeout     = 5 * time.Second
)

// Options configures the Mongo-backed bridge.
type Options struct {
	// Client is a connected Mongo client. Required.
	Client *mongo.Client
	// Database names the database to use. Required.
	Database string
	// Collection names the collection holding snapshot rows. Defaults to
	// "toolsched_sessions".
	Collection string
	// Timeout bounds each Save/Load round trip. Defaults to 5s.
	Timeout time.Duration
}

// Bridge is a persistence.Bridge backed by MongoDB.
type Bridge struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// New constructs a Bridge and ensures the session_id index exists.
func New(ctx context.Context, opts Options) (*Bridge, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	coll := opts.Client.Database(opts.Database).Collection(collName)
	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(idxCtx, index); err != nil {
		return nil, fmt.Errorf("mongo: ensure session_id index: %w", err)
	}
	return &Bridge{coll: coll, timeout: timeout}, nil
}

type snapshotDocument struct {
	SessionID          string                      `bson:"session_id"`
	Namespaces         []string                    `bson:"namespaces"`
	AvailableToolNames []string                    `bson:"available_tool_names"`
	CompletedCalls     []persistence.CompletionDTO `bson:"completed_calls"`
	SchemaVersion      int                         `bson:"schema_version"`
	PersistedAt        time.Time                   `bson:"persisted_at"`
}

// Save upserts the session's snapshot document.
func (b *Bridge) Save(ctx context.Context, sessionID string, snapshot session.Snapshot) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	dto := persistence.ToDTO(snapshot)
	doc := snapshotDocument{
		SessionID:          sessionID,
		Namespaces:         dto.Namespaces,
		AvailableToolNames: dto.AvailableToolNames,
		CompletedCalls:     dto.CompletedCalls,
		SchemaVersion:      dto.SchemaVersion,
		PersistedAt:        time.Now().UTC(),
	}
	filter := bson.M{"session_id": sessionID}
	update := bson.M{"$set": doc}
	if _, err := b.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return schederrors.NewStorageError("save", sessionID, err)
	}
	return nil
}

// Load fetches the session's snapshot document, if any.
func (b *Bridge) Load(ctx context.Context, sessionID string) (session.Snapshot, bool, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var doc snapshotDocument
	err := b.coll.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return session.Snapshot{}, false, nil
	}
	if err != nil {
		return session.Snapshot{}, false, schederrors.NewStorageError("load", sessionID, err)
	}
	dto := persistence.SnapshotDTO{
		SessionID:          doc.SessionID,
		Namespaces:         doc.Namespaces,
		AvailableToolNames: doc.AvailableToolNames,
		CompletedCalls:     doc.CompletedCalls,
		SchemaVersion:      doc.SchemaVersion,
		PersistedAt:        doc.PersistedAt,
	}
	return persistence.FromDTO(dto), true, nil
}

func (b *Bridge) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}
