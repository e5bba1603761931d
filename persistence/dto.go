package persistence

import (
	"errors"
	"time"

	"github.com/sessiontools/toolsched/call"
	"github.com/sessiontools/toolsched/channel"
	"github.com/sessiontools/toolsched/session"
)

// CurrentSchemaVersion is stamped onto every snapshot this build persists.
// Durable backends use it to detect rows written by an older shape of
// SnapshotDTO before attempting to decode them.
const CurrentSchemaVersion = 1

// SnapshotDTO is the wire/storage shape of a session.Snapshot. Completions
// are value-serializable because their result is a string-typed Ok or Err
// (per the persistence contract): CompletionDTO flattens the error
// interface down to a string so durable backends (Mongo, Redis, JSON files)
// can round-trip it without registering concrete error types.
//
// SchemaVersion and PersistedAt are storage bookkeeping, not session state:
// ToDTO/FromDTO round-trip every other field against session.Snapshot, but
// SchemaVersion is stamped by ToDTO and PersistedAt by the Mongo and Redis
// bridges at save time, and FromDTO drops both since session.Snapshot has
// no fields for them.
type SnapshotDTO struct {
	SessionID          string          `bson:"session_id" json:"session_id"`
	Namespaces         []string        `bson:"namespaces" json:"namespaces"`
	AvailableToolNames []string        `bson:"available_tool_names" json:"available_tool_names"`
	CompletedCalls     []CompletionDTO `bson:"completed_calls" json:"completed_calls"`
	SchemaVersion      int             `bson:"schema_version" json:"schema_version"`
	PersistedAt        time.Time       `bson:"persisted_at" json:"persisted_at"`
}

// CompletionDTO is the durable shape of one call.Completion.
type CompletionDTO struct {
	Name        string `bson:"name" json:"name"`
	ID          string `bson:"id" json:"id"`
	ExternalID  string `bson:"external_id" json:"external_id"`
	IsMultiStep bool   `bson:"is_multi_step" json:"is_multi_step"`
	IsFinal     bool   `bson:"is_final" json:"is_final"`
	Value       string `bson:"value" json:"value"`
	ErrMessage  string `bson:"err_message,omitempty" json:"err_message,omitempty"`
}

// ToDTO converts a session.Snapshot into its durable representation.
func ToDTO(snapshot session.Snapshot) SnapshotDTO {
	dto := SnapshotDTO{
		SessionID:          snapshot.SessionID,
		Namespaces:         append([]string(nil), snapshot.Namespaces...),
		AvailableToolNames: append([]string(nil), snapshot.AvailableToolNames...),
		CompletedCalls:     make([]CompletionDTO, len(snapshot.CompletedCalls)),
		SchemaVersion:      CurrentSchemaVersion,
	}
	for i, c := range snapshot.CompletedCalls {
		cd := CompletionDTO{
			Name:        c.Metadata.Name,
			ID:          c.Metadata.ID,
			ExternalID:  c.Metadata.ExternalID,
			IsMultiStep: c.Metadata.IsMultiStep,
			IsFinal:     c.IsFinal,
			Value:       c.Result.Value,
		}
		if c.Result.Err != nil {
			cd.ErrMessage = c.Result.Err.Error()
		}
		dto.CompletedCalls[i] = cd
	}
	return dto
}

// FromDTO reconstructs a session.Snapshot from its durable representation.
// Error messages are rehydrated as plain errors.New values: the payload is
// data, not code, so no attempt is made to recover the original error's
// concrete type.
func FromDTO(dto SnapshotDTO) session.Snapshot {
	snapshot := session.Snapshot{
		SessionID:          dto.SessionID,
		Namespaces:         append([]string(nil), dto.Namespaces...),
		AvailableToolNames: append([]string(nil), dto.AvailableToolNames...),
		CompletedCalls:     make([]call.Completion, len(dto.CompletedCalls)),
	}
	for i, cd := range dto.CompletedCalls {
		result := channel.Ok(cd.Value)
		if cd.ErrMessage != "" {
			result = channel.Err(errors.New(cd.ErrMessage))
		}
		snapshot.CompletedCalls[i] = call.Completion{
			Metadata: call.Metadata{
				Name:        cd.Name,
				ID:          cd.ID,
				ExternalID:  cd.ExternalID,
				IsMultiStep: cd.IsMultiStep,
			},
			IsFinal: cd.IsFinal,
			Result:  result,
		}
	}
	return snapshot
}
