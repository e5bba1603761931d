package session

import "github.com/sessiontools/toolsched/call"

// Snapshot is the durable value-typed artifact for one session: the
// PersistedHandlerState of the design. A snapshot is only ever taken when a
// handler's unresolved and ongoing lists are both empty, so it carries no
// ephemeral channel state.
type Snapshot struct {
	// SessionID identifies the session this snapshot belongs to.
	SessionID string
	// Namespaces is the ordered set of namespaces the session had access to.
	Namespaces []string
	// AvailableToolNames is the ordered subset of registry names the session
	// could invoke at the time of the snapshot.
	AvailableToolNames []string
	// CompletedCalls is the ordered sequence of completions that had not yet
	// been consumed by the model loop.
	CompletedCalls []call.Completion
}
