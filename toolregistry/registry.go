// Package toolregistry implements the process-wide catalog mapping tool
// names to capability descriptors and invokable entry points. Registration
// happens at startup; lookup is hot and is taken as a read snapshot once per
// session instantiation.
package toolregistry

import (
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/sessiontools/toolsched/channel"
	"github.com/sessiontools/toolsched/schederrors"
	"github.com/sessiontools/toolsched/telemetry"
)

// Invoke is the cooperative task body bound to a tool. It receives a
// channel.Sender half and the validated, already-schema-checked arguments,
// and runs to completion emitting zero or more values followed by closing
// the sender (Multi) or exactly one value (Single). The concrete sender the
// scheduler passes in is chosen per the Single/Multi selection rule, never
// by the tool body itself.
type Invoke func(ctx context.Context, sender channel.Sender, args map[string]any)

// Descriptor is one registry entry: name, namespace, human-readable
// description, argument schema, the multi-step flag, and the invocation
// closure.
type Descriptor struct {
	// Name uniquely identifies the tool process-wide.
	Name string
	// Namespace partitions tools for per-session visibility.
	Namespace string
	// Description is human-readable context surfaced to the model/UI.
	Description string
	// MultiStep selects the Multi channel variant at submission time when
	// true, Single otherwise.
	MultiStep bool
	// Schema is the compiled JSON schema used to reject malformed arguments
	// before a call is spawned. A nil Schema accepts any arguments.
	Schema *jsonschema.Schema
	// Invoke runs the tool body. Must not be nil.
	Invoke Invoke
}

// Registry is the process-wide tool catalog. The zero value is not usable;
// construct with New.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Descriptor
	metrics telemetry.Metrics
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithMetrics attaches a telemetry.Metrics recorder for register/lookup
// counters. Defaults to a noop recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New constructs an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]Descriptor),
		metrics: telemetry.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a descriptor. Registration is rare (startup-time) and is
// guarded by the same lock as lookup, so it is safe to call concurrently
// with reads, but fails fast on name collisions.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("toolregistry: descriptor name must not be empty")
	}
	if d.Invoke == nil {
		return fmt.Errorf("toolregistry: descriptor %q must provide Invoke", d.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[d.Name]; exists {
		return fmt.Errorf("%w: %s", schederrors.ErrDuplicateTool, d.Name)
	}
	r.entries[d.Name] = d
	r.metrics.IncCounter("toolregistry.register", 1, "tool", d.Name)
	return nil
}

// Lookup returns the descriptor for name, or false if no such tool is
// registered.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entries[name]
	r.metrics.IncCounter("toolregistry.lookup", 1, "tool", name, "hit", fmt.Sprintf("%t", ok))
	return d, ok
}

// VisibleTo returns a name-keyed snapshot of descriptors whose namespace
// appears in namespaces, used to populate a session handler's
// available_tools. The scheduler calls this once per session instantiation
// (or restore) and treats the result as immutable for that session's
// lifetime.
func (r *Registry) VisibleTo(namespaces []string) map[string]Descriptor {
	allowed := make(map[string]struct{}, len(namespaces))
	for _, ns := range namespaces {
		allowed[ns] = struct{}{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	visible := make(map[string]Descriptor)
	for name, d := range r.entries {
		if _, ok := allowed[d.Namespace]; ok {
			visible[name] = d
		}
	}
	return visible
}

// Validate checks args against the tool's declared argument schema. A
// missing tool returns schederrors.ErrUnknownTool; a schema mismatch returns
// a *schederrors.SchemaError.
func (r *Registry) Validate(name string, args map[string]any) error {
	d, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", schederrors.ErrUnknownTool, name)
	}
	if d.Schema == nil {
		return nil
	}
	if err := d.Schema.Validate(args); err != nil {
		return schederrors.NewSchemaError(name, err)
	}
	return nil
}
