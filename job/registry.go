package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Perform processes one fetched job. Args are the job's positional
// arguments as decoded JSON values. A non-nil return reports the job as
// failed to the server.
type Perform func(ctx context.Context, args ...any) error

// Registry maps jobtype strings to handler functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Perform
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Perform),
	}
}

// Register binds a handler to a jobtype, replacing any previous binding.
func (r *Registry) Register(jobtype string, fn Perform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobtype] = fn
}

// Get returns the handler for the given jobtype.
// Returns false if no handler is registered.
func (r *Registry) Get(jobtype string) (Perform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobtype]

	return h, ok
}

// Names returns all registered jobtypes.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}

	return names
}

// Definition is a typed job definition whose handler receives the first
// positional arg unmarshalled into T.
type Definition[T any] struct {
	// Type is the jobtype this definition handles.
	Type string

	// Handler processes the decoded payload.
	Handler func(ctx context.Context, input T) error
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](jobtype string, handler func(ctx context.Context, input T) error) *Definition[T] {
	return &Definition[T]{
		Type:    jobtype,
		Handler: handler,
	}
}

// RegisterDefinition registers a typed job definition. The generic handler
// is wrapped in a closure that re-encodes args[0] and unmarshals it into T
// before calling the typed handler. Jobs with no args get the zero T.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	r.Register(def.Type, func(ctx context.Context, args ...any) error {
		var t T
		if len(args) > 0 {
			raw, err := json.Marshal(args[0])
			if err != nil {
				return fmt.Errorf("encode arg for job %q: %w", def.Type, err)
			}
			if err := json.Unmarshal(raw, &t); err != nil {
				return fmt.Errorf("unmarshal arg for job %q: %w", def.Type, err)
			}
		}

		return def.Handler(ctx, t)
	})
}
