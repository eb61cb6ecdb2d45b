package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc is a type-erased handler over the raw JSON payload.
type HandlerFunc func(ctx context.Context, payload []byte) Result

type entry struct {
	handler HandlerFunc
	opts    Options
}

// Registry maps job kinds to handlers. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// RegisterDefinition registers a typed definition. A payload that does not
// decode into T is a permanent failure since retrying cannot change it.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, payload []byte) Result {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return Permanent(fmt.Errorf("unmarshal payload for job %q: %w", def.Kind, err))
			}
		}
		return FromError(def.Handler(ctx, t))
	}
	r.Register(def.Kind, handler, def.Opts)
}

// Register installs a raw handler for kind, replacing any previous one.
func (r *Registry) Register(kind string, h HandlerFunc, opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[kind] = entry{handler: h, opts: opts}
}

// Get returns the handler for kind.
func (r *Registry) Get(kind string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[kind]
	return e.handler, ok
}

// Options returns the options registered with kind.
func (r *Registry) Options(kind string) (Options, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[kind]
	return e.opts, ok
}

// Kinds returns all registered job kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.entries))
	for k := range r.entries {
		kinds = append(kinds, k)
	}
	return kinds
}
