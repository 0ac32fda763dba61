package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// HandlerFunc is a type-erased job handler that accepts raw JSON args.
type HandlerFunc func(ctx context.Context, args []byte) error

type entry struct {
	handler HandlerFunc
	timeout time.Duration
}

// Registry maps job classes to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]entry
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]entry)}
}

// RegisterDefinition registers a typed job definition. The handler is
// wrapped in a closure that unmarshals args into T.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, args []byte) error {
		var t T
		if len(args) > 0 {
			if err := json.Unmarshal(args, &t); err != nil {
				return fmt.Errorf("unmarshal args for job %q: %w", def.Name, err)
			}
		}
		return def.Handler(ctx, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Name] = entry{handler: handler, timeout: def.Opts.Timeout}
}

// Get returns the handler for the given job class.
func (r *Registry) Get(class string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.handlers[class]
	return e.handler, ok
}

// Timeout returns the execution limit registered for class, or zero.
func (r *Registry) Timeout(class string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[class].timeout
}

// Names returns all registered job classes, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
