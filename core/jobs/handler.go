package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	herrors "herald/core/errors"
)

// Handler processes the payload of one job type. A non-nil error marks the
// attempt as failed. The payload is nil when the job carries none.
type Handler[T any] interface {
	Handle(ctx context.Context, payload *T) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc[T any] func(ctx context.Context, payload *T) error

// Handle calls f.
func (f HandlerFunc[T]) Handle(ctx context.Context, payload *T) error {
	return f(ctx, payload)
}

// HandlerRegistry maps job names to handlers.
type HandlerRegistry[T any] interface {
	// RegisterHandler registers a handler for a job name. Registering the
	// reserved exit name or an existing name fails.
	RegisterHandler(name string, handler Handler[T]) error

	// GetHandler returns nil if no handler is registered for name.
	GetHandler(name string) Handler[T]
}

// Registry is the HandlerRegistry used by the dispatcher. Handlers must be
// registered before the registry is passed to Start; afterwards it is frozen,
// registration fails with ErrRegistryFrozen and lookups take no lock.
type Registry[T any] struct {
	mu       sync.Mutex // serializes registration against freeze
	handlers map[string]Handler[T]
	frozen   atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{handlers: make(map[string]Handler[T])}
}

// RegisterHandler implements HandlerRegistry. A call racing Start either
// completes before the worker sees the registry or fails with
// ErrRegistryFrozen.
func (r *Registry[T]) RegisterHandler(name string, handler Handler[T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return fmt.Errorf("register %q: %w", name, ErrRegistryFrozen)
	}
	if name == ExitJobName {
		return ErrReservedName
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %q", herrors.ErrInvalidInput, name)
	}
	if _, exists := r.handlers[name]; exists {
		return &DuplicateHandlerError{Name: name}
	}
	r.handlers[name] = handler
	return nil
}

// Register registers fn under name.
func (r *Registry[T]) Register(name string, fn func(ctx context.Context, payload *T) error) error {
	if fn == nil {
		return r.RegisterHandler(name, nil)
	}
	return r.RegisterHandler(name, HandlerFunc[T](fn))
}

// GetHandler implements HandlerRegistry.
func (r *Registry[T]) GetHandler(name string) Handler[T] {
	return r.handlers[name]
}

// Names returns the registered names in sorted order.
func (r *Registry[T]) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered handlers.
func (r *Registry[T]) Len() int { return len(r.handlers) }

// Frozen reports whether the registry has been handed to a dispatcher.
func (r *Registry[T]) Frozen() bool { return r.frozen.Load() }

func (r *Registry[T]) freeze() {
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}
