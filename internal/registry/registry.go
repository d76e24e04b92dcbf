// Package registry maps intent categories to specialist handlers. Each
// category binds to exactly one handler factory at configuration time;
// instances are built lazily and cached for the process lifetime.
// Construction is single-flight per category so a first-request thundering
// herd builds each specialist exactly once. Invocation is not guarded:
// cached handlers are shared read-mostly across sessions.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"shopdesk/internal/logging"
	"shopdesk/internal/types"
)

// Handler is the uniform specialist capability. Implementations may call
// catalogs, order stores, or a language model internally; the dispatch engine
// only sees text, confidence, and metadata. Handlers should honor ctx
// cancellation and must not panic (a panic is caught and converted to a
// failed outcome anyway).
type Handler interface {
	Handle(ctx context.Context, message string, history []types.Turn, userContext map[string]string) (text string, confidence float64, metadata map[string]any, err error)
}

// Factory builds the handler for a category. Factories run at most once per
// category per process; expensive setup (warm caches, connections) belongs
// here.
type Factory func() (Handler, error)

// ErrUnknownCategory is returned when no factory is bound to a category.
var ErrUnknownCategory = errors.New("no handler registered for category")

// Registry holds the category -> factory bindings and the instance cache.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	instances map[string]Handler
	order     []string

	group singleflight.Group
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Handler),
	}
}

// Register binds a category to a handler factory. Bindings are configured
// once at startup; rebinding a category is a wiring bug and errors.
func (r *Registry) Register(category string, factory Factory) error {
	if category == "" {
		return fmt.Errorf("category cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory cannot be nil for category %s", category)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[category]; exists {
		return fmt.Errorf("category %s already registered", category)
	}
	r.factories[category] = factory
	r.order = append(r.order, category)
	logging.RegistryDebug("Register: bound category %s", category)
	return nil
}

// Categories returns the registered categories in registration order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve returns the cached handler for a category, constructing it on
// first use. Under concurrent first use the factory runs exactly once; every
// caller shares the single construction result. A failed construction is not
// cached, so a later turn retries it.
func (r *Registry) Resolve(category string) (Handler, error) {
	r.mu.RLock()
	if h, ok := r.instances[category]; ok {
		r.mu.RUnlock()
		return h, nil
	}
	factory, bound := r.factories[category]
	r.mu.RUnlock()

	if !bound {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	v, err, _ := r.group.Do(category, func() (interface{}, error) {
		// Re-check under the flight: a previous flight may have won.
		r.mu.RLock()
		cached, ok := r.instances[category]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		logging.Registry("Resolve: constructing handler for category %s", category)
		h, err := factory()
		if err != nil {
			return nil, fmt.Errorf("failed to construct handler for %s: %w", category, err)
		}

		r.mu.Lock()
		r.instances[category] = h
		r.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Handler), nil
}

// Invoke resolves and runs the category's handler, converting every fault
// (construction failure, handler error, panic, ctx timeout) into a failed
// DispatchOutcome. Handlers must never crash the engine; this is where that
// contract is enforced.
func (r *Registry) Invoke(ctx context.Context, category, message string, state *types.ConversationState, userContext map[string]string) types.DispatchOutcome {
	handler, err := r.Resolve(category)
	if err != nil {
		return types.DispatchOutcome{
			Category:    category,
			ErrorDetail: err.Error(),
		}
	}

	type reply struct {
		text       string
		confidence float64
		metadata   map[string]any
		err        error
	}
	replyCh := make(chan reply, 1)

	var history []types.Turn
	if state != nil {
		history = state.TurnHistory
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				replyCh <- reply{err: fmt.Errorf("handler panic: %v", rec)}
			}
		}()
		text, confidence, metadata, err := handler.Handle(ctx, message, history, userContext)
		replyCh <- reply{text: text, confidence: confidence, metadata: metadata, err: err}
	}()

	select {
	case <-ctx.Done():
		logging.RegistryDebug("Invoke: handler for %s timed out: %v", category, ctx.Err())
		return types.DispatchOutcome{
			Category:    category,
			ErrorDetail: fmt.Sprintf("handler timeout: %v", ctx.Err()),
		}
	case rep := <-replyCh:
		if rep.err != nil {
			return types.DispatchOutcome{
				Category:    category,
				ErrorDetail: rep.err.Error(),
			}
		}
		return types.DispatchOutcome{
			Category:     category,
			ResponseText: rep.text,
			Confidence:   rep.confidence,
			Metadata:     rep.metadata,
			Succeeded:    true,
		}
	}
}
