package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cassiomorais/checkout/internal/domain/event"
)

var (
	ErrHandlerRequired          = errors.New("handler is required")
	ErrHandlerAlreadyRegistered = errors.New("handler already registered")
)

// Handler applies the effect of one event. It runs inside the consumer's local
// transaction, so every write it makes commits together with the inbox row.
type Handler func(ctx context.Context, ev event.Event) error

// Registry maps event kinds to the handler of one consumer.
type Registry struct {
	mu       sync.RWMutex
	handlers map[event.Kind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[event.Kind]Handler{}}
}

func (r *Registry) Register(kind event.Kind, h Handler) error {
	if h == nil {
		return ErrHandlerRequired
	}
	if _, err := event.Destination(kind); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerAlreadyRegistered, kind)
	}
	r.handlers[kind] = h
	return nil
}

func (r *Registry) Lookup(kind event.Kind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Destinations returns the destinations the registered kinds are published to.
func (r *Registry) Destinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	var out []string
	for _, kind := range event.Kinds() {
		if _, ok := r.handlers[kind]; !ok {
			continue
		}
		dest, _ := event.Destination(kind)
		if !seen[dest] {
			seen[dest] = true
			out = append(out, dest)
		}
	}
	return out
}
