// Package dispatch routes decoded records to per-type handlers. Records
// without a handler are left to the caller to accumulate.
package dispatch

import (
	"context"
	"sync"

	"github.com/pithecene-io/sliderule/types"
)

// Handler consumes one record. A returned error aborts the stream that
// produced the record.
type Handler func(ctx context.Context, rec *types.Record) error

// Registry maps record type names to handlers. It is safe for concurrent
// use; sessions read it, callers may register at any time.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs h for recordType, replacing any previous handler.
func (r *Registry) Register(recordType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[recordType] = h
}

// Unregister removes the handler for recordType.
func (r *Registry) Unregister(recordType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, recordType)
}

// Lookup returns the handler for recordType.
func (r *Registry) Lookup(recordType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[recordType]
	return h, ok
}

// Clone returns an independent copy, so one request can add handlers
// without affecting others that share the base registry.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &Registry{handlers: make(map[string]Handler, len(r.handlers))}
	for k, v := range r.handlers {
		out.handlers[k] = v
	}
	return out
}

// Dispatch hands rec to its handler. handled is false when no handler is
// registered for rec.Type; the record then belongs in the result list.
func (r *Registry) Dispatch(ctx context.Context, rec *types.Record) (handled bool, err error) {
	if r == nil {
		return false, nil
	}
	h, ok := r.Lookup(rec.Type)
	if !ok {
		return false, nil
	}
	return true, h(ctx, rec)
}
