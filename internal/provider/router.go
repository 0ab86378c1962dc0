package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/imamik/stackforge/internal/util/errdefs"
)

// Router dispatches requests to the provider registered for their type,
// falling back to a default provider.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]Provider
	fallback Provider
}

// NewRouter returns a router. fallback may be nil.
func NewRouter(fallback Provider) *Router {
	return &Router{routes: make(map[string]Provider), fallback: fallback}
}

// Handle registers p for resourceType, replacing any previous handler.
func (r *Router) Handle(resourceType string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[resourceType] = p
}

// Types returns the explicitly registered types, sorted.
func (r *Router) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.routes))
	for t := range r.routes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *Router) route(req Request) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.routes[req.Type]; ok {
		return p, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, &errdefs.ConfigurationError{
		Field:   req.Addr.String(),
		Message: "no provider handles resource type " + req.Type,
	}
}

// Create dispatches a create.
func (r *Router) Create(ctx context.Context, req Request) (Result, error) {
	p, err := r.route(req)
	if err != nil {
		return Result{}, err
	}
	return p.Create(ctx, req)
}

// Read dispatches a read.
func (r *Router) Read(ctx context.Context, req Request) (Result, error) {
	p, err := r.route(req)
	if err != nil {
		return Result{}, err
	}
	return p.Read(ctx, req)
}

// Update dispatches an update.
func (r *Router) Update(ctx context.Context, req Request) (Result, error) {
	p, err := r.route(req)
	if err != nil {
		return Result{}, err
	}
	return p.Update(ctx, req)
}

// Delete dispatches a delete.
func (r *Router) Delete(ctx context.Context, req Request) error {
	p, err := r.route(req)
	if err != nil {
		return err
	}
	return p.Delete(ctx, req)
}
