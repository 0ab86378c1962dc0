package provisioning

import (
	"context"

	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/engine"
	"github.com/imamik/stackforge/internal/graph"
)

// Context wraps everything a phase needs to declare its nodes.
type Context struct {
	context.Context
	Env config.Environment
	// ZoneID is the DNS zone serving Env.Subdomain(), resolved before
	// the graph is built.
	ZoneID   string
	Builder  *graph.Builder
	Observer engine.Observer
}

// NewContext creates a build context with a fresh graph builder.
func NewContext(ctx context.Context, env config.Environment, zoneID string, observer engine.Observer) *Context {
	if observer == nil {
		observer = engine.NopObserver{}
	}
	return &Context{
		Context:  ctx,
		Env:      env,
		ZoneID:   zoneID,
		Builder:  graph.NewBuilder(),
		Observer: observer,
	}
}
