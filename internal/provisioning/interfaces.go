package provisioning

// Phase declares one module's nodes on the graph under construction.
type Phase interface {
	// Name returns the human-readable name of this phase.
	Name() string

	// Provision declares the phase's nodes on ctx.Builder.
	Provision(ctx *Context) error
}
