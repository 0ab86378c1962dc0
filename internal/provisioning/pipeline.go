package provisioning

import (
	"fmt"
	"time"

	"github.com/imamik/stackforge/internal/engine"
)

// Pipeline runs phases in order.
type Pipeline struct {
	Phases []Phase
}

// NewPipeline creates a pipeline from phases.
func NewPipeline(phases ...Phase) *Pipeline {
	return &Pipeline{Phases: phases}
}

// Run executes every phase, stopping at the first failure.
func (p *Pipeline) Run(ctx *Context) error {
	return RunPhases(ctx, p.Phases)
}

// RunPhases executes all phases sequentially.
func RunPhases(ctx *Context, phases []Phase) error {
	start := time.Now()
	for i, phase := range phases {
		phaseStart := time.Now()
		name := fmt.Sprintf("%s (%d/%d)", phase.Name(), i+1, len(phases))

		ctx.Observer.Event(engine.Event{Type: engine.EventPhaseStarted, Resource: phase.Name(), Message: name})
		if err := phase.Provision(ctx); err != nil {
			ctx.Observer.Event(engine.Event{Type: engine.EventPhaseFailed, Resource: phase.Name(), Message: err.Error()})
			return fmt.Errorf("%s phase failed: %w", phase.Name(), err)
		}
		ctx.Observer.Event(engine.Event{
			Type:     engine.EventPhaseCompleted,
			Resource: phase.Name(),
			Message:  fmt.Sprintf("%s declared in %v", name, time.Since(phaseStart).Round(time.Millisecond)),
		})
	}
	ctx.Observer.Printf("Declared %d phases in %v", len(phases), time.Since(start).Round(time.Millisecond))
	return nil
}
