package provisioning

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/engine"
	"github.com/imamik/stackforge/internal/graph"
)

// recordingObserver captures events for assertions.
type recordingObserver struct {
	mu     sync.Mutex
	events []engine.Event
}

func (o *recordingObserver) Printf(string, ...any) {}

func (o *recordingObserver) Event(e engine.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) WithFields(map[string]string) engine.Observer { return o }

func (o *recordingObserver) types() []engine.EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]engine.EventType, 0, len(o.events))
	for _, e := range o.events {
		out = append(out, e.Type)
	}
	return out
}

type phaseFuncImpl struct {
	name string
	fn   func(*Context) error
}

func (p *phaseFuncImpl) Name() string                 { return p.name }
func (p *phaseFuncImpl) Provision(ctx *Context) error { return p.fn(ctx) }

func phaseFunc(name string, fn func(*Context) error) Phase {
	return &phaseFuncImpl{name: name, fn: fn}
}

func testContext(obs engine.Observer) *Context {
	return NewContext(context.Background(), config.Environment{}, "Z123", obs)
}

func TestNewPipeline(t *testing.T) {
	t.Parallel()
	p1 := phaseFunc("phase-1", nil)
	p2 := phaseFunc("phase-2", nil)

	pipeline := NewPipeline(p1, p2)

	require.NotNil(t, pipeline)
	assert.Len(t, pipeline.Phases, 2)
	assert.Equal(t, "phase-1", pipeline.Phases[0].Name())
	assert.Equal(t, "phase-2", pipeline.Phases[1].Name())
}

func TestPipeline_Run_SharesBuilderInOrder(t *testing.T) {
	t.Parallel()
	var executed []string
	pipeline := NewPipeline(
		phaseFunc("network", func(ctx *Context) error {
			executed = append(executed, "network")
			_, err := ctx.Builder.Module("network").Add("vpc", "AWS::EC2::VPC", graph.Attrs{})
			return err
		}),
		phaseFunc("compute", func(ctx *Context) error {
			executed = append(executed, "compute")
			require.True(t, ctx.Builder.Has(graph.Addr("network", "vpc")))
			return nil
		}),
	)

	ctx := testContext(nil)
	require.NoError(t, pipeline.Run(ctx))
	assert.Equal(t, []string{"network", "compute"}, executed)
}

func TestPipeline_Run_StopsOnError(t *testing.T) {
	t.Parallel()
	var executed []string
	obs := &recordingObserver{}

	pipeline := NewPipeline(
		phaseFunc("network", func(*Context) error { executed = append(executed, "network"); return nil }),
		phaseFunc("compute", func(*Context) error { return fmt.Errorf("unknown tier") }),
		phaseFunc("observability", func(*Context) error { executed = append(executed, "observability"); return nil }),
	)

	err := pipeline.Run(testContext(obs))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "compute phase failed")
	assert.Contains(t, err.Error(), "unknown tier")
	assert.Equal(t, []string{"network"}, executed)
	assert.Equal(t, []engine.EventType{
		engine.EventPhaseStarted, engine.EventPhaseCompleted,
		engine.EventPhaseStarted, engine.EventPhaseFailed,
	}, obs.types())
}

func TestPipeline_Run_Empty(t *testing.T) {
	t.Parallel()
	require.NoError(t, NewPipeline().Run(testContext(nil)))
}

func TestNewContext_DefaultsObserver(t *testing.T) {
	t.Parallel()
	ctx := testContext(nil)
	assert.NotNil(t, ctx.Builder)
	assert.IsType(t, engine.NopObserver{}, ctx.Observer)
	assert.Equal(t, "Z123", ctx.ZoneID)
}
