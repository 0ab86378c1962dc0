// Package fake provides an in-memory Provider that records every call.
package fake

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
)

// Call is one recorded provider call.
type Call struct {
	Op     provider.Operation
	Type   string
	Addr   string
	ID     string
	Inputs graph.Attrs
}

type resource struct {
	typ     string
	inputs  graph.Attrs
	outputs graph.Attrs
}

// Provider is an in-memory provider. It generates identifiers and computed
// attributes for the AWS types in provider.SchemaFor and echoes inputs as
// outputs for every other type.
type Provider struct {
	// Delay is applied to every mutating call.
	Delay time.Duration

	mu          sync.Mutex
	calls       []Call
	resources   map[string]*resource
	seq         int
	failures    map[string]error
	inFlight    int
	maxInFlight int
}

// New returns an empty fake provider.
func New() *Provider {
	return &Provider{
		resources: make(map[string]*resource),
		failures:  make(map[string]error),
	}
}

// FailOn makes every op on addr return err until ClearFailures is called.
func (p *Provider) FailOn(op provider.Operation, addr string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[string(op)+" "+addr] = err
}

// ClearFailures removes all injected failures.
func (p *Provider) ClearFailures() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = make(map[string]error)
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// MutatingCalls counts recorded create, update and delete calls.
func (p *Provider) MutatingCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.Op.Mutating() {
			n++
		}
	}
	return n
}

// CallsFor returns the ops recorded for addr, in order.
func (p *Provider) CallsFor(addr string) []provider.Operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []provider.Operation
	for _, c := range p.calls {
		if c.Addr == addr {
			out = append(out, c.Op)
		}
	}
	return out
}

// MaxConcurrent returns the highest number of overlapping mutating calls.
func (p *Provider) MaxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxInFlight
}

// Live returns how many resources of resourceType exist.
func (p *Provider) Live(resourceType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, r := range p.resources {
		if r.typ == resourceType {
			n++
		}
	}
	return n
}

// Exists reports whether id exists.
func (p *Provider) Exists(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.resources[id]
	return ok
}

// Drift overwrites live attributes of id behind the engine's back.
func (p *Provider) Drift(id string, attrs graph.Attrs) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.resources[id]
	if !ok {
		return
	}
	for k, v := range attrs {
		r.outputs[k] = v
	}
}

// Remove deletes id behind the engine's back, simulating drift.
func (p *Provider) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.resources, id)
}

func (p *Provider) begin(ctx context.Context, op provider.Operation, req provider.Request) error {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Op: op, Type: req.Type, Addr: req.Addr.String(), ID: req.ID, Inputs: maps.Clone(req.Inputs)})
	err := p.failures[string(op)+" "+req.Addr.String()]
	if op.Mutating() {
		p.inFlight++
		if p.inFlight > p.maxInFlight {
			p.maxInFlight = p.inFlight
		}
	}
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if op.Mutating() && p.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	return nil
}

func (p *Provider) end(op provider.Operation) {
	if !op.Mutating() {
		return
	}
	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
}

// Create implements provider.Provider.
func (p *Provider) Create(ctx context.Context, req provider.Request) (provider.Result, error) {
	defer p.end(provider.OpCreate)
	if err := p.begin(ctx, provider.OpCreate, req); err != nil {
		return provider.Result{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	schema, _ := provider.SchemaFor(req.Type)
	if name := req.Inputs.String(schema.Identifier); name != "" {
		if r, ok := p.resources[name]; ok && r.typ == req.Type {
			return provider.Result{ID: name, Outputs: maps.Clone(r.outputs)}, nil
		}
	}

	p.seq++
	outputs := maps.Clone(req.Inputs)
	if outputs == nil {
		outputs = graph.Attrs{}
	}
	for _, attr := range schema.Computed {
		if _, ok := outputs[attr]; !ok {
			outputs[attr] = computedValue(req.Type, attr, req.Inputs, p.seq)
		}
	}

	id := fmt.Sprintf("%s-%d", kind(req.Type), p.seq)
	if schema.Identifier != "" {
		id = outputs.String(schema.Identifier)
	}
	outputs["id"] = id

	p.resources[id] = &resource{typ: req.Type, inputs: maps.Clone(req.Inputs), outputs: outputs}
	return provider.Result{ID: id, Outputs: maps.Clone(outputs)}, nil
}

// Read implements provider.Provider.
func (p *Provider) Read(ctx context.Context, req provider.Request) (provider.Result, error) {
	if err := p.begin(ctx, provider.OpRead, req); err != nil {
		return provider.Result{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.resources[req.ID]
	if !ok {
		return provider.Result{}, fmt.Errorf("%s %s: %w", req.Type, req.ID, provider.ErrNotFound)
	}
	return provider.Result{ID: req.ID, Outputs: maps.Clone(r.outputs)}, nil
}

// Update implements provider.Provider.
func (p *Provider) Update(ctx context.Context, req provider.Request) (provider.Result, error) {
	defer p.end(provider.OpUpdate)
	if err := p.begin(ctx, provider.OpUpdate, req); err != nil {
		return provider.Result{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.resources[req.ID]
	if !ok {
		return provider.Result{}, fmt.Errorf("%s %s: %w", req.Type, req.ID, provider.ErrNotFound)
	}

	outputs := maps.Clone(req.Inputs)
	if outputs == nil {
		outputs = graph.Attrs{}
	}
	schema, _ := provider.SchemaFor(req.Type)
	for _, attr := range schema.Computed {
		if _, ok := outputs[attr]; !ok {
			outputs[attr] = r.outputs[attr]
		}
	}
	outputs["id"] = req.ID
	r.inputs = maps.Clone(req.Inputs)
	r.outputs = outputs
	return provider.Result{ID: req.ID, Outputs: maps.Clone(outputs)}, nil
}

// Delete implements provider.Provider.
func (p *Provider) Delete(ctx context.Context, req provider.Request) error {
	defer p.end(provider.OpDelete)
	if err := p.begin(ctx, provider.OpDelete, req); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.resources[req.ID]; !ok {
		return fmt.Errorf("%s %s: %w", req.Type, req.ID, provider.ErrNotFound)
	}
	delete(p.resources, req.ID)
	return nil
}

// kind turns "AWS::EC2::VPC" into "vpc".
func kind(resourceType string) string {
	parts := strings.Split(resourceType, "::")
	return strings.ToLower(parts[len(parts)-1])
}

func computedValue(resourceType, attr string, inputs graph.Attrs, n int) any {
	switch {
	case attr == "DNSName":
		return fmt.Sprintf("%s-%d.us-east-1.elb.amazonaws.com", inputs.String("Name"), n)
	case attr == "CanonicalHostedZoneID":
		return "Z35SXDOTRQ7X7K"
	case attr == "RepositoryUri":
		return "123456789012.dkr.ecr.us-east-1.amazonaws.com/" + inputs.String("RepositoryName")
	case attr == "Name":
		return inputs.String("ServiceName")
	case strings.HasSuffix(attr, "Arn"):
		service := strings.ToLower(strings.Split(resourceType, "::")[1])
		return fmt.Sprintf("arn:aws:%s:us-east-1:123456789012:%s/%d", service, kind(resourceType), n)
	case strings.HasSuffix(attr, "Id"), strings.HasSuffix(attr, "ID"), attr == "DefaultSecurityGroup":
		return fmt.Sprintf("%s-%08x", kind(resourceType), n)
	default:
		return fmt.Sprintf("%s-%d", attr, n)
	}
}
