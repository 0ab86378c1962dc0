package provider

import (
	"context"
	"errors"

	"github.com/imamik/stackforge/internal/graph"
)

// ErrNotFound is returned by Read and Delete when the resource is gone.
var ErrNotFound = errors.New("provider: resource not found")

// Operation names a provider call.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Mutating reports whether the operation changes remote resources.
func (o Operation) Mutating() bool {
	return o == OpCreate || o == OpUpdate || o == OpDelete
}

// Request is one provider call.
type Request struct {
	Addr graph.Address
	Type string
	// ID is empty for Create.
	ID     string
	Inputs graph.Attrs
	// PriorInputs and PriorOutputs are the recorded values for Update,
	// Read and Delete.
	PriorInputs  graph.Attrs
	PriorOutputs graph.Attrs
}

// Result is what a provider reports about a resource.
type Result struct {
	ID      string
	Outputs graph.Attrs
}

// Provider creates, reads, updates and deletes resources.
type Provider interface {
	Create(ctx context.Context, req Request) (Result, error)
	Read(ctx context.Context, req Request) (Result, error)
	Update(ctx context.Context, req Request) (Result, error)
	Delete(ctx context.Context, req Request) error
}
