// Package registry declares the container image repository.
package registry

import (
	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/util/errdefs"
	"github.com/imamik/stackforge/internal/util/naming"
)

// Module is the graph module name of the registry nodes.
const Module = "registry"

// Inputs configures the registry module.
type Inputs struct {
	Project string
	// Protect refuses to destroy the repository and the images it holds.
	Protect bool
}

// Outputs exposes the repository refs.
type Outputs struct {
	RepositoryName graph.Ref
	RepositoryURL  graph.Ref
	RepositoryARN  graph.Ref
}

// Build declares the repository. The name is its identity: a repository
// that already exists under that name is adopted rather than duplicated.
func Build(b *graph.Builder, in Inputs) (Outputs, error) {
	if in.Project == "" {
		return Outputs{}, errdefs.Configf("project", "project name is required")
	}
	repo, err := b.Module(Module).Add("repository", provider.TypeRepository, graph.Attrs{
		"RepositoryName": naming.Repository(in.Project),
		"ImageScanningConfiguration": map[string]any{
			"ScanOnPush": true,
		},
	}, graph.WithForceNew("RepositoryName"), graph.WithLifecycle(graph.Lifecycle{PreventDestroy: in.Protect}))
	if err != nil {
		return Outputs{}, err
	}
	return Outputs{
		RepositoryName: repo.Ref("RepositoryName"),
		RepositoryURL:  repo.Ref("RepositoryUri"),
		RepositoryARN:  repo.Ref("Arn"),
	}, nil
}
