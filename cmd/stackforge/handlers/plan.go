package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/stackforge/internal/engine"
)

// Plan prints the changes apply would make.
func Plan(ctx context.Context, opts Options) error {
	r, err := setup(ctx, opts, nil, nil)
	if err != nil {
		return err
	}

	res, err := r.stack.Plan(ctx)
	if err != nil {
		return r.finish(err)
	}

	printDrift(res.Refreshed)
	if res.Plan.Empty() {
		fmt.Fprintf(stdout, "No changes. %s is up to date.\n", r.env.QualifiedProject())
		return r.finish(nil)
	}
	fmt.Fprint(stdout, engine.RenderPlan(r.title("Plan for"), res.Plan, interactive()))
	return r.finish(nil)
}

func printDrift(addrs []string) {
	for _, addr := range addrs {
		fmt.Fprintf(stdout, "Drift detected: %s no longer exists and will be recreated\n", addr)
	}
}
