package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/stackforge/internal/engine"
	"github.com/imamik/stackforge/internal/orchestration"
)

// Apply creates or updates the stack and prints its outputs.
func Apply(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r, err := setup(ctx, opts, confirmation(ctx, "Apply", "Apply"), &progress{verb: "Apply", cancel: cancel})
	if err != nil {
		return err
	}

	res, err := r.stack.Apply(ctx)
	err = r.endProgress(err)
	if errors.Is(err, orchestration.ErrAborted) {
		fmt.Fprintln(stdout, "Apply cancelled. No changes were made.")
		return r.finish(nil)
	}
	if res != nil {
		printDrift(res.Refreshed)
		printReport("Apply", res.Report)
	}
	if err != nil {
		return r.finish(fmt.Errorf("apply failed: %w", err))
	}

	if res.Plan.Empty() {
		fmt.Fprintf(stdout, "No changes. %s is up to date.\n", r.env.QualifiedProject())
	}
	printOutputs(res.Outputs)
	return r.finish(nil)
}

func printReport(verb string, report *engine.Report) {
	if report == nil {
		return
	}
	fmt.Fprintf(stdout, "\n%s finished: %d applied, %d unchanged, %d failed, %d skipped.\n",
		verb,
		report.Count(engine.StatusApplied),
		report.Count(engine.StatusUnchanged),
		report.Count(engine.StatusFailed),
		report.Count(engine.StatusSkipped),
	)
}
