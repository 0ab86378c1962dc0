package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/stackforge/internal/orchestration"
)

// Destroy deletes every resource of the stack.
func Destroy(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r, err := setup(ctx, opts, confirmation(ctx, "Destroy", "Destroy"), &progress{verb: "Destroy", cancel: cancel})
	if err != nil {
		return err
	}

	res, err := r.stack.Destroy(ctx)
	err = r.endProgress(err)
	if errors.Is(err, orchestration.ErrAborted) {
		fmt.Fprintln(stdout, "Destroy cancelled. No resources were deleted.")
		return r.finish(nil)
	}
	if res != nil {
		printReport("Destroy", res.Report)
	}
	if err != nil {
		return r.finish(fmt.Errorf("destroy failed: %w", err))
	}

	if res.Plan.Empty() {
		fmt.Fprintf(stdout, "Nothing to destroy for %s.\n", r.env.QualifiedProject())
	}
	return r.finish(nil)
}
