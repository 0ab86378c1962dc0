package handlers

import (
	"context"
	"fmt"
)

// Unlock force-releases the state lock. An empty lockID selects the
// environment's own lock.
func Unlock(ctx context.Context, opts Options, lockID string) error {
	r, err := setup(ctx, opts, nil, nil)
	if err != nil {
		return err
	}
	if lockID == "" {
		lockID = r.env.LockID()
	}

	if err := r.stack.Unlock(ctx, lockID); err != nil {
		return r.finish(fmt.Errorf("failed to release lock %s: %w", lockID, err))
	}
	fmt.Fprintf(stdout, "Released lock %s.\n", lockID)
	return r.finish(nil)
}
