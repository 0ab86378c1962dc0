package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/imamik/stackforge/internal/engine"
	"github.com/imamik/stackforge/internal/orchestration"
)

var errNonInteractive = errors.New("refusing to continue without confirmation in a non-interactive session (use --yes)")

func promptConfirm(ctx context.Context, title, affirmative string) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative(affirmative).
				Negative("Cancel").
				Value(&ok),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	return ok, nil
}

// confirmation renders the plan and, unless --yes was given, asks before
// any change is made.
func confirmation(ctx context.Context, verb, affirmative string) func(*run) orchestration.ConfirmFunc {
	return func(r *run) orchestration.ConfirmFunc {
		return func(p *engine.Plan) (bool, error) {
			fmt.Fprint(stdout, engine.RenderPlan(r.title(verb), p, interactive()))
			if r.opts.Yes {
				return true, nil
			}
			if !interactive() {
				return false, errNonInteractive
			}
			return confirmPrompt(ctx, fmt.Sprintf("%s %s?", affirmative, r.env.QualifiedProject()), affirmative)
		}
	}
}
