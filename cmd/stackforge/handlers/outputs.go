package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Outputs prints the outputs recorded by the last apply.
func Outputs(ctx context.Context, opts Options, asJSON bool) error {
	r, err := setup(ctx, opts, nil, nil)
	if err != nil {
		return err
	}

	outputs, err := r.stack.Outputs(ctx)
	if err != nil {
		return r.finish(err)
	}

	if asJSON {
		if outputs == nil {
			outputs = map[string]any{}
		}
		data, err := json.MarshalIndent(outputs, "", "  ")
		if err != nil {
			return r.finish(fmt.Errorf("failed to encode outputs: %w", err))
		}
		fmt.Fprintln(stdout, string(data))
		return r.finish(nil)
	}

	if len(outputs) == 0 {
		fmt.Fprintln(stdout, "No outputs recorded. Run apply first.")
		return r.finish(nil)
	}
	printOutputs(outputs)
	return r.finish(nil)
}

func printOutputs(outputs map[string]any) {
	if len(outputs) == 0 {
		return
	}
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(stdout, "\nOutputs:")
	for _, k := range keys {
		fmt.Fprintf(stdout, "  %s = %v\n", k, outputs[k])
	}
}
