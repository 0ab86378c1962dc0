package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/imamik/stackforge/internal/engine"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunParallel executes tasks concurrently and waits for all of them. The
// first error is returned after every task finished. A non-nil observer
// receives start and completion times.
func RunParallel(ctx context.Context, tasks []Task, observer engine.Observer) error {
	if len(tasks) == 0 {
		return nil
	}

	type result struct {
		name string
		err  error
	}

	resultChan := make(chan result, len(tasks))

	for _, task := range tasks {
		go func() {
			if observer != nil {
				observer.Printf("[%s] Starting at %s", task.Name, time.Now().Format("15:04:05"))
			}
			err := task.Func(ctx)
			if observer != nil {
				observer.Printf("[%s] Completed at %s", task.Name, time.Now().Format("15:04:05"))
			}
			resultChan <- result{name: task.Name, err: err}
		}()
	}

	var firstError error
	for range len(tasks) {
		res := <-resultChan
		if res.err != nil && firstError == nil {
			firstError = fmt.Errorf("failed to resolve %s: %w", res.name, res.err)
		}
	}

	return firstError
}
