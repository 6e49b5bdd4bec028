// Package taskpool runs a batch of tasks with a fixed cap on how many
// execute at once, preserving input order in the result slice.
package taskpool

import "github.com/sourcegraph/conc/pool"

// Run executes every task with at most limit in flight and returns one
// result per task, where result[i] comes from tasks[i] regardless of
// completion timing. Tasks are never retried here; panics are the
// task's own responsibility to contain.
func Run[T any](limit int, tasks []func() T) []T {
	if limit <= 0 {
		limit = 1
	}
	results := make([]T, len(tasks))
	p := pool.New().WithMaxGoroutines(limit)
	for i, task := range tasks {
		i, task := i, task
		p.Go(func() {
			results[i] = task()
		})
	}
	p.Wait()
	return results
}
