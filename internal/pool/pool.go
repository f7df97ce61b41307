// Package pool provides a generic bounded-concurrency task scheduler with
// progress and amortized batch callbacks.
package pool

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task processes the item at the given index. Panics are absorbed by the
// pool; a task cannot abort its siblings or the run as a whole.
type Task func(ctx context.Context, index int)

// Callbacks receive completion notifications during a run. Either callback
// may be nil. Invocations are serialized and strictly ordered by completion
// count.
type Callbacks struct {
	// OnProgress is invoked after every task settles.
	OnProgress func(completed, total int)

	// OnBatch is invoked every batchSize completions and unconditionally on
	// the last completion, so observers can amortize expensive refresh work
	// while still being guaranteed a final notification.
	OnBatch func(completed, total int)
}

// Run drives n tasks to completion with at most ceiling outstanding at any
// instant. Tasks are admitted in index order; completion order is
// unspecified. Run cannot fail as a whole: it returns once every task has
// been attempted exactly once. Cancellation is cooperative; tasks observe it
// through ctx and settle regardless.
func Run(ctx context.Context, n, ceiling, batchSize int, task Task, cb Callbacks) {
	if n <= 0 {
		return
	}
	if ceiling < 1 {
		ceiling = 1
	}
	if batchSize < 1 {
		batchSize = 1
	}

	var (
		mu        sync.Mutex
		completed int
	)
	settle := func() {
		mu.Lock()
		defer mu.Unlock()

		completed++
		if cb.OnProgress != nil {
			cb.OnProgress(completed, n)
		}
		if cb.OnBatch != nil && (completed%batchSize == 0 || completed == n) {
			cb.OnBatch(completed, n)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ceiling)
	for i := 0; i < n; i++ {
		index := i
		g.Go(func() error {
			defer settle()
			runTask(ctx, task, index)
			return nil
		})
	}
	_ = g.Wait()
}

// runTask invokes the task and absorbs any panic.
func runTask(ctx context.Context, task Task, index int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Task panicked",
				"index", index,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	task(ctx, index)
}
