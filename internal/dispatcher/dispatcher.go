// Package dispatcher fans article tasks out to a bounded worker pool.
package dispatcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/article-harvester/internal/worker"
)

const defaultConcurrency = 5

// Processor runs one task. *worker.Worker satisfies it.
type Processor interface {
	Process(ctx context.Context, task worker.Task) worker.Outcome
}

// Dispatcher runs batches of tasks with at most Concurrency in flight.
type Dispatcher struct {
	processor   Processor
	concurrency int
}

// New creates a Dispatcher.
func New(processor Processor, concurrency int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Dispatcher{processor: processor, concurrency: concurrency}
}

// Concurrency reports the pool size.
func (d *Dispatcher) Concurrency() int {
	return d.concurrency
}

// Run processes tasks and calls handle for each outcome, in completion
// order, on the calling goroutine. It returns once every dispatched task
// has finished. When ctx ends no further tasks are started; the returned
// count is the number that were.
func (d *Dispatcher) Run(ctx context.Context, tasks []worker.Task, handle func(worker.Outcome)) int {
	results := make(chan worker.Outcome, len(tasks))
	dispatched := 0

	go func() {
		var g errgroup.Group
		g.SetLimit(d.concurrency)
		for _, task := range tasks {
			if ctx.Err() != nil {
				break
			}
			task := task
			dispatched++
			g.Go(func() error {
				results <- d.safeProcess(ctx, task)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	for out := range results {
		if handle != nil {
			handle(out)
		}
	}
	return dispatched
}

// safeProcess turns a panic in one task into a failed outcome.
func (d *Dispatcher) safeProcess(ctx context.Context, task worker.Task) (out worker.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = worker.Outcome{
				URL:    task.URL,
				Status: worker.StatusFailed,
				Err:    fmt.Errorf("panic processing %s: %v", task.URL, r),
			}
		}
	}()
	return d.processor.Process(ctx, task)
}
