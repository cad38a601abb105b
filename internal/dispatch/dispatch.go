// Package dispatch fans a batch of queue items across a bounded worker pool.
// One slow or failing item never blocks the rest of its batch, and a panic
// in one worker is contained as that item's failure.
package dispatch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"gister/internal/store"
)

// Result pairs one item with the outcome of its dispatch.
type Result struct {
	Item    *store.Item
	Err     error
	Skipped bool
}

// Func processes a single item.
type Func func(context.Context, *store.Item) error

// RunBatch runs fn for every item with at most concurrency workers in
// flight. It always returns one Result per item, in input order. Items whose
// worker never started because the context was cancelled are marked Skipped
// rather than failed, so callers can leave them queued untouched.
func RunBatch(ctx context.Context, items []*store.Item, concurrency int, fn Func) []Result {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]Result, len(items))

	group := errgroup.Group{}
	group.SetLimit(concurrency)
	for i, item := range items {
		results[i].Item = item
		if ctx.Err() != nil {
			results[i].Skipped = true
			continue
		}
		group.Go(func() error {
			if ctx.Err() != nil {
				results[i].Skipped = true
				return nil
			}
			results[i].Err = run(ctx, item, fn)
			return nil
		})
	}
	group.Wait()
	return results
}

// run isolates one worker invocation so a panic surfaces as that item's
// error instead of taking down the daemon.
func run(ctx context.Context, item *store.Item, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panic for %s: %v", item.NaturalKey, r)
		}
	}()
	return fn(ctx, item)
}
