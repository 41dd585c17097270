// Package workerpool runs embarrassingly-parallel per-item work (one LLM
// call per comment, per subtopic, ...) under a bounded concurrency limit,
// merging results back in dispatch order so downstream aggregation stays
// deterministic regardless of which goroutine finishes first.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run executes fn once per index in [0, n) with at most size goroutines
// in flight at a time, and returns their results in index order. If fn
// returns an error for any index, Run cancels the remaining work and
// returns the first error encountered; results for indices that never ran
// are zero-valued.
func Run[T any](ctx context.Context, n int, size int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	if size <= 0 {
		size = 1
	}
	results := make([]T, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(size)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			r, err := fn(gctx, i)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// RunBestEffort is like Run but never aborts early on a per-item error:
// every index runs (subject to size concurrency), and the caller gets
// both the results slice and a parallel slice of errors (nil where the
// item succeeded). Used by stages that swallow individual item failures
// per the ExtractionFailure/SchemaMismatch policy.
func RunBestEffort[T any](ctx context.Context, n int, size int, fn func(ctx context.Context, i int) (T, error)) ([]T, []error) {
	if size <= 0 {
		size = 1
	}
	results := make([]T, n)
	errs := make([]error, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(size)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			r, err := fn(gctx, i)
			results[i] = r
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}
