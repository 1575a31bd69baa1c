package worker

import (
	"context"
	"sync"
)

// RunIndexed executes fn for every index in [0, n) with bounded concurrency
// and returns per-index errors in index order. A nil slice means every item
// succeeded. Indexes whose task never ran because the context was cancelled
// carry the context error, so callers can tell skipped work from successes.
func RunIndexed(ctx context.Context, concurrency, n int, fn func(ctx context.Context, index int) error) []error {
	if n == 0 {
		return nil
	}
	if concurrency > n {
		concurrency = n
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if errs == nil {
			errs = make([]error, n)
		}
		errs[i] = err
	}

	pool := NewPool(concurrency)
	for i := 0; i < n; i++ {
		i := i
		scheduled := pool.Go(ctx, func(ctx context.Context) {
			if err := fn(ctx, i); err != nil {
				record(i, err)
			}
		})
		if !scheduled {
			record(i, ctx.Err())
		}
	}
	pool.Wait()
	return errs
}
