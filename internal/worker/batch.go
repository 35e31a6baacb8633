package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Batches splits items into consecutive slices of at most size elements.
// The last batch may be shorter. Order is preserved.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}

	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// RunBatches fans fn out over the batches with at most workers in flight.
// The first error cancels the remaining batches and is returned.
func RunBatches[T any](ctx context.Context, workers int, batches [][]T, fn func(ctx context.Context, batch []T) error) error {
	if workers <= 0 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, batch)
		})
	}

	return g.Wait()
}
