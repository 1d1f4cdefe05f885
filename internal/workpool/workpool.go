// Package workpool runs independent units of work on a bounded number of
// goroutines and fails fast on the first error.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run calls fn once per item with at most limit calls in flight. The first
// error cancels the context passed to the remaining units; units that have
// not started yet are skipped. Run returns the first error, or nil once
// every unit has completed.
func Run[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, item T) error) error {
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, item)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
