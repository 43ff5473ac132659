package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// fanOut runs fn for indexes [0,n) with at most limit in flight, each start
// gated by lim when set. Results keep their index. The first error cancels the
// remaining items and is returned once every started item has finished.
func fanOut[T any](ctx context.Context, n, limit int, lim *rate.Limiter, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	if limit <= 0 {
		limit = 1
	}
	out := make([]T, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if lim != nil {
				if err := lim.Wait(gctx); err != nil {
					return err
				}
			}
			v, err := fn(gctx, i)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// perMinute returns a limiter for n starts per minute, or nil for unlimited
func perMinute(n int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(n)/60), 1)
}
