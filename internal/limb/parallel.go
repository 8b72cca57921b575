package limb

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Parallel runs fn for every index in [0, n) on at most workers goroutines
// and returns the first error. With fewer than two workers it runs in order
// on the calling goroutine.
func Parallel(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if workers < 2 || n < 2 {
		for i := 0; i < n; i++ {
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}

// Map applies fn to every limb using the evaluator's worker bound.
func (e *Evaluator) Map(ctx context.Context, in []Limb, fn func(ctx context.Context, i int, x Limb) (Limb, error)) ([]Limb, error) {
	out := make([]Limb, len(in))
	err := Parallel(ctx, len(in), e.workers, func(ctx context.Context, i int) error {
		r, err := fn(ctx, i, in[i])
		if err != nil {
			return err
		}
		out[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
