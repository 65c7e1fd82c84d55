// Package pool provides an optional parallel work pool for the
// CPU-intensive kernels spec.md §5 allows to run off the single
// cooperative-task thread (Feldman checks across n parties, OT/PPRF
// builds), matching the teacher's pkg/pool.Pool used throughout
// protocols/lss. The specification requires only that results match a
// sequential execution; no ordering is observable by callers.
package pool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool bounds the number of concurrently running kernels submitted via Go.
// A nil *Pool is valid and runs everything on a single worker (useful for
// deterministic tests and for hosts that don't want background goroutines).
type Pool struct {
	workers int
}

// NewPool returns a pool with the given worker count. n <= 0 means "use
// GOMAXPROCS", matching the teacher's default sizing.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: n}
}

// Parallelize runs count independent units of work, each identified by its
// index, fanning out across the pool and returning the first error (if
// any) after all units have been attempted.
func (p *Pool) Parallelize(ctx context.Context, count int, fn func(ctx context.Context, i int) error) error {
	if count == 0 {
		return nil
	}
	workers := 1
	if p != nil {
		workers = p.workers
	}
	if workers <= 1 || count == 1 {
		for i := 0; i < count; i++ {
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
