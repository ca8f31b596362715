// Package pool runs per-section work on a fixed number of goroutines. Every
// call to Run is a barrier: it returns only after all chunks have finished.
package pool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Range is a half-open interval [Lo, Hi) of section indices.
type Range struct {
	Lo, Hi int
}

// Pool splits index ranges into contiguous chunks and processes them with at
// most Workers goroutines.
type Pool struct {
	workers int
}

// New creates a pool. A non-positive worker count uses GOMAXPROCS.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

// Workers returns the goroutine limit.
func (p *Pool) Workers() int { return p.workers }

// Ranges splits [0, n) into at most Workers contiguous chunks of near-equal
// size. It returns no chunks for n <= 0.
func (p *Pool) Ranges(n int) []Range {
	if n <= 0 {
		return nil
	}
	chunks := p.workers
	if chunks > n {
		chunks = n
	}
	ranges := make([]Range, chunks)
	size, rem := n/chunks, n%chunks
	lo := 0
	for c := range ranges {
		hi := lo + size
		if c < rem {
			hi++
		}
		ranges[c] = Range{Lo: lo, Hi: hi}
		lo = hi
	}
	return ranges
}

// Run calls fn once per chunk of [0, n) and waits for all of them. The chunk
// index passed to fn is stable for a given n, so callers can keep per-chunk
// accumulators in a slice of len(p.Ranges(n)). The first error cancels the
// context handed to the remaining chunks and is returned.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, chunk int, r Range) error) error {
	ranges := p.Ranges(n)
	if len(ranges) == 0 {
		return nil
	}
	if len(ranges) == 1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(ctx, 0, ranges[0])
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for c, r := range ranges {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, c, r)
		})
	}
	return g.Wait()
}
