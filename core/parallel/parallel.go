// Package parallel splits row ranges of a sample matrix across CPU cores.
package parallel

import (
	"runtime"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ranges divides [0, items) into at most workers contiguous ranges of
// near-equal size.
func ranges(items, workers int) [][2]int {
	if items <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, items)

	chunkSize := (items + workers - 1) / workers
	out := make([][2]int, 0, workers)
	for start := 0; start < items; start += chunkSize {
		out = append(out, [2]int{start, min(start+chunkSize, items)})
	}
	return out
}

// Parallelize runs fn on row ranges covering [0, items), one goroutine per
// CPU core, and waits for all of them. fn must only write rows inside its
// own range.
func Parallelize(items int, fn func(start, end int)) {
	_ = ParallelizeErr(items, func(start, end int) error {
		fn(start, end)
		return nil
	})
}

// ParallelizeWithThreshold runs fn sequentially when items is at most
// threshold, and in parallel otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		if items > 0 {
			fn(0, items)
		}
		return
	}
	Parallelize(items, fn)
}

// ParallelizeErr is Parallelize for functions that can fail. The first error
// is returned; a panic in fn is returned as *errors.PanicError.
func ParallelizeErr(items int, fn func(start, end int) error) error {
	var g errgroup.Group
	for _, r := range ranges(items, runtime.NumCPU()) {
		g.Go(func() (err error) {
			defer errors.Recover(&err, "parallel.ParallelizeErr")
			return fn(r[0], r[1])
		})
	}
	return g.Wait()
}
