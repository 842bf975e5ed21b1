package raster

import (
	"container/list"
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
)

// MapFunc computes one or more output blocks from an input block. Every
// output must have the input's height and width.
type MapFunc func(ctx context.Context, in *Array) ([]*Array, error)

// Map returns lazy sources for the outputs of fn applied window by window to
// src. outBands gives the band count of each output. Nothing is computed
// until an output is read.
//
// Outputs of the same window share one call of fn. Each output's block is
// released as soon as that output has read it. At most a few windows are
// held for outputs that have not read them yet; older ones are dropped and
// computed again if such an output reads them later.
func Map(src Source, fn MapFunc, outBands ...int) []Source {
	m := &mapped{
		src:      src,
		fn:       fn,
		outBands: outBands,
		limit:    max(4, 2*runtime.GOMAXPROCS(0)),
		pending:  make(map[Window]*memo),
		order:    list.New(),
	}
	outs := make([]Source, len(outBands))
	for i := range outBands {
		outs[i] = &mapOutput{m: m, index: i}
	}
	return outs
}

type mapped struct {
	src      Source
	fn       MapFunc
	outBands []int
	limit    int

	mu      sync.Mutex
	pending map[Window]*memo
	order   *list.List // pending windows, oldest first
}

// memo is one call of fn. An output claims it when it starts reading, so a
// second read of the same output gets a fresh call.
type memo struct {
	ready   chan struct{}
	outs    []*Array
	err     error
	claimed []bool
	elem    *list.Element
}

func (m *mapped) read(ctx context.Context, w Window, index int) (*Array, error) {
	for {
		m.mu.Lock()
		e, ok := m.pending[w]
		owner := !ok || e.claimed[index]
		if owner {
			e = m.start(w)
		}
		e.claimed[index] = true
		if !slices.Contains(e.claimed, false) {
			m.remove(w, e)
		}
		m.mu.Unlock()

		if owner {
			e.outs, e.err = m.compute(ctx, w)
			if e.err != nil {
				m.mu.Lock()
				m.remove(w, e)
				m.mu.Unlock()
			}
			close(e.ready)
		} else {
			select {
			case <-e.ready:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if e.err != nil {
			// The call was aborted by its owner's context, not ours.
			if !owner && ctx.Err() == nil && isContextErr(e.err) {
				continue
			}
			return nil, e.err
		}
		m.mu.Lock()
		out := e.outs[index]
		e.outs[index] = nil
		m.mu.Unlock()
		return out, nil
	}
}

// start registers a new memo for w, evicting the oldest pending windows
// beyond the limit. Callers hold m.mu.
func (m *mapped) start(w Window) *memo {
	if old, ok := m.pending[w]; ok {
		m.remove(w, old)
	}
	e := &memo{ready: make(chan struct{}), claimed: make([]bool, len(m.outBands))}
	e.elem = m.order.PushBack(w)
	m.pending[w] = e
	for len(m.pending) > m.limit {
		oldest := m.order.Front().Value.(Window)
		m.remove(oldest, m.pending[oldest])
	}
	return e
}

// remove drops e from the pending windows if it is still registered for w.
// Callers hold m.mu.
func (m *mapped) remove(w Window, e *memo) {
	if e == nil || m.pending[w] != e {
		return
	}
	delete(m.pending, w)
	m.order.Remove(e.elem)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (m *mapped) compute(ctx context.Context, w Window) (outs []*Array, err error) {
	defer errors.Recover(&err, "raster.Map")

	in, err := m.src.Read(ctx, w)
	if err != nil {
		return nil, err
	}
	outs, err = m.fn(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(outs) != len(m.outBands) {
		return nil, errors.NewValueError("raster.Map",
			fmt.Sprintf("function returned %d outputs, expected %d", len(outs), len(m.outBands)))
	}
	for i, out := range outs {
		if out.bands != m.outBands[i] {
			return nil, errors.NewDimensionError("raster.Map", m.outBands[i], out.bands, 0)
		}
		if out.height != w.Height || out.width != w.Width {
			return nil, errors.NewValueError("raster.Map",
				fmt.Sprintf("output %d has shape (%d, %d), expected (%d, %d)", i, out.height, out.width, w.Height, w.Width))
		}
	}
	return outs, nil
}

type mapOutput struct {
	m     *mapped
	index int
}

func (o *mapOutput) Shape() (int, int, int) {
	_, h, w := o.m.src.Shape()
	return o.m.outBands[o.index], h, w
}

func (o *mapOutput) DType() DType { return Float64 }

func (o *mapOutput) Read(ctx context.Context, w Window) (*Array, error) {
	return o.m.read(ctx, w, o.index)
}
