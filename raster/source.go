package raster

import (
	"context"
	"reflect"
	"runtime"
	"time"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/YuminosukeSato/scigo-spatial/pkg/log"
	"golang.org/x/sync/errgroup"
)

// Source provides samples of an image one window at a time. *Array is the
// in-memory Source; lazy images wrap file readers or deferred computations.
type Source interface {
	// Shape returns (bands, height, width).
	Shape() (bands, height, width int)
	// DType returns the sample type of the data.
	DType() DType
	// Read returns the samples inside w as a new Array.
	Read(ctx context.Context, w Window) (*Array, error)
}

// ComputeOption configures Compute.
type ComputeOption func(*computeConfig)

type computeConfig struct {
	workers int
}

// WithWorkers limits the number of windows read concurrently.
func WithWorkers(n int) ComputeOption {
	return func(c *computeConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// Compute materializes src by reading every window of its chunk grid.
// Windows are read concurrently, at most workers at a time; the first error
// cancels the remaining reads. With zero chunks the source is read as a
// single window. An *Array source is returned as is.
func Compute(ctx context.Context, src Source, chunks Chunks, opts ...ComputeOption) (*Array, error) {
	if arr, ok := src.(*Array); ok {
		return arr, nil
	}

	cfg := computeConfig{workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&cfg)
	}

	bands, height, width := src.Shape()
	if chunks.IsZero() {
		return src.Read(ctx, Full(height, width))
	}

	windows := ChunkGrid(height, width, chunks)
	out := NewArray(bands, height, width, nil)
	out.dtype = src.DType()

	logger := log.GetLoggerWithName("raster.compute")
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)
	for _, w := range windows {
		g.Go(func() (err error) {
			defer errors.Recover(&err, "raster.Compute")
			if err := gctx.Err(); err != nil {
				return err
			}
			block, err := src.Read(gctx, w)
			if err != nil {
				return errors.Wrapf(err, "read window %v", w)
			}
			// Windows of one grid never overlap, so concurrent writes touch
			// disjoint parts of out.
			return out.SetWindow(w, block)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("compute failed", err, log.ChunksKey, len(windows))
		return nil, err
	}

	logger.Debug("computed",
		log.ChunksKey, len(windows),
		log.BandsKey, bands,
		log.PixelsKey, height*width,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return out, nil
}

// bandSource exposes a single band of another source.
type bandSource struct {
	src  Source
	band int
}

func (s *bandSource) Shape() (int, int, int) {
	_, h, w := s.src.Shape()
	return 1, h, w
}

func (s *bandSource) DType() DType { return s.src.DType() }

func (s *bandSource) Read(ctx context.Context, w Window) (*Array, error) {
	block, err := s.src.Read(ctx, w)
	if err != nil {
		return nil, err
	}
	return block.SelectBand(s.band), nil
}

// stackSource concatenates sources along the band axis.
type stackSource struct {
	srcs []Source
}

func (s *stackSource) Shape() (int, int, int) {
	bands := 0
	var h, w int
	for _, src := range s.srcs {
		b, sh, sw := src.Shape()
		bands += b
		h, w = sh, sw
	}
	return bands, h, w
}

func (s *stackSource) DType() DType {
	dtype := s.srcs[0].DType()
	for _, src := range s.srcs[1:] {
		dtype = promote(dtype, src.DType())
	}
	return dtype
}

func (s *stackSource) Read(ctx context.Context, w Window) (*Array, error) {
	// Bands split from one parent are read from a single parent block.
	parentBlocks := make(map[Source]*Array)
	blocks := make([]*Array, len(s.srcs))
	for i, src := range s.srcs {
		if bs, ok := src.(*bandSource); ok && reflect.TypeOf(bs.src).Comparable() {
			parent, seen := parentBlocks[bs.src]
			if !seen {
				var err error
				if parent, err = bs.src.Read(ctx, w); err != nil {
					return nil, err
				}
				parentBlocks[bs.src] = parent
			}
			blocks[i] = parent.SelectBand(bs.band)
			continue
		}
		block, err := src.Read(ctx, w)
		if err != nil {
			return nil, err
		}
		blocks[i] = block
	}
	return Stack(blocks...)
}
