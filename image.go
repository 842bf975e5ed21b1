package spatial

import (
	"context"
	"fmt"
	"math"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/YuminosukeSato/scigo-spatial/pkg/log"
	"github.com/YuminosukeSato/scigo-spatial/preprocessing"
	"github.com/YuminosukeSato/scigo-spatial/raster"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

// ApplyFunc computes one or more (pixels, k) tables from a (pixels, bands)
// table. The number of returned tables and their column counts must match
// the outputs declared with WithOutput.
type ApplyFunc func(ctx context.Context, flat *mat.Dense) ([]mat.Matrix, error)

// Image is a multi-band image wrapped for band-wise application of
// estimators. Create one with Wrap.
type Image interface {
	// Kind returns the name of the wrapped representation: "Array",
	// "DataArray" or "Dataset".
	Kind() string
	// Shape returns (bands, height, width).
	Shape() (bands, height, width int)
	// BandNames returns the band labels, nil for a plain Array.
	BandNames() []string
	// NoDataVals returns the resolved per-band NoData values, nil if none.
	NoDataVals() []float64
	// Chunked reports whether results are computed lazily.
	Chunked() bool
	// ApplyAcrossBands runs fn on the flattened image and returns one result
	// per declared output, each of the wrapped representation's type
	// (*raster.Array, *raster.DataArray or *raster.Dataset).
	ApplyAcrossBands(ctx context.Context, fn ApplyFunc, opts ...Option) ([]any, error)
}

// Wrap wraps a supported image and resolves its NoData values. nodata
// overrides any _FillValue attributes of the image; it may be nil, a number
// for all bands, or one number per band.
//
// Any image type other than *raster.Array, *raster.DataArray and
// *raster.Dataset returns *errors.UnsupportedImageTypeError.
func Wrap(img any, nodata any) (Image, error) {
	switch im := img.(type) {
	case *raster.Array:
		return newArrayImage(im, nodata)
	case *raster.DataArray:
		return newDataArrayImage(im, nodata)
	case *raster.Dataset:
		return newDatasetImage(im, nodata)
	default:
		return nil, errors.NewUnsupportedImageTypeError(fmt.Sprintf("%T", img))
	}
}

type arrayImage struct {
	arr    *raster.Array
	nodata []float64
}

func newArrayImage(arr *raster.Array, nodata any) (*arrayImage, error) {
	vals, err := preprocessing.ValidateNoData(nodata, arr.Bands())
	if err != nil {
		return nil, err
	}
	return &arrayImage{arr: arr, nodata: vals}, nil
}

func (im *arrayImage) Kind() string           { return "Array" }
func (im *arrayImage) Shape() (int, int, int) { return im.arr.Shape() }
func (im *arrayImage) BandNames() []string    { return nil }
func (im *arrayImage) NoDataVals() []float64  { return im.nodata }
func (im *arrayImage) Chunked() bool          { return false }

func (im *arrayImage) ApplyAcrossBands(ctx context.Context, fn ApplyFunc, opts ...Option) ([]any, error) {
	c := newConfig(opts)
	srcs, err := applySource(ctx, im.arr, raster.Chunks{}, im.nodata, fn, c)
	if err != nil {
		return nil, err
	}
	return lo.Map(srcs, func(s raster.Source, _ int) any { return s.(*raster.Array) }), nil
}

type dataArrayImage struct {
	da     *raster.DataArray
	nodata []float64
}

func newDataArrayImage(da *raster.DataArray, nodata any) (*dataArrayImage, error) {
	bands, _, _ := da.Shape()
	if nodata == nil {
		if fill, ok := da.FillValue(); ok {
			nodata = fill
		}
	}
	vals, err := preprocessing.ValidateNoData(nodata, bands)
	if err != nil {
		return nil, err
	}
	return &dataArrayImage{da: da, nodata: vals}, nil
}

func (im *dataArrayImage) Kind() string           { return "DataArray" }
func (im *dataArrayImage) Shape() (int, int, int) { return im.da.Shape() }
func (im *dataArrayImage) BandNames() []string    { return im.da.BandLabels() }
func (im *dataArrayImage) NoDataVals() []float64  { return im.nodata }
func (im *dataArrayImage) Chunked() bool          { return im.da.Chunked() }

func (im *dataArrayImage) ApplyAcrossBands(ctx context.Context, fn ApplyFunc, opts ...Option) ([]any, error) {
	outs, err := im.apply(ctx, fn, newConfig(opts))
	if err != nil {
		return nil, err
	}
	return lo.Map(outs, func(d *raster.DataArray, _ int) any { return d }), nil
}

func (im *dataArrayImage) apply(ctx context.Context, fn ApplyFunc, c *config) ([]*raster.DataArray, error) {
	srcs, err := applySource(ctx, im.da.Source(), im.da.Chunks(), im.nodata, fn, c)
	if err != nil {
		return nil, err
	}
	outs := make([]*raster.DataArray, len(srcs))
	for i, src := range srcs {
		if outs[i], err = im.da.WithSource(src, c.outputs[i]); err != nil {
			return nil, err
		}
	}
	return outs, nil
}

type datasetImage struct {
	ds     *raster.Dataset
	nodata []float64
}

// newDatasetImage resolves NoData in order: nodata, then per-variable
// _FillValue when at least one variable has one (others get NaN), then the
// dataset _FillValue.
func newDatasetImage(ds *raster.Dataset, nodata any) (*datasetImage, error) {
	vars := ds.Vars()
	if nodata == nil {
		fills := make([]float64, len(vars))
		found := false
		for i, v := range vars {
			fill, ok := v.FillValue()
			if !ok {
				fill = math.NaN()
			}
			fills[i] = fill
			found = found || ok
		}
		if found {
			nodata = fills
		} else if fill, ok := ds.Attrs().FillValue(); ok {
			nodata = fill
		}
	}
	vals, err := preprocessing.ValidateNoData(nodata, len(vars))
	if err != nil {
		return nil, err
	}
	return &datasetImage{ds: ds, nodata: vals}, nil
}

func (im *datasetImage) Kind() string           { return "Dataset" }
func (im *datasetImage) Shape() (int, int, int) { return im.ds.Shape() }
func (im *datasetImage) BandNames() []string    { return im.ds.Names() }
func (im *datasetImage) NoDataVals() []float64  { return im.nodata }
func (im *datasetImage) Chunked() bool          { return im.ds.Chunked() }

func (im *datasetImage) ApplyAcrossBands(ctx context.Context, fn ApplyFunc, opts ...Option) ([]any, error) {
	stacked := &dataArrayImage{da: im.ds.ToDataArray(), nodata: im.nodata}
	das, err := stacked.apply(ctx, fn, newConfig(opts))
	if err != nil {
		return nil, err
	}
	outs := make([]any, len(das))
	for i, da := range das {
		ds, err := da.ToDataset()
		if err != nil {
			return nil, err
		}
		outs[i] = ds
	}
	return outs, nil
}

// applySource runs fn over src and returns one source per declared output.
// Unchunked input is processed immediately and yields *raster.Array
// outputs; chunked input yields lazy outputs computed chunk by chunk.
func applySource(ctx context.Context, src raster.Source, chunks raster.Chunks, nodata []float64, fn ApplyFunc, c *config) ([]raster.Source, error) {
	if len(c.outputs) == 0 {
		return nil, errors.NewValueError("ApplyAcrossBands", "no outputs declared")
	}
	outBands := lo.Map(c.outputs, func(labels []string, _ int) int { return len(labels) })
	if lo.Contains(outBands, 0) {
		return nil, errors.NewValueError("ApplyAcrossBands", "outputs must have at least one band")
	}

	bands, height, width := src.Shape()
	logger := log.GetLoggerWithName("spatial.apply").With(
		log.BandsKey, bands,
		log.HeightKey, height,
		log.WidthKey, width,
		log.LazyKey, !chunks.IsZero(),
	)

	block := func(ctx context.Context, in *raster.Array) ([]*raster.Array, error) {
		return applyBlock(ctx, in, nodata, fn, c)
	}

	if !chunks.IsZero() {
		logger.Debug("deferring across chunks", log.ChunksKey, len(raster.ChunkGrid(height, width, chunks)))
		return raster.Map(src, block, outBands...), nil
	}

	in, err := raster.Compute(ctx, src, chunks)
	if err != nil {
		return nil, err
	}
	outs, err := block(ctx, in)
	if err != nil {
		logger.Error("apply failed", err)
		return nil, err
	}
	logger.Debug("applied", log.PixelsKey, height*width)
	return lo.Map(outs, func(a *raster.Array, _ int) raster.Source { return a }), nil
}

// applyBlock flattens one block, applies fn, and unflattens every output.
func applyBlock(ctx context.Context, in *raster.Array, nodata []float64, fn ApplyFunc, c *config) (_ []*raster.Array, err error) {
	defer errors.Recover(&err, "spatial.ApplyAcrossBands")

	pre, err := preprocessing.NewPreprocessor(in, c.preprocessorOptions(nodata)...)
	if err != nil {
		return nil, err
	}
	results, err := fn(ctx, pre.Flat())
	if err != nil {
		return nil, err
	}
	if len(results) != len(c.outputs) {
		return nil, errors.NewValueError("ApplyAcrossBands",
			fmt.Sprintf("function returned %d outputs, expected %d", len(results), len(c.outputs)))
	}

	outs := make([]*raster.Array, len(results))
	for i, r := range results {
		if _, k := r.Dims(); k != len(c.outputs[i]) {
			return nil, errors.NewDimensionError("ApplyAcrossBands", len(c.outputs[i]), k, 1)
		}
		if outs[i], err = pre.Unflatten(r, c.unflattenOptions()...); err != nil {
			return nil, err
		}
	}
	return outs, nil
}
