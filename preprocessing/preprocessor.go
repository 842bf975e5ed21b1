// Package preprocessing converts multi-band images to and from the
// (pixels, bands) tables that tabular estimators consume, and provides
// feature scalers.
//
// A Preprocessor flattens an image, fills NaN so estimators never see it,
// remembers which pixels were NoData, and puts NaN back on those pixels when
// an estimator output is unflattened to image shape:
//
//	pre, err := preprocessing.NewPreprocessor(img, preprocessing.WithNoData(-32768))
//	pred, err := est.Predict(pre.Flat())
//	out, err := pre.Unflatten(pred)
package preprocessing

import (
	"math"

	"github.com/YuminosukeSato/scigo-spatial/core/parallel"
	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/YuminosukeSato/scigo-spatial/pkg/log"
	"github.com/YuminosukeSato/scigo-spatial/raster"
	"gonum.org/v1/gonum/mat"
)

// DefaultNaNFill は平坦化したテーブルの NaN を置き換える既定値
const DefaultNaNFill = 0.0

// parallelThreshold 以下の画素数では逐次処理する
const parallelThreshold = 1 << 14

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithNoData sets the NoData value(s): nil, a number for all bands, or a
// numeric slice with one value per band. See ValidateNoData.
func WithNoData(nodata any) Option {
	return func(p *Preprocessor) { p.rawNoData = nodata }
}

// WithNaNFill sets the value that replaces NaN in the flat table.
func WithNaNFill(v float64) Option {
	return func(p *Preprocessor) {
		p.fill = v
		p.fillNaN = true
	}
}

// WithoutNaNFill leaves NaN in the flat table.
func WithoutNaNFill() Option {
	return func(p *Preprocessor) { p.fillNaN = false }
}

// WithWarningFunc routes the DataConversionWarning of an integer image with
// masked pixels to warn instead of errors.Warn.
func WithWarningFunc(warn func(w error)) Option {
	return func(p *Preprocessor) { p.warn = warn }
}

// Preprocessor は (bands, y, x) 画像を (pixels, bands) テーブルに変換し、
// NoData マスクを保持する。
type Preprocessor struct {
	bands, height, width int

	rawNoData any
	nodata    []float64
	warn      func(w error)
	fill      float64
	fillNaN   bool

	flat *mat.Dense
	mask []bool
}

// NewPreprocessor flattens img and builds its NoData mask.
//
// The mask is skipped (nil) for non-float images without NoData values,
// since such images cannot contain NaN.
func NewPreprocessor(img *raster.Array, opts ...Option) (*Preprocessor, error) {
	p := &Preprocessor{fill: DefaultNaNFill, fillNaN: true, warn: errors.Warn}
	for _, opt := range opts {
		opt(p)
	}
	p.bands, p.height, p.width = img.Shape()

	nodata, err := ValidateNoData(p.rawNoData, p.bands)
	if err != nil {
		return nil, err
	}
	p.nodata = nodata

	p.flatten(img)
	if img.DType().IsFloat() || p.nodata != nil {
		p.buildMask()
	}
	masked := p.maskedCount()
	if !img.DType().IsFloat() && masked > 0 {
		p.warn(errors.NewDataConversionWarning(img.DType().String(), raster.Float64.String(),
			"NoData pixels are set to NaN"))
	}
	if p.fillNaN {
		p.fillFlat()
	}

	log.GetLoggerWithName("preprocessing").Debug("image flattened",
		log.BandsKey, p.bands,
		log.PixelsKey, p.NPixels(),
		log.DataTypeKey, img.DType().String(),
		log.MaskedKey, masked,
	)
	return p, nil
}

func (p *Preprocessor) flatten(img *raster.Array) {
	n := p.NPixels()
	flat := make([]float64, n*p.bands)
	parallel.ParallelizeWithThreshold(n, parallelThreshold, func(start, end int) {
		for b := 0; b < p.bands; b++ {
			band := img.Band(b)
			for px := start; px < end; px++ {
				flat[px*p.bands+b] = band[px]
			}
		}
	})
	p.flat = mat.NewDense(n, p.bands, flat)
}

// buildMask marks pixels where any band is NaN or equals its NoData value.
func (p *Preprocessor) buildMask() {
	n := p.NPixels()
	data := p.flat.RawMatrix().Data
	mask := make([]bool, n)
	parallel.ParallelizeWithThreshold(n, parallelThreshold, func(start, end int) {
		for px := start; px < end; px++ {
			row := data[px*p.bands : (px+1)*p.bands]
			for b, v := range row {
				if math.IsNaN(v) || (p.nodata != nil && v == p.nodata[b]) {
					mask[px] = true
					break
				}
			}
		}
	})
	p.mask = mask
}

func (p *Preprocessor) fillFlat() {
	data := p.flat.RawMatrix().Data
	for i, v := range data {
		if math.IsNaN(v) {
			data[i] = p.fill
		}
	}
}

func (p *Preprocessor) maskedCount() int {
	n := 0
	for _, m := range p.mask {
		if m {
			n++
		}
	}
	return n
}

// Flat returns the (pixels, bands) table. It is shared, not copied.
func (p *Preprocessor) Flat() *mat.Dense { return p.flat }

// NoDataVals returns the per-band NoData values, nil when none were given.
func (p *Preprocessor) NoDataVals() []float64 { return p.nodata }

// NoDataMask returns the per-pixel mask, nil when it was skipped.
func (p *Preprocessor) NoDataMask() []bool { return p.mask }

// NPixels returns height*width.
func (p *Preprocessor) NPixels() int { return p.height * p.width }

// NBands returns the number of input bands.
func (p *Preprocessor) NBands() int { return p.bands }

// UnflattenOption configures Unflatten.
type UnflattenOption func(*unflattenConfig)

type unflattenConfig struct {
	applyMask bool
}

// WithoutMask keeps estimator output on NoData pixels instead of NaN.
func WithoutMask() UnflattenOption {
	return func(c *unflattenConfig) { c.applyMask = false }
}

// Unflatten reshapes a (pixels, k) table to a Float64 (k, y, x) array and
// sets NaN at every masked pixel. The row count must equal the pixel count
// of the flattened image.
func (p *Preprocessor) Unflatten(flat mat.Matrix, opts ...UnflattenOption) (*raster.Array, error) {
	cfg := unflattenConfig{applyMask: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	rows, k := flat.Dims()
	if rows != p.NPixels() {
		return nil, errors.NewDimensionError("Preprocessor.Unflatten", p.NPixels(), rows, 0)
	}
	if k == 0 {
		return nil, errors.NewValueError("Preprocessor.Unflatten", "table has no columns")
	}

	out := raster.NewArray(k, p.height, p.width, nil)
	data := out.Data()
	n := p.NPixels()
	mask := p.mask
	if !cfg.applyMask {
		mask = nil
	}
	parallel.ParallelizeWithThreshold(n, parallelThreshold, func(start, end int) {
		for px := start; px < end; px++ {
			masked := mask != nil && mask[px]
			for b := 0; b < k; b++ {
				if masked {
					data[b*n+px] = math.NaN()
				} else {
					data[b*n+px] = flat.At(px, b)
				}
			}
		}
	})
	return out, nil
}
