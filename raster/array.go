// Package raster provides the multi-band image representations that the
// estimator adapters operate on.
//
// Three representations are supported, mirroring the ways raster data is
// usually held in memory:
//
//   - Array: a plain band-major (band, y, x) array of samples.
//   - DataArray: a labeled array with named dimensions, band labels,
//     spatial coordinates and attributes. A DataArray may be chunked, in
//     which case its samples are read lazily from a Source one window at a
//     time.
//   - Dataset: a collection of named single-band variables sharing the same
//     spatial grid.
//
// Lazy data is materialized with Compute, which reads chunk windows
// concurrently.
package raster

import (
	"context"
	"fmt"
	"math"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
)

// Array is an in-memory image of shape (bands, height, width) stored
// band-major: sample (b, y, x) lives at data[(b*height+y)*width+x].
type Array struct {
	bands, height, width int
	dtype                DType
	data                 []float64
}

// NewArray creates a Float64 array. If data is nil a zeroed backing slice is
// allocated, otherwise data is used directly and must have
// bands*height*width elements.
func NewArray(bands, height, width int, data []float64) *Array {
	if bands <= 0 || height <= 0 || width <= 0 {
		panic(fmt.Sprintf("raster: invalid shape (%d, %d, %d)", bands, height, width))
	}
	n := bands * height * width
	if data == nil {
		data = make([]float64, n)
	}
	if len(data) != n {
		panic(fmt.Sprintf("raster: data length %d does not match shape (%d, %d, %d)", len(data), bands, height, width))
	}
	return &Array{bands: bands, height: height, width: width, dtype: Float64, data: data}
}

// NewArrayOf creates an array from samples of any numeric type, recording
// the matching DType.
func NewArrayOf[T Number](bands, height, width int, data []T) *Array {
	a := NewArray(bands, height, width, nil)
	if len(data) != len(a.data) {
		panic(fmt.Sprintf("raster: data length %d does not match shape (%d, %d, %d)", len(data), bands, height, width))
	}
	for i, v := range data {
		a.data[i] = float64(v)
	}
	a.dtype = dtypeOf[T]()
	return a
}

// NewFull creates an array of the given type filled with v.
func NewFull(bands, height, width int, dtype DType, v float64) *Array {
	a := NewArray(bands, height, width, nil)
	a.dtype = dtype
	if v != 0 {
		for i := range a.data {
			a.data[i] = v
		}
	}
	return a
}

// Shape returns (bands, height, width).
func (a *Array) Shape() (bands, height, width int) {
	return a.bands, a.height, a.width
}

// Bands returns the number of bands.
func (a *Array) Bands() int { return a.bands }

// Height returns the number of rows.
func (a *Array) Height() int { return a.height }

// Width returns the number of columns.
func (a *Array) Width() int { return a.width }

// NPixels returns height*width.
func (a *Array) NPixels() int { return a.height * a.width }

// DType returns the sample type the array was created from.
func (a *Array) DType() DType { return a.dtype }

// WithDType returns a copy of a tagged with dtype. Samples are not converted.
func (a *Array) WithDType(dtype DType) *Array {
	c := a.Clone()
	c.dtype = dtype
	return c
}

// Data returns the backing slice. Modifying it modifies the array.
func (a *Array) Data() []float64 { return a.data }

// At returns the sample at (b, y, x).
func (a *Array) At(b, y, x int) float64 {
	return a.data[a.index(b, y, x)]
}

// Set sets the sample at (b, y, x).
func (a *Array) Set(b, y, x int, v float64) {
	a.data[a.index(b, y, x)] = v
}

func (a *Array) index(b, y, x int) int {
	if uint(b) >= uint(a.bands) || uint(y) >= uint(a.height) || uint(x) >= uint(a.width) {
		panic(fmt.Sprintf("raster: index (%d, %d, %d) out of range for shape (%d, %d, %d)", b, y, x, a.bands, a.height, a.width))
	}
	return (b*a.height+y)*a.width + x
}

// Band returns a view of band b in row-major (y, x) order.
func (a *Array) Band(b int) []float64 {
	n := a.NPixels()
	return a.data[b*n : (b+1)*n : (b+1)*n]
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	data := make([]float64, len(a.data))
	copy(data, a.data)
	return &Array{bands: a.bands, height: a.height, width: a.width, dtype: a.dtype, data: data}
}

// HasNaN reports whether any sample is NaN.
func (a *Array) HasNaN() bool {
	for _, v := range a.data {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Read returns a copy of the samples inside w. It makes Array a Source.
func (a *Array) Read(_ context.Context, w Window) (*Array, error) {
	if err := w.within(a.height, a.width); err != nil {
		return nil, err
	}
	if w.Col == 0 && w.Row == 0 && w.Width == a.width && w.Height == a.height {
		return a.Clone(), nil
	}
	out := NewArray(a.bands, w.Height, w.Width, nil)
	out.dtype = a.dtype
	for b := 0; b < a.bands; b++ {
		for y := 0; y < w.Height; y++ {
			src := a.data[(b*a.height+w.Row+y)*a.width+w.Col:]
			copy(out.data[(b*w.Height+y)*w.Width:(b*w.Height+y+1)*w.Width], src[:w.Width])
		}
	}
	return out, nil
}

// SetWindow copies src into the region w. src must have the same band count
// and the window's size.
func (a *Array) SetWindow(w Window, src *Array) error {
	if err := w.within(a.height, a.width); err != nil {
		return err
	}
	if src.bands != a.bands {
		return errors.NewDimensionError("Array.SetWindow", a.bands, src.bands, 0)
	}
	if src.height != w.Height || src.width != w.Width {
		return errors.NewValueError("Array.SetWindow",
			fmt.Sprintf("window %v does not match source shape (%d, %d)", w, src.height, src.width))
	}
	for b := 0; b < a.bands; b++ {
		for y := 0; y < w.Height; y++ {
			dst := a.data[(b*a.height+w.Row+y)*a.width+w.Col:]
			copy(dst[:w.Width], src.data[(b*w.Height+y)*w.Width:(b*w.Height+y+1)*w.Width])
		}
	}
	return nil
}

// SelectBand returns band b as a single-band array.
func (a *Array) SelectBand(b int) *Array {
	out := NewArray(1, a.height, a.width, nil)
	copy(out.data, a.Band(b))
	out.dtype = a.dtype
	return out
}

// Stack concatenates arrays along the band axis. All arrays must share
// height and width.
func Stack(arrays ...*Array) (*Array, error) {
	if len(arrays) == 0 {
		return nil, errors.NewModelError("raster.Stack", "empty data", errors.ErrEmptyData)
	}
	h, w := arrays[0].height, arrays[0].width
	dtype := arrays[0].dtype
	bands := 0
	for _, arr := range arrays {
		if arr.height != h {
			return nil, errors.NewDimensionError("raster.Stack", h, arr.height, 0)
		}
		if arr.width != w {
			return nil, errors.NewDimensionError("raster.Stack", w, arr.width, 1)
		}
		dtype = promote(dtype, arr.dtype)
		bands += arr.bands
	}
	out := NewArray(bands, h, w, nil)
	out.dtype = dtype
	offset := 0
	for _, arr := range arrays {
		copy(out.data[offset:], arr.data)
		offset += len(arr.data)
	}
	return out, nil
}
