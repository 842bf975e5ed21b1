// Package viz renders single raster bands as heat maps with gonum/plot.
package viz

import (
	"fmt"
	"image/color"
	"math"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/YuminosukeSato/scigo-spatial/raster"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// BandGrid adapts one band of an Array to plotter.GridXYZ. Row 0 of the
// image is drawn at the top.
type BandGrid struct {
	arr  *raster.Array
	band int
	y, x []float64
}

// NewBandGrid returns the grid of band b. y and x are optional pixel-center
// coordinates; nil uses pixel indices.
func NewBandGrid(arr *raster.Array, b int, y, x []float64) (*BandGrid, error) {
	bands, height, width := arr.Shape()
	if b < 0 || b >= bands {
		return nil, errors.NewValueError("viz.NewBandGrid", fmt.Sprintf("band %d out of range [0, %d)", b, bands))
	}
	if y != nil && len(y) != height {
		return nil, errors.NewDimensionError("viz.NewBandGrid", height, len(y), 0)
	}
	if x != nil && len(x) != width {
		return nil, errors.NewDimensionError("viz.NewBandGrid", width, len(x), 1)
	}
	return &BandGrid{arr: arr, band: b, y: y, x: x}, nil
}

// Dims returns (columns, rows).
func (g *BandGrid) Dims() (c, r int) { return g.arr.Width(), g.arr.Height() }

// Z returns the sample at column c and plot row r, counted from the bottom.
func (g *BandGrid) Z(c, r int) float64 {
	return g.arr.At(g.band, g.arr.Height()-1-r, c)
}

func (g *BandGrid) X(c int) float64 {
	if g.x == nil {
		return float64(c)
	}
	return g.x[c]
}

func (g *BandGrid) Y(r int) float64 {
	row := g.arr.Height() - 1 - r
	if g.y == nil {
		return float64(row)
	}
	return g.y[row]
}

// Range returns the smallest and largest non-NaN samples, NaN for an all-NaN
// band.
func (g *BandGrid) Range() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range g.arr.Band(g.band) {
		if math.IsNaN(v) {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return math.NaN(), math.NaN()
	}
	return lo, hi
}

// Option configures HeatMap.
type Option func(*options)

type options struct {
	title   string
	palette palette.Palette
	y, x    []float64
	nan     color.Color
}

// WithTitle sets the plot title.
func WithTitle(title string) Option {
	return func(o *options) { o.title = title }
}

// WithPalette sets the color palette (default: Moreland's smooth blue-red
// with 255 colors).
func WithPalette(p palette.Palette) Option {
	return func(o *options) { o.palette = p }
}

// WithCoords labels the axes with pixel-center coordinates.
func WithCoords(y, x []float64) Option {
	return func(o *options) { o.y, o.x = y, x }
}

// WithNaNColor sets the color of NoData pixels (default transparent).
func WithNaNColor(c color.Color) Option {
	return func(o *options) { o.nan = c }
}

// HeatMap plots band b of arr. NaN pixels use the NaN color.
func HeatMap(arr *raster.Array, b int, opts ...Option) (*plot.Plot, error) {
	o := options{nan: color.Transparent}
	for _, opt := range opts {
		opt(&o)
	}
	if o.palette == nil {
		o.palette = moreland.SmoothBlueRed().Palette(255)
	}

	grid, err := NewBandGrid(arr, b, o.y, o.x)
	if err != nil {
		return nil, err
	}
	lo, hi := grid.Range()
	if math.IsNaN(lo) {
		return nil, errors.NewValueError("viz.HeatMap", fmt.Sprintf("band %d has no valid samples", b))
	}

	hm := plotter.NewHeatMap(grid, o.palette)
	hm.Min, hm.Max = lo, hi
	hm.NaN = o.nan

	p := plot.New()
	p.Title.Text = o.title
	p.Add(hm)
	return p, nil
}

// SaveHeatMap renders band b of arr to path. The format follows the file
// extension (png, svg, pdf, ...).
func SaveHeatMap(path string, arr *raster.Array, b int, width, height vg.Length, opts ...Option) error {
	p, err := HeatMap(arr, b, opts...)
	if err != nil {
		return err
	}
	return errors.Wrap(p.Save(width, height, path), "save heat map")
}
