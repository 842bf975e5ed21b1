package raster

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/samber/lo"
)

// FillValueAttr is the attribute holding the NoData value of a labeled image.
const FillValueAttr = "_FillValue"

// Attrs holds free-form metadata of a labeled image.
type Attrs map[string]any

// FillValue returns the _FillValue attribute as a float64.
func (a Attrs) FillValue() (float64, bool) {
	v, ok := a[FillValueAttr]
	if !ok || v == nil {
		return 0, false
	}
	return ToFloat(v)
}

// ToFloat converts a numeric value of any built-in type to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// meta is the labeling shared by DataArray and Dataset.
type meta struct {
	bandDim    string
	yDim, xDim string
	bands      []string
	y, x       []float64
	attrs      Attrs
	chunks     Chunks
}

func (m meta) clone() meta {
	c := m
	c.bands = slices.Clone(m.bands)
	c.y = slices.Clone(m.y)
	c.x = slices.Clone(m.x)
	c.attrs = maps.Clone(m.attrs)
	return c
}

// Option configures a DataArray or Dataset.
type Option func(*meta)

// WithBandDim names the band dimension (default "band").
func WithBandDim(name string) Option {
	return func(m *meta) { m.bandDim = name }
}

// WithSpatialDims names the y and x dimensions (default "y" and "x").
func WithSpatialDims(y, x string) Option {
	return func(m *meta) { m.yDim, m.xDim = y, x }
}

// WithBandLabels sets the band coordinate labels.
func WithBandLabels(labels ...string) Option {
	return func(m *meta) { m.bands = slices.Clone(labels) }
}

// WithCoords sets the y and x coordinate values.
func WithCoords(y, x []float64) Option {
	return func(m *meta) { m.y, m.x = slices.Clone(y), slices.Clone(x) }
}

// WithAttrs sets the attributes.
func WithAttrs(attrs Attrs) Option {
	return func(m *meta) { m.attrs = maps.Clone(attrs) }
}

// WithChunks makes the image lazy with the given chunk size.
func WithChunks(y, x int) Option {
	return func(m *meta) { m.chunks = Chunks{Y: y, X: x} }
}

func newMeta(opts []Option) meta {
	m := meta{bandDim: "band", yDim: "y", xDim: "x"}
	for _, opt := range opts {
		opt(&m)
	}
	if m.attrs == nil {
		m.attrs = Attrs{}
	}
	return m
}

func (m meta) validateCoords(op string, height, width int) error {
	if m.y != nil && len(m.y) != height {
		return errors.NewDimensionError(op, height, len(m.y), 0)
	}
	if m.x != nil && len(m.x) != width {
		return errors.NewDimensionError(op, width, len(m.x), 1)
	}
	return nil
}

// SequentialLabels returns "0", "1", ..., "n-1".
func SequentialLabels(n int) []string {
	return lo.Map(lo.Range(n), func(i, _ int) string { return strconv.Itoa(i) })
}

// DataArray is a labeled (band, y, x) image. Its samples come from a Source;
// when chunks are set the DataArray is lazy and samples are only read by
// Values or Compute.
type DataArray struct {
	meta
	src Source
}

// NewDataArray creates a labeled image over src. Band labels default to
// "1".."n", matching band numbering of raster files.
func NewDataArray(src Source, opts ...Option) (*DataArray, error) {
	m := newMeta(opts)
	bands, height, width := src.Shape()
	if m.bands == nil {
		m.bands = lo.Map(lo.Range(bands), func(i, _ int) string { return strconv.Itoa(i + 1) })
	}
	if len(m.bands) != bands {
		return nil, errors.NewDimensionError("NewDataArray", bands, len(m.bands), 0)
	}
	if err := m.validateCoords("NewDataArray", height, width); err != nil {
		return nil, err
	}
	if len(lo.Uniq([]string{m.bandDim, m.yDim, m.xDim})) != 3 {
		return nil, errors.NewValueError("NewDataArray",
			fmt.Sprintf("dimension names must be unique, got %q", m.Dims()))
	}
	return &DataArray{meta: m, src: src}, nil
}

// Dims returns the dimension names in (band, y, x) order.
func (m meta) Dims() [3]string { return [3]string{m.bandDim, m.yDim, m.xDim} }

// BandDim returns the name of the band dimension.
func (m meta) BandDim() string { return m.bandDim }

// Coords returns copies of the y and x coordinates, nil when unset.
func (m meta) Coords() (y, x []float64) { return slices.Clone(m.y), slices.Clone(m.x) }

// Attrs returns a copy of the attributes.
func (m meta) Attrs() Attrs { return maps.Clone(m.attrs) }

// Chunks returns the chunk size; zero when not chunked.
func (m meta) Chunks() Chunks { return m.chunks }

// Chunked reports whether the image is lazy.
func (m meta) Chunked() bool { return !m.chunks.IsZero() }

// BandLabels returns a copy of the band coordinate labels.
func (d *DataArray) BandLabels() []string { return slices.Clone(d.bands) }

// Shape returns (bands, height, width).
func (d *DataArray) Shape() (int, int, int) { return d.src.Shape() }

// DType returns the sample type.
func (d *DataArray) DType() DType { return d.src.DType() }

// Source returns the underlying sample source.
func (d *DataArray) Source() Source { return d.src }

// FillValue returns the _FillValue attribute.
func (d *DataArray) FillValue() (float64, bool) { return d.attrs.FillValue() }

// Chunk returns a lazy copy of d with the given chunk size.
func (d *DataArray) Chunk(y, x int) *DataArray {
	c := &DataArray{meta: d.meta.clone(), src: d.src}
	c.chunks = Chunks{Y: y, X: x}
	return c
}

// Values reads all samples.
func (d *DataArray) Values(ctx context.Context, opts ...ComputeOption) (*Array, error) {
	return Compute(ctx, d.src, d.chunks, opts...)
}

// Compute returns an in-memory, unchunked copy of d.
func (d *DataArray) Compute(ctx context.Context, opts ...ComputeOption) (*DataArray, error) {
	arr, err := d.Values(ctx, opts...)
	if err != nil {
		return nil, err
	}
	c := &DataArray{meta: d.meta.clone(), src: arr}
	c.chunks = Chunks{}
	return c, nil
}

// WithSource returns a DataArray that keeps d's dimensions, coordinates,
// attributes and chunks but takes its samples from src and its band labels
// from labels.
func (d *DataArray) WithSource(src Source, labels []string) (*DataArray, error) {
	m := d.meta.clone()
	m.bands = slices.Clone(labels)
	bands, height, width := src.Shape()
	if len(m.bands) != bands {
		return nil, errors.NewDimensionError("DataArray.WithSource", bands, len(m.bands), 0)
	}
	if err := m.validateCoords("DataArray.WithSource", height, width); err != nil {
		return nil, err
	}
	return &DataArray{meta: m, src: src}, nil
}

// ToDataset splits the band dimension into one variable per band, named by
// the band labels. Attributes move to the dataset.
func (d *DataArray) ToDataset() (*Dataset, error) {
	vars := make([]Variable, len(d.bands))
	for i, name := range d.bands {
		vars[i] = Variable{Name: name, Data: &bandSource{src: d.src, band: i}}
	}
	m := d.meta.clone()
	m.bands = nil
	return newDataset(vars, m)
}
