package spatial

import (
	"sync"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/YuminosukeSato/scigo-spatial/preprocessing"
)

// Option configures Wrap-based operations: ApplyAcrossBands, Predict and
// KNeighbors.
type Option func(*config)

type config struct {
	nodata   any
	outputs  [][]string
	nanFill  float64
	fillNaN  bool
	skipMask bool

	nNeighbors     int
	returnDistance bool

	// 一回の適用で変換の警告は一度だけ出す (チャンクごとには出さない)
	conversion sync.Once
}

func newConfig(opts []Option) *config {
	c := &config{
		nanFill:        preprocessing.DefaultNaNFill,
		fillNaN:        true,
		returnDistance: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithNoData sets the NoData value(s) of the image, overriding any
// _FillValue attributes. Accepts nil, a number, or one number per band.
func WithNoData(nodata any) Option {
	return func(c *config) { c.nodata = nodata }
}

// WithOutput declares one output of an applied function, labeled by the
// given band labels. Call it once per output, in order.
func WithOutput(labels ...string) Option {
	return func(c *config) { c.outputs = append(c.outputs, labels) }
}

// withoutOutputs drops outputs declared by earlier options.
func withoutOutputs() Option {
	return func(c *config) { c.outputs = nil }
}

// WithNaNFill sets the value that replaces NaN before the function sees the
// table (default 0).
func WithNaNFill(v float64) Option {
	return func(c *config) {
		c.nanFill = v
		c.fillNaN = true
	}
}

// WithoutNaNFill passes NaN through to the function.
func WithoutNaNFill() Option {
	return func(c *config) { c.fillNaN = false }
}

// WithoutNoDataMask keeps function output on NoData pixels.
func WithoutNoDataMask() Option {
	return func(c *config) { c.skipMask = true }
}

// WithNNeighbors sets the number of neighbors returned by KNeighbors.
// Defaults to the estimator's own setting.
func WithNNeighbors(k int) Option {
	return func(c *config) { c.nNeighbors = k }
}

// WithReturnDistance controls whether KNeighbors returns distances
// (default true).
func WithReturnDistance(v bool) Option {
	return func(c *config) { c.returnDistance = v }
}

func (c *config) preprocessorOptions(nodata []float64) []preprocessing.Option {
	opts := []preprocessing.Option{preprocessing.WithWarningFunc(c.warnOnce)}
	if nodata != nil {
		opts = append(opts, preprocessing.WithNoData(nodata))
	}
	if c.fillNaN {
		opts = append(opts, preprocessing.WithNaNFill(c.nanFill))
	} else {
		opts = append(opts, preprocessing.WithoutNaNFill())
	}
	return opts
}

func (c *config) warnOnce(w error) {
	c.conversion.Do(func() { errors.Warn(w) })
}

func (c *config) unflattenOptions() []preprocessing.UnflattenOption {
	if c.skipMask {
		return []preprocessing.UnflattenOption{preprocessing.WithoutMask()}
	}
	return nil
}
