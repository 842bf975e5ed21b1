package datasets

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/YuminosukeSato/scigo-spatial/pkg/config"
	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/YuminosukeSato/scigo-spatial/pkg/log"
	"github.com/YuminosukeSato/scigo-spatial/raster"
	"github.com/samber/lo"
)

// PlotDataURL is the remote location of the SWO Ecoplot plot table.
const PlotDataURL = "https://github.com/lemma-osu/sknnr/raw/main/src/sknnr/datasets/data"

// Data files of the SWO Ecoplot dataset.
const (
	swoSmall = "swo_ecoplot_128x128.zip"
	swoLarge = "swo_ecoplot_2048x4096.zip"
	swoPlots = "swo_ecoplot.csv"
)

// DefaultRegistry lists the image archives served from config.DataURL.
// Hashes are filled in per data release; empty hashes skip verification.
var DefaultRegistry = Registry{
	swoSmall: "",
	swoLarge: "",
}

// PlotRegistry lists the plot tables served from PlotDataURL.
var PlotRegistry = Registry{
	swoPlots: "",
}

// Ecoplot holds the southwest Oregon (SWO) USFS Region 6 Ecoplot data: 18
// environmental and spectral rasters at 30 m resolution, and plot
// measurements split into environmental predictors X and tree species
// cover Y. Y is nil when the table has no columns besides X.
//
// Exactly one of Array and Dataset is set. Array bands and Dataset
// variables follow the order of the X columns.
type Ecoplot struct {
	Array   *raster.Array
	Dataset *raster.Dataset
	X, Y    *Table

	sources []*gdalSource
}

// Close releases the raster files held open by a lazy Dataset.
func (e *Ecoplot) Close() error {
	var errs []error
	for _, src := range e.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadOption configures LoadSWOEcoplot.
type LoadOption func(*loadConfig)

type loadConfig struct {
	asDataset    bool
	large        bool
	chunks       raster.Chunks
	cfg          *config.Config
	imageFetcher *Fetcher
	plotFetcher  *Fetcher
}

// AsDataset returns the image as a lazy *raster.Dataset instead of an
// in-memory *raster.Array.
func AsDataset() LoadOption {
	return func(c *loadConfig) { c.asDataset = true }
}

// LargeRasters loads the 2048x4096 rasters instead of the 128x128 ones.
func LargeRasters() LoadOption {
	return func(c *loadConfig) { c.large = true }
}

// WithChunks sets the Dataset chunk size. Defaults to 64 for the small
// rasters and 1024 for the large ones.
func WithChunks(y, x int) LoadOption {
	return func(c *loadConfig) { c.chunks = raster.Chunks{Y: y, X: x} }
}

// WithConfig sets the configuration used to build the default fetchers.
func WithConfig(cfg *config.Config) LoadOption {
	return func(c *loadConfig) { c.cfg = cfg }
}

// WithImageFetcher replaces the fetcher of the image archives.
func WithImageFetcher(f *Fetcher) LoadOption {
	return func(c *loadConfig) { c.imageFetcher = f }
}

// WithPlotFetcher replaces the fetcher of the plot table.
func WithPlotFetcher(f *Fetcher) LoadOption {
	return func(c *loadConfig) { c.plotFetcher = f }
}

// LoadSWOEcoplot loads the SWO Ecoplot dataset, downloading and caching it on
// first use.
//
// The plot table's first column is the plot ID. Columns named like a raster
// file form X, in table order; the remaining columns form Y.
func LoadSWOEcoplot(ctx context.Context, opts ...LoadOption) (*Ecoplot, error) {
	c := loadConfig{}
	for _, opt := range opts {
		opt(&c)
	}
	if c.cfg == nil {
		cfg, err := config.Load("")
		if err != nil {
			return nil, err
		}
		c.cfg = cfg
	}
	if c.imageFetcher == nil {
		c.imageFetcher = NewFetcher(c.cfg, WithRegistry(DefaultRegistry))
	}
	if c.plotFetcher == nil {
		c.plotFetcher = NewFetcher(c.cfg, WithBaseURL(PlotDataURL), WithRegistry(PlotRegistry))
	}

	name, chunk := swoSmall, 64
	if c.large {
		name, chunk = swoLarge, 1024
	}
	if c.chunks.IsZero() {
		c.chunks = raster.Chunks{Y: chunk, X: chunk}
	}

	plotPaths, err := c.plotFetcher.Fetch(ctx, swoPlots, nil)
	if err != nil {
		return nil, err
	}
	plots, err := readCSV(plotPaths[0])
	if err != nil {
		return nil, err
	}

	paths, err := c.imageFetcher.Fetch(ctx, name, Unzip)
	if err != nil {
		return nil, err
	}
	byStem := lo.SliceToMap(paths, func(p string) (string, string) {
		return strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)), p
	})

	xCols := lo.Filter(plots.Columns, func(col string, _ int) bool {
		_, ok := byStem[col]
		return ok
	})
	yCols := lo.Without(plots.Columns, xCols...)
	if len(xCols) == 0 {
		return nil, errors.NewValueError("LoadSWOEcoplot", "no plot column matches a raster in "+name)
	}
	out := &Ecoplot{}
	if out.X, err = plots.Select(xCols...); err != nil {
		return nil, err
	}
	if len(yCols) > 0 {
		if out.Y, err = plots.Select(yCols...); err != nil {
			return nil, err
		}
	}

	sorted := lo.Map(xCols, func(col string, _ int) string { return byStem[col] })
	if c.asDataset {
		out.Dataset, out.sources, err = loadDataset(sorted, xCols, c.chunks)
	} else {
		out.Array, err = loadArray(ctx, sorted)
	}
	if err != nil {
		return nil, err
	}

	log.GetLoggerWithName("datasets").Info("loaded swo ecoplot",
		log.BandsKey, len(xCols),
		log.SamplesKey, len(plots.Index),
		log.TargetsKey, len(yCols),
		log.LazyKey, c.asDataset,
	)
	return out, nil
}

func loadArray(ctx context.Context, paths []string) (*raster.Array, error) {
	bands := make([]*raster.Array, len(paths))
	for i, p := range paths {
		var err error
		if bands[i], err = readRaster(ctx, p); err != nil {
			return nil, err
		}
	}
	return raster.Stack(bands...)
}

func loadDataset(paths, names []string, chunks raster.Chunks) (*raster.Dataset, []*gdalSource, error) {
	vars := make([]raster.Variable, len(paths))
	srcs := make([]*gdalSource, len(paths))
	var first rasterInfo
	for i, p := range paths {
		info, err := inspectRaster(p)
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			first = info
		}
		attrs := raster.Attrs{}
		if info.hasNoData {
			attrs[raster.FillValueAttr] = info.nodata
		}
		srcs[i] = newGDALSource(p, info)
		vars[i] = raster.Variable{Name: names[i], Data: srcs[i], Attrs: attrs}
	}

	opts := []raster.Option{raster.WithChunks(chunks.Y, chunks.X)}
	if first.hasTransform {
		opts = append(opts, raster.WithCoords(first.coords()))
	}
	if first.projection != "" {
		opts = append(opts, raster.WithAttrs(raster.Attrs{"crs": first.projection}))
	}
	ds, err := raster.NewDataset(vars, opts...)
	return ds, srcs, err
}
