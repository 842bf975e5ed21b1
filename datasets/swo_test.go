package datasets

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/scigo-spatial/raster"
	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHeight, testWidth = 3, 4

// writeGeoTIFF writes a single-band Float32 GeoTIFF whose pixel i is
// offset+i, with -9999 as NoData at pixel 0.
func writeGeoTIFF(t *testing.T, path string, offset float64) {
	t.Helper()
	registerDrivers.Do(godal.RegisterAll)

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, testWidth, testHeight)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform([6]float64{500000, 30, 0, 4700000, 0, -30}))

	data := make([]float32, testHeight*testWidth)
	for i := range data {
		data[i] = float32(offset) + float32(i)
	}
	data[0] = -9999
	band := ds.Bands()[0]
	require.NoError(t, band.SetNoData(-9999))
	require.NoError(t, band.Write(0, 0, data, testWidth, testHeight))
	require.NoError(t, ds.Close())
}

// ecoplotServer serves a small SWO Ecoplot archive and plot table.
func ecoplotServer(t *testing.T) (image, plots *Fetcher) {
	t.Helper()
	dir := t.TempDir()
	files := map[string][]byte{}
	order := []string{"NBR.tif", "ANNPRE.tif", "DEM.tif"}
	for i, name := range order {
		path := filepath.Join(dir, name)
		writeGeoTIFF(t, path, float64(100*i))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		files[name] = data
	}
	archive := zipArchive(t, files, order...)
	table := []byte("PLOTID,DEM,ABAM_COV,ANNPRE,NBR,PSME_COV\n" +
		"1,1200,0,800,0.5,40\n" +
		"2,900,15,1100,0.3,0\n")

	srv := newFileServer(t, map[string][]byte{swoSmall: archive, swoPlots: table})
	image = newTestFetcher(t, srv.URL, Registry{swoSmall: hashOf(archive)})
	plots = newTestFetcher(t, srv.URL, Registry{swoPlots: hashOf(table)})
	return image, plots
}

func TestLoadSWOEcoplotArray(t *testing.T) {
	image, plots := ecoplotServer(t)
	eco, err := LoadSWOEcoplot(context.Background(), WithImageFetcher(image), WithPlotFetcher(plots))
	require.NoError(t, err)

	assert.Nil(t, eco.Dataset)
	require.NotNil(t, eco.Array)
	assert.Equal(t, []string{"DEM", "ANNPRE", "NBR"}, eco.X.Columns)
	assert.Equal(t, []string{"ABAM_COV", "PSME_COV"}, eco.Y.Columns)
	assert.Equal(t, []string{"1", "2"}, eco.X.Index)
	assert.Equal(t, []float64{1200, 800, 0.5, 900, 1100, 0.3}, eco.X.Data.RawMatrix().Data)

	bands, height, width := eco.Array.Shape()
	assert.Equal(t, []int{3, testHeight, testWidth}, []int{bands, height, width})
	assert.Equal(t, raster.Float32, eco.Array.DType())
	// DEM was written with offset 200, ANNPRE with 100, NBR with 0.
	assert.Equal(t, 201.0, eco.Array.At(0, 0, 1))
	assert.Equal(t, 101.0, eco.Array.At(1, 0, 1))
	assert.Equal(t, 1.0, eco.Array.At(2, 0, 1))
	assert.Equal(t, -9999.0, eco.Array.At(0, 0, 0))
}

func TestLoadSWOEcoplotDataset(t *testing.T) {
	image, plots := ecoplotServer(t)
	ctx := context.Background()

	eco, err := LoadSWOEcoplot(ctx, AsDataset(), WithImageFetcher(image), WithPlotFetcher(plots))
	require.NoError(t, err)
	require.NotNil(t, eco.Dataset)
	assert.Nil(t, eco.Array)
	defer eco.Close()

	ds := eco.Dataset
	assert.Equal(t, []string{"DEM", "ANNPRE", "NBR"}, ds.Names())
	assert.Equal(t, raster.Chunks{Y: 64, X: 64}, ds.Chunks())

	dem, ok := ds.Var("DEM")
	require.True(t, ok)
	fill, ok := dem.FillValue()
	require.True(t, ok)
	assert.Equal(t, -9999.0, fill)

	y, x := ds.Coords()
	assert.Equal(t, []float64{4699985, 4699955, 4699925}, y)
	assert.Equal(t, 500015.0, x[0])

	computed, err := ds.Compute(ctx)
	require.NoError(t, err)
	nbr, _ := computed.Var("NBR")
	arr := nbr.Data.(*raster.Array)
	assert.Equal(t, 11.0, arr.At(0, 2, 3))
}

func TestLoadSWOEcoplotChunks(t *testing.T) {
	image, plots := ecoplotServer(t)
	ctx := context.Background()
	eco, err := LoadSWOEcoplot(ctx, AsDataset(), WithChunks(2, 2),
		WithImageFetcher(image), WithPlotFetcher(plots))
	require.NoError(t, err)
	assert.Equal(t, raster.Chunks{Y: 2, X: 2}, eco.Dataset.Chunks())
	defer eco.Close()

	eager, err := LoadSWOEcoplot(ctx, WithImageFetcher(image), WithPlotFetcher(plots))
	require.NoError(t, err)

	values, err := eco.Dataset.ToDataArray().Values(ctx)
	require.NoError(t, err)
	assert.Equal(t, eager.Array.Data(), values.Data())
	assert.False(t, math.IsNaN(values.At(0, 0, 0)))
	assert.NoError(t, eco.Close())
	assert.NoError(t, eco.Close())
}
