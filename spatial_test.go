package spatial

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/YuminosukeSato/scigo-spatial/linear"
	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/YuminosukeSato/scigo-spatial/raster"
	"github.com/YuminosukeSato/scigo-spatial/sklearn/neighbors"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// sumFirst predicts [sum of bands, first band] for every row.
type sumFirst struct {
	calls atomic.Int64
}

func (e *sumFirst) Predict(X mat.Matrix) (mat.Matrix, error) {
	e.calls.Add(1)
	r, c := X.Dims()
	out := mat.NewDense(r, 2, nil)
	for i := 0; i < r; i++ {
		var s float64
		for j := 0; j < c; j++ {
			s += X.At(i, j)
		}
		out.Set(i, 0, s)
		out.Set(i, 1, X.At(i, 0))
	}
	return out, nil
}

type countedSumFirst struct{ sumFirst }

func (e *countedSumFirst) NOutputs() int { return 2 }

// twoBandImage is a (2, 2, 3) image where pixel 4 equals -1 in band 0 and
// pixel 5 is NaN in band 1.
func twoBandImage() *raster.Array {
	return raster.NewArray(2, 2, 3, []float64{
		1, 2, 3, 4, -1, 6,
		10, 20, 30, 40, 50, math.NaN(),
	})
}

// assertValues compares samples treating NaN as equal to NaN.
func assertValues(t *testing.T, expected, actual []float64) {
	t.Helper()
	if diff := cmp.Diff(expected, actual, cmpopts.EquateNaNs(), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestWrapUnsupportedType(t *testing.T) {
	_, err := Wrap(5, nil)
	require.Error(t, err)
	assert.Equal(t, "Unsupported image type `int`.", err.Error())
	var ute *errors.UnsupportedImageTypeError
	assert.True(t, errors.As(err, &ute))

	_, err = Wrap([][]float64{{1}}, nil)
	assert.EqualError(t, err, "Unsupported image type `[][]float64`.")
}

func TestWrapKinds(t *testing.T) {
	arr := twoBandImage()
	da, err := raster.NewDataArray(arr, raster.WithBandLabels("red", "nir"))
	require.NoError(t, err)
	ds, err := da.ToDataset()
	require.NoError(t, err)

	tests := []struct {
		name    string
		img     any
		kind    string
		names   []string
		chunked bool
	}{
		{"array", arr, "Array", nil, false},
		{"dataarray", da, "DataArray", []string{"red", "nir"}, false},
		{"chunked dataarray", da.Chunk(1, 2), "DataArray", []string{"red", "nir"}, true},
		{"dataset", ds, "Dataset", []string{"red", "nir"}, false},
		{"chunked dataset", ds.Chunk(1, 2), "Dataset", []string{"red", "nir"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im, err := Wrap(tt.img, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, im.Kind())
			assert.Equal(t, tt.names, im.BandNames())
			assert.Equal(t, tt.chunked, im.Chunked())
			b, h, w := im.Shape()
			assert.Equal(t, []int{2, 2, 3}, []int{b, h, w})
		})
	}
}

func TestWrapNoDataPrecedence(t *testing.T) {
	band := func() *raster.Array { return raster.NewArray(1, 1, 2, []float64{1, 2}) }
	withFill := func(v float64) raster.Attrs { return raster.Attrs{raster.FillValueAttr: v} }

	da, err := raster.NewDataArray(twoBandImage(), raster.WithAttrs(withFill(-1)))
	require.NoError(t, err)

	oneFill, err := raster.NewDataset([]raster.Variable{
		{Name: "a", Data: band(), Attrs: withFill(-1)},
		{Name: "b", Data: band()},
	}, raster.WithAttrs(withFill(-9)))
	require.NoError(t, err)

	dsFill, err := raster.NewDataset([]raster.Variable{
		{Name: "a", Data: band()},
		{Name: "b", Data: band()},
	}, raster.WithAttrs(withFill(-9)))
	require.NoError(t, err)

	noFill, err := raster.NewDataset([]raster.Variable{
		{Name: "a", Data: band()},
		{Name: "b", Data: band()},
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		img      any
		nodata   any
		expected []float64
	}{
		{"array without nodata", twoBandImage(), nil, nil},
		{"array scalar", twoBandImage(), 0, []float64{0, 0}},
		{"array per band", twoBandImage(), []int{1, 2}, []float64{1, 2}},
		{"dataarray fill value", da, nil, []float64{-1, -1}},
		{"explicit overrides fill value", da, 5, []float64{5, 5}},
		{"dataset variable fill values", oneFill, nil, []float64{-1, math.NaN()}},
		{"dataset fill value", dsFill, nil, []float64{-9, -9}},
		{"dataset explicit", oneFill, 3.5, []float64{3.5, 3.5}},
		{"dataset without fill", noFill, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im, err := Wrap(tt.img, tt.nodata)
			require.NoError(t, err)
			if tt.expected == nil {
				assert.Nil(t, im.NoDataVals())
				return
			}
			assertValues(t, tt.expected, im.NoDataVals())
		})
	}

	_, err = Wrap(twoBandImage(), []int{1, 2, 3})
	var lenErr *errors.NoDataLengthError
	assert.True(t, errors.As(err, &lenErr))
}

func TestPredictArray(t *testing.T) {
	est := &sumFirst{}
	out, err := Predict(context.Background(), twoBandImage(), est, WithNoData(-1))
	require.NoError(t, err)

	b, h, w := out.Shape()
	assert.Equal(t, []int{2, 2, 3}, []int{b, h, w})
	assert.Equal(t, raster.Float64, out.DType())
	nan := math.NaN()
	assertValues(t, []float64{
		11, 22, 33, 44, nan, nan,
		1, 2, 3, 4, nan, nan,
	}, out.Data())
}

func TestPredictIntegerImage(t *testing.T) {
	img := raster.NewArrayOf(2, 1, 3, []int16{1, 2, 3, 4, 5, 6})
	out, err := Predict(context.Background(), img, &sumFirst{})
	require.NoError(t, err)
	assertValues(t, []float64{5, 7, 9, 1, 2, 3}, out.Data())
}

func TestPredictLabels(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 0,
		0, 1,
		1, 1,
		2, 1,
	})
	y := mat.NewDense(4, 2, []float64{
		1, 2,
		1, 3,
		2, 5,
		3, 7,
	})

	img, err := raster.NewDataArray(raster.NewArray(2, 1, 2, []float64{1, 2, 0, 1}),
		raster.WithBandLabels("x0", "x1"))
	require.NoError(t, err)

	named := linear.NewLinearRegression(linear.WithTargetNames("a", "b"))
	require.NoError(t, named.Fit(X, y))
	out, err := Predict(context.Background(), img, named)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.BandLabels())
	assert.Equal(t, "band", out.BandDim())

	unnamed := linear.NewLinearRegression()
	require.NoError(t, unnamed.Fit(X, y))
	out, err = Predict(context.Background(), img, unnamed)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, out.BandLabels())

	// y0 = x0 + x1, y1 = 2*x0 + 3*x1
	vals, err := out.Values(context.Background())
	require.NoError(t, err)
	assertValues(t, []float64{1, 3, 2, 7}, vals.Data())
}

func TestPredictChunkedMatchesEager(t *testing.T) {
	const bands, height, width = 3, 5, 7
	data := make([]float64, bands*height*width)
	for i := range data {
		data[i] = math.Mod(float64(i*37), 11)
	}
	data[8] = math.NaN()

	X := mat.NewDense(6, bands, []float64{
		0, 1, 2,
		3, 4, 5,
		6, 7, 8,
		9, 10, 0,
		1, 3, 5,
		2, 4, 6,
	})
	y := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 4, 5})
	est := neighbors.NewKNeighborsRegressor(neighbors.WithNNeighbors(3), neighbors.WithWeights(neighbors.WeightsDistance))
	require.NoError(t, est.Fit(X, y))

	eager, err := raster.NewDataArray(raster.NewArray(bands, height, width, data))
	require.NoError(t, err)
	ctx := context.Background()

	expected, err := Predict(ctx, eager, est)
	require.NoError(t, err)
	assert.False(t, expected.Chunked())

	lazy, err := Predict(ctx, eager.Chunk(2, 3), est)
	require.NoError(t, err)
	assert.True(t, lazy.Chunked())
	assert.Equal(t, raster.Chunks{Y: 2, X: 3}, lazy.Chunks())

	want, err := expected.Values(ctx)
	require.NoError(t, err)
	got, err := lazy.Values(ctx)
	require.NoError(t, err)
	assertValues(t, want.Data(), got.Data())
	assert.True(t, math.IsNaN(got.At(0, 1, 1)))
}

func TestPredictChunkedIsLazy(t *testing.T) {
	est := &countedSumFirst{}
	da, err := raster.NewDataArray(twoBandImage(), raster.WithChunks(1, 3))
	require.NoError(t, err)

	out, err := Predict(context.Background(), da, est)
	require.NoError(t, err)
	assert.Zero(t, est.calls.Load())

	computed, err := out.Compute(context.Background())
	require.NoError(t, err)
	assert.False(t, computed.Chunked())
	assert.Equal(t, int64(2), est.calls.Load())
}

func TestPredictDataset(t *testing.T) {
	red := raster.NewArray(1, 2, 2, []float64{1, 2, 3, -9})
	nir := raster.NewArray(1, 2, 2, []float64{10, 20, 30, 40})
	ds, err := raster.NewDataset([]raster.Variable{
		{Name: "red", Data: red},
		{Name: "nir", Data: nir},
	}, raster.WithAttrs(raster.Attrs{raster.FillValueAttr: -9, "crs": "EPSG:26910"}))
	require.NoError(t, err)

	for _, img := range []*raster.Dataset{ds, ds.Chunk(1, 1)} {
		out, err := Predict(context.Background(), img, &sumFirst{})
		require.NoError(t, err)
		assert.Equal(t, []string{"0", "1"}, out.Names())
		assert.Equal(t, "EPSG:26910", out.Attrs()["crs"])
		assert.Equal(t, img.Chunked(), out.Chunked())

		computed, err := out.Compute(context.Background())
		require.NoError(t, err)
		sum, ok := computed.Var("0")
		require.True(t, ok)
		first, ok := computed.Var("1")
		require.True(t, ok)
		assertValues(t, []float64{11, 22, 33, math.NaN()}, sum.Data.(*raster.Array).Data())
		assertValues(t, []float64{1, 2, 3, math.NaN()}, first.Data.(*raster.Array).Data())
	}
}

func TestKNeighbors(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	est := neighbors.NewKNeighborsRegressor(neighbors.WithNNeighbors(2))
	require.NoError(t, est.Fit(X, y))

	img := raster.NewArray(1, 1, 4, []float64{0, 1.2, 2.9, 10})
	ctx := context.Background()

	dist, nn, err := KNeighbors(ctx, img, est)
	require.NoError(t, err)
	assertValues(t, []float64{0, 1, 3, 3, 1, 2, 2, 2}, nn.Data())
	assertValues(t, []float64{0, 0.2, 0.1, 7, 1, 0.8, 0.9, 8}, dist.Data())

	dist, nn, err = KNeighbors(ctx, img, est, WithReturnDistance(false), WithNNeighbors(3))
	require.NoError(t, err)
	assert.Nil(t, dist)
	assert.Equal(t, 3, nn.Bands())

	_, _, err = KNeighbors(ctx, img, est, WithNNeighbors(5))
	assert.ErrorContains(t, err, "n_neighbors = 5, n_samples_fit = 4")
}

func TestKNeighborsDataArray(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{0, 0, 1, 1, 5, 5})
	y := mat.NewDense(3, 1, []float64{0, 1, 2})
	est := neighbors.NewKNeighborsRegressor(neighbors.WithNNeighbors(2))
	require.NoError(t, est.Fit(X, y))

	img, err := raster.NewDataArray(raster.NewArray(2, 2, 2, []float64{
		0, 1, 5, math.NaN(),
		0, 1, 5, 5,
	}), raster.WithChunks(1, 1))
	require.NoError(t, err)

	dist, nn, err := KNeighbors(context.Background(), img, est)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, dist.BandLabels())
	assert.Equal(t, []string{"0", "1"}, nn.BandLabels())

	vals, err := nn.Values(context.Background())
	require.NoError(t, err)
	nan := math.NaN()
	assertValues(t, []float64{0, 1, 2, nan, 1, 0, 1, nan}, vals.Data())
}

func TestKNeighborsDataset(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{0, 0, 1, 1, 5, 5})
	est := neighbors.NewKNeighborsRegressor(neighbors.WithNNeighbors(2))
	require.NoError(t, est.Fit(X, mat.NewDense(3, 1, []float64{0, 1, 2})))

	ds, err := raster.NewDataset([]raster.Variable{
		{Name: "red", Data: raster.NewArray(1, 2, 2, []float64{0, 1, 5, -9})},
		{Name: "nir", Data: raster.NewArray(1, 2, 2, []float64{0, 1, 5, 5})},
	}, raster.WithAttrs(raster.Attrs{raster.FillValueAttr: -9}))
	require.NoError(t, err)

	nan := math.NaN()
	for _, img := range []*raster.Dataset{ds, ds.Chunk(1, 1)} {
		dist, nn, err := KNeighbors(context.Background(), img, est)
		require.NoError(t, err)
		assert.Equal(t, []string{"0", "1"}, nn.Names())
		assert.Equal(t, []string{"0", "1"}, dist.Names())
		assert.Equal(t, img.Chunked(), nn.Chunked())

		nnVals, err := nn.Compute(context.Background())
		require.NoError(t, err)
		first, _ := nnVals.Var("0")
		second, _ := nnVals.Var("1")
		assertValues(t, []float64{0, 1, 2, nan}, first.Data.(*raster.Array).Data())
		assertValues(t, []float64{1, 0, 1, nan}, second.Data.(*raster.Array).Data())

		distVals, err := dist.Compute(context.Background())
		require.NoError(t, err)
		first, _ = distVals.Var("0")
		second, _ = distVals.Var("1")
		assertValues(t, []float64{0, 0, 0, nan}, first.Data.(*raster.Array).Data())
		assertValues(t, []float64{math.Sqrt2, math.Sqrt2, math.Sqrt(32), nan}, second.Data.(*raster.Array).Data())
	}
}

func TestKNeighborsChunkedWithoutDistance(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{0, 0, 1, 1, 5, 5})
	est := neighbors.NewKNeighborsRegressor(neighbors.WithNNeighbors(2))
	require.NoError(t, est.Fit(X, mat.NewDense(3, 1, []float64{0, 1, 2})))

	arr := raster.NewArray(2, 2, 2, []float64{
		0, 1, 5, math.NaN(),
		0, 1, 5, 5,
	})
	img, err := raster.NewDataArray(arr, raster.WithChunks(1, 1))
	require.NoError(t, err)

	dist, nn, err := KNeighbors(context.Background(), img, est, WithReturnDistance(false))
	require.NoError(t, err)
	assert.Nil(t, dist)
	assert.True(t, nn.Chunked())

	lazy, err := nn.Values(context.Background())
	require.NoError(t, err)
	_, eager, err := KNeighbors(context.Background(), arr, est, WithReturnDistance(false))
	require.NoError(t, err)
	assertValues(t, eager.Data(), lazy.Data())
	assertValues(t, []float64{0, 1, 2, math.NaN(), 1, 0, 1, math.NaN()}, lazy.Data())
}

func TestPredictWarnsOncePerCall(t *testing.T) {
	var warnings atomic.Int32
	errors.SetWarningHandler(func(error) { warnings.Add(1) })
	defer errors.SetWarningHandler(nil)

	arr := raster.NewArrayOf(1, 2, 2, []int16{-1, 5, -1, -1})
	img, err := raster.NewDataArray(arr, raster.WithChunks(1, 1))
	require.NoError(t, err)

	out, err := Predict(context.Background(), img, &sumFirst{}, WithNoData(-1))
	require.NoError(t, err)
	assert.Zero(t, warnings.Load())
	_, err = out.Values(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), warnings.Load())

	_, err = Predict(context.Background(), arr, &sumFirst{}, WithNoData(-1))
	require.NoError(t, err)
	assert.Equal(t, int32(2), warnings.Load())
}

func TestApplyAcrossBandsValidation(t *testing.T) {
	im, err := Wrap(twoBandImage(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	identity := func(_ context.Context, flat *mat.Dense) ([]mat.Matrix, error) {
		return []mat.Matrix{flat}, nil
	}

	_, err = im.ApplyAcrossBands(ctx, identity)
	assert.ErrorContains(t, err, "no outputs declared")

	_, err = im.ApplyAcrossBands(ctx, identity, WithOutput())
	assert.ErrorContains(t, err, "at least one band")

	_, err = im.ApplyAcrossBands(ctx, identity, WithOutput("a"), WithOutput("b", "c"))
	assert.ErrorContains(t, err, "function returned 1 outputs, expected 2")

	_, err = im.ApplyAcrossBands(ctx, identity, WithOutput("a"))
	var dim *errors.DimensionError
	assert.True(t, errors.As(err, &dim))

	_, err = im.ApplyAcrossBands(ctx, func(context.Context, *mat.Dense) ([]mat.Matrix, error) {
		return nil, errors.New("estimator failed")
	}, WithOutput("a"))
	assert.ErrorContains(t, err, "estimator failed")

	_, err = im.ApplyAcrossBands(ctx, func(context.Context, *mat.Dense) ([]mat.Matrix, error) {
		panic("boom")
	}, WithOutput("a"))
	assert.ErrorContains(t, err, "boom")
}

func TestApplyAcrossBandsNaNHandling(t *testing.T) {
	im, err := Wrap(twoBandImage(), -1)
	require.NoError(t, err)
	ctx := context.Background()
	identity := func(_ context.Context, flat *mat.Dense) ([]mat.Matrix, error) {
		return []mat.Matrix{flat}, nil
	}
	nan := math.NaN()

	outs, err := im.ApplyAcrossBands(ctx, identity, WithOutput("a", "b"))
	require.NoError(t, err)
	assertValues(t, []float64{
		1, 2, 3, 4, nan, nan,
		10, 20, 30, 40, nan, nan,
	}, outs[0].(*raster.Array).Data())

	outs, err = im.ApplyAcrossBands(ctx, identity, WithOutput("a", "b"), WithNaNFill(-5), WithoutNoDataMask())
	require.NoError(t, err)
	assertValues(t, []float64{
		1, 2, 3, 4, -1, 6,
		10, 20, 30, 40, 50, -5,
	}, outs[0].(*raster.Array).Data())

	outs, err = im.ApplyAcrossBands(ctx, identity, WithOutput("a", "b"), WithoutNaNFill(), WithoutNoDataMask())
	require.NoError(t, err)
	assert.True(t, math.IsNaN(outs[0].(*raster.Array).At(1, 1, 2)))
}
