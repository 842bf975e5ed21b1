package linear

import (
	"bytes"
	"math"
	"testing"

	"github.com/YuminosukeSato/scigo-spatial/core/model"
	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLinearRegression_Basic(t *testing.T) {
	// y = 2x + 1
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{3, 5, 7, 9})

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))

	assert.InDelta(t, 2.0, lr.Coef.At(0, 0), 1e-6)
	assert.InDelta(t, 1.0, lr.Intercept[0], 1e-6)
	assert.Equal(t, 1, lr.NOutputs())

	pred, err := lr.Predict(mat.NewDense(2, 1, []float64{5, 6}))
	require.NoError(t, err)
	assert.InDelta(t, 11.0, pred.At(0, 0), 1e-6)
	assert.InDelta(t, 13.0, pred.At(1, 0), 1e-6)
}

func TestLinearRegression_NoIntercept(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{2, 4, 6, 8})

	lr := NewLinearRegression(WithFitIntercept(false))
	require.NoError(t, lr.Fit(X, y))
	assert.InDelta(t, 2.0, lr.Coef.At(0, 0), 1e-6)
	assert.Equal(t, 0.0, lr.Intercept[0])
}

func TestLinearRegression_MultipleFeatures(t *testing.T) {
	// y = 2*x1 + 3*x2 + 1
	X := mat.NewDense(5, 2, []float64{
		1, 1,
		2, 1,
		3, 2,
		4, 2,
		5, 3,
	})
	y := mat.NewDense(5, 1, []float64{6, 8, 13, 15, 20})

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.InDelta(t, 2.0, lr.Coef.At(0, 0), 1e-6)
	assert.InDelta(t, 3.0, lr.Coef.At(1, 0), 1e-6)

	score, err := lr.Score(X, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestLinearRegression_MultipleTargets(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 2, []float64{
		3, 2, // y1 = 2x + 1, y2 = x + 1
		5, 3,
		7, 4,
		9, 5,
	})

	lr := NewLinearRegression(WithTargetNames("a", "b"))
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, 2, lr.NOutputs())
	assert.Equal(t, []string{"a", "b"}, lr.TargetNames())

	pred, err := lr.Predict(mat.NewDense(2, 1, []float64{5, 6}))
	require.NoError(t, err)
	expected := [][]float64{{11, 6}, {13, 7}}
	for i := range expected {
		for j := range expected[i] {
			assert.InDelta(t, expected[i][j], pred.At(i, j), 1e-6)
		}
	}
}

func TestLinearRegression_Errors(t *testing.T) {
	lr := NewLinearRegression()
	_, err := lr.Predict(mat.NewDense(1, 1, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	err = lr.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(2, 1, []float64{1, 2}))
	var dim *errors.DimensionError
	assert.True(t, errors.As(err, &dim))

	require.NoError(t, lr.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(3, 1, []float64{1, 2, 3})))
	_, err = lr.Predict(mat.NewDense(1, 2, nil))
	assert.True(t, errors.As(err, &dim))

	err = NewLinearRegression(WithTargetNames("only")).
		Fit(mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(2, 2, nil))
	assert.Error(t, err)
}

func TestLinearRegression_Params(t *testing.T) {
	lr := NewLinearRegression()
	require.NoError(t, lr.SetParams(map[string]interface{}{"fit_intercept": false, "tol": 1e-6}))
	assert.Equal(t, map[string]interface{}{"fit_intercept": false, "tol": 1e-6}, lr.GetParams())
	assert.Error(t, lr.SetParams(map[string]interface{}{"alpha": 1.0}))
	assert.Error(t, lr.SetParams(map[string]interface{}{"tol": "small"}))
}

func TestLinearRegression_Persistence(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{3, 5, 7, 9})
	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, model.SaveModelToWriter(lr, &buf))

	var loaded LinearRegression
	require.NoError(t, model.LoadModelFromReader(&loaded, &buf))
	assert.True(t, loaded.IsFitted())

	pred, err := loaded.Predict(mat.NewDense(1, 1, []float64{10}))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(pred.At(0, 0)))
	assert.InDelta(t, 21.0, pred.At(0, 0), 1e-6)
}
