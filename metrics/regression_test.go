package metrics

import (
	"testing"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// 2出力: 1列目は誤差 ±0.5、2列目は完全一致
func twoTargets() (yTrue, yPred *mat.Dense) {
	yTrue = mat.NewDense(4, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
	})
	yPred = mat.NewDense(4, 2, []float64{
		1.5, 10,
		2.5, 20,
		2.5, 30,
		3.5, 40,
	})
	return yTrue, yPred
}

func TestMSE(t *testing.T) {
	got, err := MSE(mat.NewVecDense(3, []float64{10, 20, 30}), mat.NewVecDense(3, []float64{12, 18, 33}))
	require.NoError(t, err)
	assert.InDelta(t, 17.0/3.0, got, 1e-12)

	_, err = MSE(&mat.VecDense{}, &mat.VecDense{})
	var valErr *errors.ValueError
	assert.True(t, errors.As(err, &valErr))

	_, err = MSE(mat.NewVecDense(3, nil), mat.NewVecDense(2, nil))
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 0, dimErr.Axis)
}

func TestMultiOutputScoresAverageOutputs(t *testing.T) {
	yTrue, yPred := twoTargets()

	tests := []struct {
		name   string
		metric func(yTrue, yPred mat.Matrix) (float64, error)
		want   float64
	}{
		// 1列目 0.25、2列目 0
		{"MSEMatrix", MSEMatrix, 0.125},
		// 1列目 0.5、2列目 0
		{"RMSE", RMSE, 0.25},
		// 1列目 1 - 1/5、2列目 1
		{"R2Score", R2Score, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.metric(yTrue, yPred)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestR2ScoreOutputs(t *testing.T) {
	yTrue, yPred := twoTargets()
	scores, err := R2ScoreOutputs(yTrue, yPred)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.8, 1}, scores, 1e-12)
}

func TestR2ScoreConstantTarget(t *testing.T) {
	constant := mat.NewDense(3, 1, []float64{2, 2, 2})

	got, err := R2Score(constant, mat.NewDense(3, 1, []float64{2, 2, 2}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = R2Score(constant, mat.NewDense(3, 1, []float64{2, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestMatrixMetricsValidateShapes(t *testing.T) {
	metrics := map[string]func(yTrue, yPred mat.Matrix) (float64, error){
		"MSEMatrix": MSEMatrix,
		"RMSE":      RMSE,
		"R2Score":   R2Score,
	}
	for name, metric := range metrics {
		t.Run(name, func(t *testing.T) {
			var dimErr *errors.DimensionError

			_, err := metric(mat.NewDense(3, 2, nil), mat.NewDense(2, 2, nil))
			require.True(t, errors.As(err, &dimErr))
			assert.Equal(t, 0, dimErr.Axis)

			_, err = metric(mat.NewDense(3, 2, nil), mat.NewDense(3, 1, nil))
			require.True(t, errors.As(err, &dimErr))
			assert.Equal(t, 1, dimErr.Axis)
		})
	}
}
