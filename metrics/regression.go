// Package metrics provides regression metrics for single- and multi-output
// estimators. Multi-output scores are the uniform average of the per-output
// scores.
package metrics

import (
	"math"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	if yTrue.Len() == 0 {
		return 0, errors.NewValueError("MSE", "empty vector")
	}
	return MSEMatrix(yTrue, yPred)
}

// MSEMatrix は (n_samples, n_outputs) 行列の MSE を出力ごとに計算し、
// その平均を返す
func MSEMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	scores, err := perOutput("MSEMatrix", yTrue, yPred, mse)
	if err != nil {
		return 0, err
	}
	return stat.Mean(scores, nil), nil
}

// RMSE は出力ごとの平方根平均二乗誤差の平均を返す
func RMSE(yTrue, yPred mat.Matrix) (float64, error) {
	scores, err := perOutput("RMSE", yTrue, yPred, func(t, p []float64) float64 {
		return math.Sqrt(mse(t, p))
	})
	if err != nil {
		return 0, err
	}
	return stat.Mean(scores, nil), nil
}

// R2Score は決定係数（R²）を出力ごとに計算し、その平均を返す。
//
// yTrue が定数の出力は、予測が完全に一致すれば 1、そうでなければ 0 とする。
func R2Score(yTrue, yPred mat.Matrix) (float64, error) {
	scores, err := R2ScoreOutputs(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return stat.Mean(scores, nil), nil
}

// R2ScoreOutputs returns the R² of every output column.
func R2ScoreOutputs(yTrue, yPred mat.Matrix) ([]float64, error) {
	return perOutput("R2Score", yTrue, yPred, r2)
}

func mse(t, p []float64) float64 {
	var sum float64
	for i, v := range t {
		diff := v - p[i]
		sum += diff * diff
	}
	return sum / float64(len(t))
}

func r2(t, p []float64) float64 {
	mean := stat.Mean(t, nil)
	var tss, rss float64
	for i, v := range t {
		diff := v - p[i]
		rss += diff * diff
		tss += (v - mean) * (v - mean)
	}
	switch {
	case tss != 0:
		return 1 - rss/tss
	case rss == 0:
		return 1
	default:
		return 0
	}
}

// perOutput applies score to each pair of columns.
func perOutput(op string, yTrue, yPred mat.Matrix, score func(t, p []float64) float64) ([]float64, error) {
	n, outputs, err := checkMatrices(op, yTrue, yPred)
	if err != nil {
		return nil, err
	}
	t := make([]float64, n)
	p := make([]float64, n)
	scores := make([]float64, outputs)
	for j := range scores {
		mat.Col(t, j, yTrue)
		mat.Col(p, j, yPred)
		scores[j] = score(t, p)
	}
	return scores, nil
}

func checkMatrices(op string, yTrue, yPred mat.Matrix) (int, int, error) {
	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()
	if rTrue == 0 || cTrue == 0 {
		return 0, 0, errors.NewValueError(op, "empty matrix")
	}
	if rTrue != rPred {
		return 0, 0, errors.NewDimensionError(op, rTrue, rPred, 0)
	}
	if cTrue != cPred {
		return 0, 0, errors.NewDimensionError(op, cTrue, cPred, 1)
	}
	return rTrue, cTrue, nil
}
