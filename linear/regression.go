// Package linear provides a multi-output ordinary least squares regressor.
package linear

import (
	"fmt"
	"slices"

	"github.com/YuminosukeSato/scigo-spatial/core/model"
	"github.com/YuminosukeSato/scigo-spatial/core/parallel"
	"github.com/YuminosukeSato/scigo-spatial/metrics"
	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/YuminosukeSato/scigo-spatial/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// parallelThreshold 以上の行数で予測を並列化する
const parallelThreshold = 1000

// LinearRegression は最小二乗法による線形回帰モデル。
// y は (n_samples, n_targets) で、ターゲットごとに係数を学習する。
//
// フィールドは gob で保存できるように公開している。
type LinearRegression struct {
	model.BaseEstimator

	FitIntercept bool
	Tol          float64

	// Coef は (n_features, n_targets) の係数
	Coef *mat.Dense
	// Intercept はターゲットごとの切片
	Intercept []float64
	// Rank は X (切片列を含む) のランク
	Rank        int
	NFeaturesIn int
	Targets     []string
}

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{
		FitIntercept: true,
		Tol:          1e-10,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit はモデルを訓練データで学習させる
// 正規方程式 W = (X^T X)^(-1) X^T y を使用
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures := X.Dims()
	yRows, nTargets := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != nSamples {
		return errors.NewDimensionError("LinearRegression.Fit", nSamples, yRows, 0)
	}
	if lr.Targets != nil && len(lr.Targets) != nTargets {
		return errors.NewDimensionError("LinearRegression.Fit", len(lr.Targets), nTargets, 1)
	}

	// 切片を学習する場合は先頭に1の列を追加
	offset := 0
	if lr.FitIntercept {
		offset = 1
	}
	XFit := mat.NewDense(nSamples, nFeatures+offset, nil)
	parallel.ParallelizeWithThreshold(nSamples, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			if offset == 1 {
				XFit.Set(i, 0, 1.0)
			}
			for j := 0; j < nFeatures; j++ {
				XFit.Set(i, j+offset, X.At(i, j))
			}
		}
	})

	var XTX mat.Dense
	XTX.Mul(XFit.T(), XFit)

	var svd mat.SVD
	if !svd.Factorize(&XTX, mat.SVDNone) {
		return errors.NewModelError("LinearRegression.Fit", "SVD factorization failed", errors.ErrSingularMatrix)
	}
	lr.Rank = 0
	for _, s := range svd.Values(nil) {
		if s > lr.Tol {
			lr.Rank++
		}
	}

	var XTXInv mat.Dense
	if err := XTXInv.Inverse(&XTX); err != nil {
		// 特異行列の場合は対角に小さな値を加えて再試行
		r, _ := XTX.Dims()
		for i := 0; i < r; i++ {
			XTX.Set(i, i, XTX.At(i, i)+1e-10)
		}
		if err := XTXInv.Inverse(&XTX); err != nil {
			return errors.NewModelError("LinearRegression.Fit",
				"matrix inversion failed even with regularization", errors.ErrSingularMatrix)
		}
	}

	var XTy, W mat.Dense
	XTy.Mul(XFit.T(), y)
	W.Mul(&XTXInv, &XTy)

	lr.Intercept = make([]float64, nTargets)
	if lr.FitIntercept {
		mat.Row(lr.Intercept, 0, &W)
	}
	lr.Coef = mat.DenseCopyOf(W.Slice(offset, nFeatures+offset, 0, nTargets))
	lr.NFeaturesIn = nFeatures
	lr.SetFitted()

	log.GetLoggerWithName("linear").Debug("fitted",
		log.ModelNameKey, "LinearRegression",
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.TargetsKey, nTargets,
	)
	return nil
}

// Predict は (n_samples, n_targets) の予測を返す
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !lr.IsFitted() {
		return nil, errors.NewNotFittedError("LinearRegression", "Predict")
	}
	nSamples, nFeatures := X.Dims()
	if nFeatures != lr.NFeaturesIn {
		return nil, errors.NewDimensionError("LinearRegression.Predict", lr.NFeaturesIn, nFeatures, 1)
	}

	nTargets := lr.NOutputs()
	pred := mat.NewDense(nSamples, nTargets, nil)
	parallel.ParallelizeWithThreshold(nSamples, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for t := 0; t < nTargets; t++ {
				v := lr.Intercept[t]
				for j := 0; j < nFeatures; j++ {
					v += X.At(i, j) * lr.Coef.At(j, t)
				}
				pred.Set(i, t, v)
			}
		}
	})
	return pred, nil
}

// Score は決定係数 R² (ターゲット平均) を返す
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	pred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(y, pred)
}

// NOutputs returns the number of targets, 0 before Fit.
func (lr *LinearRegression) NOutputs() int { return len(lr.Intercept) }

// TargetNames returns the names given with WithTargetNames.
func (lr *LinearRegression) TargetNames() []string { return slices.Clone(lr.Targets) }

// GetParams はモデルのパラメータを取得する
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"fit_intercept": lr.FitIntercept,
		"tol":           lr.Tol,
	}
}

// SetParams はモデルのパラメータを設定する
func (lr *LinearRegression) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		switch k {
		case "fit_intercept":
			b, ok := v.(bool)
			if !ok {
				return errors.NewValueError("LinearRegression.SetParams", fmt.Sprintf("fit_intercept must be bool, got %T", v))
			}
			lr.FitIntercept = b
		case "tol":
			f, ok := v.(float64)
			if !ok {
				return errors.NewValueError("LinearRegression.SetParams", fmt.Sprintf("tol must be float64, got %T", v))
			}
			lr.Tol = f
		default:
			return errors.NewValueError("LinearRegression.SetParams", fmt.Sprintf("unknown parameter %q", k))
		}
	}
	return nil
}

// String はモデルの文字列表現を返す
func (lr *LinearRegression) String() string {
	if !lr.IsFitted() {
		return fmt.Sprintf("LinearRegression(fit_intercept=%t)", lr.FitIntercept)
	}
	return fmt.Sprintf("LinearRegression(fit_intercept=%t, n_features=%d, n_targets=%d)",
		lr.FitIntercept, lr.NFeaturesIn, lr.NOutputs())
}
