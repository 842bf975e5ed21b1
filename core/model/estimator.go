// Package model defines the estimator contracts that the raster adapters
// dispatch on. Estimators take and return gonum matrices with one row per
// sample (pixel) and one column per feature (band) or target.
package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。y は (n_samples, n_targets)。
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は (n_samples, n_targets) の予測を返す
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer はスコアを計算できるモデルのインターフェース
type Scorer interface {
	// Score は予測の決定係数 R² を返す
	Score(X, y mat.Matrix) (float64, error)
}

// Regressor combines the interfaces of a fitted regression model.
type Regressor interface {
	Fitter
	Predictor
	Scorer
}

// OutputCounter is implemented by fitted estimators that know how many
// targets they predict. Image adapters use it to size output bands without
// a probe prediction.
type OutputCounter interface {
	NOutputs() int
}

// TargetNamer is implemented by estimators fitted on named targets. The
// names label the bands of predicted images.
type TargetNamer interface {
	TargetNames() []string
}

// KNeighborsQuerier は近傍探索ができるモデルのインターフェース
type KNeighborsQuerier interface {
	// KNeighbors は各行の k 近傍の距離とインデックスを返す。
	// returnDistance が false の場合 dist は nil。
	KNeighbors(X mat.Matrix, k int, returnDistance bool) (dist, ind *mat.Dense, err error)
	// NNeighbors は既定の近傍数を返す
	NNeighbors() int
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}
