// Package neighbors provides nearest-neighbor estimators.
//
// KNeighborsRegressor predicts each sample from the targets of its k
// nearest training samples and exposes the neighbors themselves through
// KNeighbors, which is what imputation workflows map over raster images.
package neighbors

import (
	"fmt"
	"slices"

	"github.com/YuminosukeSato/scigo-spatial/core/model"
	"github.com/YuminosukeSato/scigo-spatial/core/parallel"
	"github.com/YuminosukeSato/scigo-spatial/metrics"
	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/YuminosukeSato/scigo-spatial/pkg/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// 重み付け方法
const (
	WeightsUniform  = "uniform"
	WeightsDistance = "distance"
)

// 距離尺度
const (
	MetricEuclidean = "euclidean"
	MetricManhattan = "manhattan"
)

// parallelThreshold 以上のクエリ行数で近傍探索を並列化する
const parallelThreshold = 256

// KNeighborsRegressor はk近傍法による回帰モデル
// scikit-learnのKNeighborsRegressorと互換性を持つ
type KNeighborsRegressor struct {
	model.BaseEstimator

	// ハイパーパラメータ
	nNeighbors  int               // 近傍数
	weights     string            // 重み付け: "uniform", "distance"
	metric      string            // 距離尺度: "euclidean", "manhattan"
	transform   model.Transformer // 距離計算前の特徴量変換 (任意)
	targetNames []string          // ターゲット名

	// 学習データ
	fitX      *mat.Dense   // 変換後の訓練特徴量
	fitY      *mat.Dense
	tree      *kdtree.Tree // fitX の k-d 木 (ユークリッド距離の探索用)
	nFeatures int
}

// Option はKNeighborsRegressorの設定オプション
type Option func(*KNeighborsRegressor)

// WithNNeighbors は近傍数を設定 (デフォルト: 5)
func WithNNeighbors(k int) Option {
	return func(r *KNeighborsRegressor) {
		r.nNeighbors = k
	}
}

// WithWeights は重み付け方法を設定 ("uniform" または "distance")
func WithWeights(weights string) Option {
	return func(r *KNeighborsRegressor) {
		r.weights = weights
	}
}

// WithMetric は距離尺度を設定 ("euclidean" または "manhattan")
func WithMetric(metric string) Option {
	return func(r *KNeighborsRegressor) {
		r.metric = metric
	}
}

// WithTransform は距離計算の前に特徴量へ適用する変換を設定する。
// Fit で学習され、以降のクエリに同じ変換が適用される。
func WithTransform(t model.Transformer) Option {
	return func(r *KNeighborsRegressor) {
		r.transform = t
	}
}

// WithTargetNames はターゲット列の名前を設定する
func WithTargetNames(names ...string) Option {
	return func(r *KNeighborsRegressor) {
		r.targetNames = slices.Clone(names)
	}
}

// NewKNeighborsRegressor は新しいKNeighborsRegressorを作成
func NewKNeighborsRegressor(opts ...Option) *KNeighborsRegressor {
	r := &KNeighborsRegressor{
		nNeighbors: 5,
		weights:    WeightsUniform,
		metric:     MetricEuclidean,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *KNeighborsRegressor) validateParams() error {
	if r.nNeighbors <= 0 {
		return errors.NewValueError("KNeighborsRegressor",
			fmt.Sprintf("n_neighbors must be positive, got %d", r.nNeighbors))
	}
	if r.weights != WeightsUniform && r.weights != WeightsDistance {
		return errors.NewValueError("KNeighborsRegressor",
			fmt.Sprintf("weights must be %q or %q, got %q", WeightsUniform, WeightsDistance, r.weights))
	}
	if r.metric != MetricEuclidean && r.metric != MetricManhattan {
		return errors.NewValueError("KNeighborsRegressor",
			fmt.Sprintf("metric must be %q or %q, got %q", MetricEuclidean, MetricManhattan, r.metric))
	}
	return nil
}

// Fit は訓練データを記憶する。y は (n_samples, n_targets)。
func (r *KNeighborsRegressor) Fit(X, y mat.Matrix) error {
	if err := r.validateParams(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, nTargets := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("KNeighborsRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != nSamples {
		return errors.NewDimensionError("KNeighborsRegressor.Fit", nSamples, yRows, 0)
	}
	if r.targetNames != nil && len(r.targetNames) != nTargets {
		return errors.NewDimensionError("KNeighborsRegressor.Fit", len(r.targetNames), nTargets, 1)
	}

	Xt := mat.Matrix(X)
	if r.transform != nil {
		var err error
		if Xt, err = r.transform.FitTransform(X); err != nil {
			return errors.Wrap(err, "fit transform")
		}
	}

	r.fitX = mat.DenseCopyOf(Xt)
	r.fitY = mat.DenseCopyOf(y)
	r.tree = newSampleTree(r.fitX)
	r.nFeatures = nFeatures
	r.SetFitted()

	log.GetLoggerWithName("neighbors").Debug("fitted",
		log.ModelNameKey, "KNeighborsRegressor",
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.TargetsKey, nTargets,
		log.NeighborsKey, r.nNeighbors,
	)
	return nil
}

// KNeighbors は各行の k 近傍の訓練サンプルを距離の昇順で返す。
// 距離が等しい場合はインデックスの小さい方が先になる。
// returnDistance が false の場合 dist は nil。
func (r *KNeighborsRegressor) KNeighbors(X mat.Matrix, k int, returnDistance bool) (dist, ind *mat.Dense, err error) {
	if !r.IsFitted() {
		return nil, nil, errors.NewNotFittedError("KNeighborsRegressor", "KNeighbors")
	}
	nQuery, nFeatures := X.Dims()
	if nFeatures != r.nFeatures {
		return nil, nil, errors.NewDimensionError("KNeighborsRegressor.KNeighbors", r.nFeatures, nFeatures, 1)
	}
	nFit, _ := r.fitX.Dims()
	if k <= 0 {
		return nil, nil, errors.NewValueError("KNeighborsRegressor.KNeighbors",
			fmt.Sprintf("Expected n_neighbors > 0. Got %d", k))
	}
	if k > nFit {
		return nil, nil, errors.NewValueError("KNeighborsRegressor.KNeighbors",
			fmt.Sprintf("Expected n_neighbors <= n_samples_fit, but n_neighbors = %d, n_samples_fit = %d", k, nFit))
	}

	Xq := mat.Matrix(X)
	if r.transform != nil {
		if Xq, err = r.transform.Transform(X); err != nil {
			return nil, nil, errors.Wrap(err, "transform query")
		}
	}

	dist = mat.NewDense(nQuery, k, nil)
	ind = mat.NewDense(nQuery, k, nil)
	parallel.ParallelizeWithThreshold(nQuery, parallelThreshold, func(start, end int) {
		query := make([]float64, nFeatures)
		best := newNearest(k)
		for i := start; i < end; i++ {
			mat.Row(query, i, Xq)
			r.search(best, query)
			for n := 0; n < k; n++ {
				dist.Set(i, n, best.dist[n])
				ind.Set(i, n, float64(best.index[n]))
			}
		}
	})

	if !returnDistance {
		return nil, ind, nil
	}
	return dist, ind, nil
}

// search fills best with the neighbors of query. Euclidean queries walk the
// k-d tree; manhattan distances scan every training sample because the
// tree prunes with squared plane distances. A query holding NaN cannot be
// placed in the tree and is scanned too.
func (r *KNeighborsRegressor) search(best *nearest, query []float64) {
	best.reset()
	norm := 1.0
	if r.metric == MetricEuclidean {
		if !floats.HasNaN(query) {
			nearestEuclidean(r.tree, query, best.k, best.dist, best.index)
			best.n = best.k
			return
		}
		norm = 2
	}
	nFit, _ := r.fitX.Dims()
	for j := 0; j < nFit; j++ {
		best.push(floats.Distance(query, r.fitX.RawRowView(j), norm), j)
	}
}

// Predict は近傍のターゲットの (重み付き) 平均を返す
func (r *KNeighborsRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	dist, ind, err := r.KNeighbors(X, r.nNeighbors, true)
	if err != nil {
		return nil, err
	}

	nQuery, k := ind.Dims()
	nTargets := r.NOutputs()
	pred := mat.NewDense(nQuery, nTargets, nil)
	w := make([]float64, k)
	for i := 0; i < nQuery; i++ {
		r.neighborWeights(w, dist.RawRowView(i))
		total := floats.Sum(w)
		for t := 0; t < nTargets; t++ {
			var v float64
			for n := 0; n < k; n++ {
				v += w[n] * r.fitY.At(int(ind.At(i, n)), t)
			}
			pred.Set(i, t, v/total)
		}
	}
	return pred, nil
}

// neighborWeights fills w for one query row. With distance weighting, an
// exact match takes all the weight, shared between exact matches.
func (r *KNeighborsRegressor) neighborWeights(w, dist []float64) {
	if r.weights == WeightsUniform {
		for n := range w {
			w[n] = 1
		}
		return
	}
	if floats.Min(dist) == 0 {
		for n, d := range dist {
			w[n] = 0
			if d == 0 {
				w[n] = 1
			}
		}
		return
	}
	for n, d := range dist {
		w[n] = 1 / d
	}
}

// Score は決定係数 R² (ターゲット平均) を返す
func (r *KNeighborsRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := r.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(y, pred)
}

// NOutputs returns the number of targets seen by Fit, 0 before Fit.
func (r *KNeighborsRegressor) NOutputs() int {
	if r.fitY == nil {
		return 0
	}
	_, c := r.fitY.Dims()
	return c
}

// NNeighbors returns the configured number of neighbors.
func (r *KNeighborsRegressor) NNeighbors() int { return r.nNeighbors }

// TargetNames returns the names given with WithTargetNames.
func (r *KNeighborsRegressor) TargetNames() []string { return slices.Clone(r.targetNames) }

// GetParams はモデルのパラメータを取得する
func (r *KNeighborsRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_neighbors": r.nNeighbors,
		"weights":     r.weights,
		"metric":      r.metric,
	}
}

// SetParams はモデルのパラメータを設定する
func (r *KNeighborsRegressor) SetParams(params map[string]interface{}) error {
	next := *r
	for key, v := range params {
		var ok bool
		switch key {
		case "n_neighbors":
			next.nNeighbors, ok = v.(int)
		case "weights":
			next.weights, ok = v.(string)
		case "metric":
			next.metric, ok = v.(string)
		default:
			return errors.NewValueError("KNeighborsRegressor.SetParams", fmt.Sprintf("unknown parameter %q", key))
		}
		if !ok {
			return errors.NewValueError("KNeighborsRegressor.SetParams", fmt.Sprintf("invalid type %T for %s", v, key))
		}
	}
	if err := next.validateParams(); err != nil {
		return err
	}
	r.nNeighbors, r.weights, r.metric = next.nNeighbors, next.weights, next.metric
	return nil
}

// String はモデルの文字列表現を返す
func (r *KNeighborsRegressor) String() string {
	return fmt.Sprintf("KNeighborsRegressor(n_neighbors=%d, weights=%s, metric=%s)",
		r.nNeighbors, r.weights, r.metric)
}
