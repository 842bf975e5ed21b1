package neighbors

import (
	"container/heap"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// sample は訓練サンプル1行。kdtree.Comparable を満たす。
// index は fitX での行番号で、木の構築で並びが変わっても保持される。
type sample struct {
	index int
	x     []float64
}

// Compare implements kdtree.Comparable.
func (s sample) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return s.x[d] - c.(sample).x[d]
}

// Dims implements kdtree.Comparable.
func (s sample) Dims() int { return len(s.x) }

// Distance は二乗ユークリッド距離を返す
func (s sample) Distance(c kdtree.Comparable) float64 {
	q := c.(sample)
	var sum float64
	for i, v := range s.x {
		d := v - q.x[i]
		sum += d * d
	}
	return sum
}

// samples satisfies kdtree.Interface.
type samples []sample

func (p samples) Index(i int) kdtree.Comparable         { return p[i] }
func (p samples) Len() int                              { return len(p) }
func (p samples) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p samples) Pivot(d kdtree.Dim) int {
	plane := samplePlane{samples: p, Dim: d}
	return kdtree.Partition(plane, kdtree.MedianOfRandoms(plane, 100))
}

// samplePlane implements kdtree.SortSlicer for one dimension.
type samplePlane struct {
	samples
	kdtree.Dim
}

func (p samplePlane) Less(i, j int) bool {
	return p.samples[i].x[p.Dim] < p.samples[j].x[p.Dim]
}

func (p samplePlane) Slice(start, end int) kdtree.SortSlicer {
	return samplePlane{samples: p.samples[start:end], Dim: p.Dim}
}

func (p samplePlane) Swap(i, j int) {
	p.samples[i], p.samples[j] = p.samples[j], p.samples[i]
}

// newSampleTree は X の各行を点とする k-d 木を作る。行は共有され、コピーされない。
func newSampleTree(X *mat.Dense) *kdtree.Tree {
	n, _ := X.Dims()
	pts := make(samples, n)
	for i := range pts {
		pts[i] = sample{index: i, x: X.RawRowView(i)}
	}
	return kdtree.New(pts, false)
}

// rankedKeeper is kdtree.NKeeper with ties on distance ranked by sample
// index, so the k retained samples do not depend on the tree's visit order.
// The heap holds a +Inf sentinel until k samples have been kept.
type rankedKeeper struct {
	kdtree.Heap
}

func newRankedKeeper(k int) *rankedKeeper {
	h := make(kdtree.Heap, 1, k)
	h[0].Dist = math.Inf(1)
	return &rankedKeeper{Heap: h}
}

// before reports whether a ranks ahead of b: nearer first, then lower index.
// The sentinel ranks after every sample.
func before(a, b kdtree.ComparableDist) bool {
	switch {
	case a.Comparable == nil:
		return false
	case b.Comparable == nil:
		return true
	case a.Dist != b.Dist:
		return a.Dist < b.Dist
	default:
		return a.Comparable.(sample).index < b.Comparable.(sample).index
	}
}

// Less orders the heap with the worst candidate on top.
func (k *rankedKeeper) Less(i, j int) bool { return before(k.Heap[j], k.Heap[i]) }

// Keep implements kdtree.Keeper.
func (k *rankedKeeper) Keep(c kdtree.ComparableDist) {
	if !before(c, k.Heap[0]) {
		return
	}
	if len(k.Heap) == cap(k.Heap) {
		heap.Pop(k)
	}
	heap.Push(k, c)
}

// nearestEuclidean は tree から q に近い k 個のサンプルを探し、
// 距離 (二乗ではない) の昇順に dist と index へ書き込む。
func nearestEuclidean(tree *kdtree.Tree, q []float64, k int, dist []float64, index []int) {
	keeper := newRankedKeeper(k)
	tree.NearestSet(keeper, sample{index: -1, x: q})
	// NearestSet は昇順に並べ替え、番兵を取り除いている
	for n, c := range keeper.Heap {
		dist[n] = math.Sqrt(c.Dist)
		index[n] = c.Comparable.(sample).index
	}
}
