package neighbors

// nearest keeps the k smallest distances seen so far, sorted ascending.
// Candidates are pushed in index order and an equal distance never displaces
// an earlier candidate, so ties resolve to the lower index. It also carries
// the result of a k-d tree search, which ranks ties the same way.
type nearest struct {
	k     int
	n     int
	dist  []float64
	index []int
}

func newNearest(k int) *nearest {
	return &nearest{k: k, dist: make([]float64, k), index: make([]int, k)}
}

func (b *nearest) reset() { b.n = 0 }

func (b *nearest) push(d float64, i int) {
	if b.n == b.k && !(d < b.dist[b.k-1]) {
		return
	}
	pos := b.n
	if pos == b.k {
		pos--
	}
	for pos > 0 && d < b.dist[pos-1] {
		b.dist[pos] = b.dist[pos-1]
		b.index[pos] = b.index[pos-1]
		pos--
	}
	b.dist[pos] = d
	b.index[pos] = i
	if b.n < b.k {
		b.n++
	}
}
