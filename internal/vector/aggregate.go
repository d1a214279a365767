package vector

// Aggregator computes the per-metric centroid update for one cluster: the
// componentwise mean of its members, over normalized members for the angular
// metrics (cosine, tanimoto). Partial aggregators built on disjoint
// partitions can be merged before taking the mean.
type Aggregator struct {
	sum       []float64
	n         int
	normalize bool
}

// NewAggregator returns an aggregator for clusters of the given dimension
// under metric m.
func NewAggregator(m Metric, dim int) *Aggregator {
	return &Aggregator{
		sum:       make([]float64, dim),
		normalize: m.NormalizesAggregate(),
	}
}

// Add folds one cluster member into the aggregate.
func (a *Aggregator) Add(v Sparse) {
	if a.normalize {
		v = Normalize(v)
	}
	v.AddTo(a.sum)
	a.n++
}

// Merge folds another aggregator built over a disjoint partition into a.
func (a *Aggregator) Merge(b *Aggregator) {
	for i, x := range b.sum {
		a.sum[i] += x
	}
	a.n += b.n
}

// Count returns the number of members folded in so far.
func (a *Aggregator) Count() int { return a.n }

// Mean returns the aggregated centroid position. ok is false for an empty
// cluster; the caller keeps the previous centroid in that case.
func (a *Aggregator) Mean() (Sparse, bool) {
	if a.n == 0 {
		return Sparse{}, false
	}
	mean := make([]float64, len(a.sum))
	inv := 1 / float64(a.n)
	for i, x := range a.sum {
		mean[i] = x * inv
	}
	return FromDense(mean), true
}
