package vector

import (
	"math"
	"testing"
)

func TestAggregatorMean(t *testing.T) {
	agg := NewAggregator(L2Norm, 2)
	agg.Add(FromDense([]float64{0, 0}))
	agg.Add(FromDense([]float64{0, 1}))

	mean, ok := agg.Mean()
	if !ok {
		t.Fatal("Mean returned not-ok for non-empty aggregate")
	}
	if mean.At(0) != 0 || mean.At(1) != 0.5 {
		t.Errorf("mean = %v, want [0 0.5]", mean.Dense())
	}
	if agg.Count() != 2 {
		t.Errorf("Count = %d, want 2", agg.Count())
	}
}

func TestAggregatorNormalizedMean(t *testing.T) {
	// Cosine aggregation averages normalized members: [1,0] and [4,0]
	// contribute the same unit vector.
	agg := NewAggregator(Cosine, 2)
	agg.Add(FromDense([]float64{1, 0}))
	agg.Add(FromDense([]float64{4, 0}))

	mean, ok := agg.Mean()
	if !ok {
		t.Fatal("Mean returned not-ok")
	}
	if math.Abs(mean.At(0)-1) > 1e-12 || mean.At(1) != 0 {
		t.Errorf("normalized mean = %v, want [1 0]", mean.Dense())
	}
}

func TestAggregatorMerge(t *testing.T) {
	a := NewAggregator(L2Norm, 1)
	a.Add(FromDense([]float64{2}))
	b := NewAggregator(L2Norm, 1)
	b.Add(FromDense([]float64{4}))
	b.Add(FromDense([]float64{6}))

	a.Merge(b)
	mean, ok := a.Mean()
	if !ok {
		t.Fatal("Mean returned not-ok")
	}
	if mean.At(0) != 4 {
		t.Errorf("merged mean = %v, want 4", mean.At(0))
	}
}

func TestAggregatorEmpty(t *testing.T) {
	agg := NewAggregator(L2Norm, 3)
	if _, ok := agg.Mean(); ok {
		t.Error("empty aggregate must report not-ok so orphans keep their position")
	}
}
