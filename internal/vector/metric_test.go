package vector

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	cases := []struct {
		name string
		want Metric
	}{
		{"l1norm", L1Norm},
		{"manhattan", L1Norm},
		{"l2norm", L2Norm},
		{"euclidean", L2Norm},
		{"L2NORM", L2Norm},
		{"", L2Norm},
		{"cosine", Cosine},
		{"tanimoto", Tanimoto},
	}
	for _, tc := range cases {
		m, err := ParseMetric(tc.name)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, m, tc.name)
	}

	_, err := ParseMetric("chebyshev")
	var unknown *ErrUnknownMetric
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "chebyshev", unknown.Name)
}

func TestL1Distance(t *testing.T) {
	u := FromDense([]float64{1, -2, 0})
	v := FromDense([]float64{0, 1, 4})

	d, err := L1Norm.Distance(u, v)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, d, 1e-12) // 1 + 3 + 4
}

func TestL2Distance(t *testing.T) {
	u := FromDense([]float64{0, 0})
	v := FromDense([]float64{3, 4})

	d, err := L2Norm.Distance(u, v)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-12)
}

func TestCosineDistanceIsAngle(t *testing.T) {
	x := FromDense([]float64{1, 0})
	y := FromDense([]float64{0, 2})
	colinear := FromDense([]float64{5, 0})

	d, err := Cosine.Distance(x, y)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/2, d, 1e-12, "orthogonal vectors are pi/2 apart")

	d, err = Cosine.Distance(x, colinear)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-12, "colinear vectors are 0 apart regardless of magnitude")

	opposite := FromDense([]float64{-1, 0})
	d, err = Cosine.Distance(x, opposite)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi, d, 1e-12)
}

func TestCosineZeroVector(t *testing.T) {
	z := FromDense([]float64{0, 0})
	x := FromDense([]float64{1, 1})

	d, err := Cosine.Distance(z, x)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/2, d, 1e-12, "zero vector is orthogonal to everything")
}

func TestTanimotoDistance(t *testing.T) {
	u := FromDense([]float64{1, 1})
	d, err := Tanimoto.Distance(u, u)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-12, "identical vectors coincide")

	v := FromDense([]float64{1, 0})
	w := FromDense([]float64{0, 1})
	d, err = Tanimoto.Distance(v, w)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-12, "disjoint supports are maximally distant")

	z := FromDense([]float64{0, 0})
	d, err = Tanimoto.Distance(z, z)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
}

func TestDistanceDimensionMismatch(t *testing.T) {
	u := FromDense([]float64{1})
	v := FromDense([]float64{1, 2})
	for _, m := range []Metric{L1Norm, L2Norm, Cosine, Tanimoto} {
		_, err := m.Distance(u, v)
		var dm *ErrDimensionMismatch
		require.True(t, errors.As(err, &dm), m.String())
	}
}

func TestNormalizesAggregate(t *testing.T) {
	assert.False(t, L1Norm.NormalizesAggregate())
	assert.False(t, L2Norm.NormalizesAggregate())
	assert.True(t, Cosine.NormalizesAggregate())
	assert.True(t, Tanimoto.NormalizesAggregate())
}
