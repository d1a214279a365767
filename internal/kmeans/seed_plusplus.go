package kmeans

import (
	"math"
	"math/rand"
	"sort"

	"github.com/arahuja/madlib/internal/sampling"
	"github.com/arahuja/madlib/internal/vector"
)

// seedKMeansPP runs k-means++ weighted seeding: after a uniform first pick,
// each successive centroid is drawn with probability proportional to the
// squared distance to its nearest already-chosen centroid.
//
// The candidate pool is an optional Bernoulli sub-sample: an explicit
// sampleFrac targets floor(n*frac) points and must yield at least k;
// otherwise the default target is floor(n/100), falling back to the full
// point set when that is below k.
func seedKMeansPP(rng *rand.Rand, pts []Point, k int, sampleFrac float64, m vector.Metric) ([]Centroid, error) {
	n := len(pts)
	if n < k {
		return nil, &ErrInsufficientPoints{Kept: n, Required: k}
	}

	candidates := pts
	if sampleFrac > 0 {
		target := int(float64(n) * sampleFrac)
		if target < k {
			return nil, &ErrSampleTooSmall{Target: target, K: k}
		}
		candidates = samplePoints(rng, pts, target)
	} else if target := n / 100; target >= k {
		candidates = samplePoints(rng, pts, target)
	}

	cents := make([]Centroid, 0, k)
	first := candidates[rng.Intn(len(candidates))]
	cents = append(cents, Centroid{CID: 1, Vec: first.Vec})

	// minDist[i] = min over chosen centroids of dist(candidates[i], c),
	// maintained incrementally against the newest centroid only.
	minDist := make([]float64, len(candidates))
	for i := range minDist {
		minDist[i] = math.MaxFloat64
	}

	for len(cents) < k {
		newest := cents[len(cents)-1].Vec
		var total float64
		for i, c := range candidates {
			d, err := m.Distance(c.Vec, newest)
			if err != nil {
				return nil, err
			}
			if d < minDist[i] {
				minDist[i] = d
			}
			total += minDist[i] * minDist[i]
		}

		// Weighted draw: candidates are in pid order, so the first point
		// whose cumulative weight reaches r wins; zero-distance duplicates
		// resolve to the lower pid.
		r := total * rng.Float64()
		var cum float64
		pick := len(candidates) - 1
		for i := range candidates {
			cum += minDist[i] * minDist[i]
			if cum >= r {
				pick = i
				break
			}
		}
		cents = append(cents, Centroid{CID: len(cents) + 1, Vec: candidates[pick].Vec})
	}
	return cents, nil
}

// samplePoints draws target points via the Chernoff-bounded Bernoulli
// filter, preserving pid order.
func samplePoints(rng *rand.Rand, pts []Point, target int) []Point {
	idx := sampling.Indices(rng, len(pts), target)
	sort.Ints(idx)
	out := make([]Point, 0, len(idx))
	for _, i := range idx {
		out = append(out, pts[i])
	}
	return out
}
