package kmeans

import (
	"math/rand"
	"sort"

	"github.com/arahuja/madlib/internal/vector"
)

// canopyEstimateSample caps the uniform sample used for threshold
// estimation.
const canopyEstimateSample = 1000

// estimateThresholds derives T1/T2 from pairwise distances over a uniform
// sample of up to 1000 points: the sorted distance list is split into 10
// equi-count buckets (ntile); T1 is the minimum of bucket 10 and T2 the
// maximum of bucket 1.
func estimateThresholds(rng *rand.Rand, pts []Point, m vector.Metric) (t1, t2 float64, err error) {
	sample := pts
	if len(pts) > canopyEstimateSample {
		sample = samplePoints(rng, pts, canopyEstimateSample)
	}

	var dists []float64
	for i := 0; i < len(sample); i++ {
		for j := i + 1; j < len(sample); j++ {
			d, derr := m.Distance(sample[i].Vec, sample[j].Vec)
			if derr != nil {
				return 0, 0, derr
			}
			dists = append(dists, d)
		}
	}
	if len(dists) == 0 {
		return 0, 0, ErrThresholdUnavailable
	}
	sort.Float64s(dists)

	// ntile(10) bucket boundaries: the first len%10 buckets carry one extra
	// element, matching SQL window semantics.
	n := len(dists)
	base, extra := n/10, n%10
	bucketStart := func(b int) int { // b in [0,10)
		s := b * base
		if b < extra {
			return s + b
		}
		return s + extra
	}
	lastStart := bucketStart(9)
	firstEnd := bucketStart(1) // exclusive
	if lastStart >= n || firstEnd <= 0 {
		return 0, 0, ErrThresholdUnavailable
	}
	t1 = dists[lastStart]
	t2 = dists[firstEnd-1]
	if t1 <= 0 || t2 <= 0 || t1 <= t2 {
		return 0, 0, ErrThresholdUnavailable
	}
	return t1, t2, nil
}

// seedCanopy builds canopy centres greedily, dedups them globally, and
// records per-point canopy membership. The surviving centres become the
// initial centroids; K is their count.
func seedCanopy(pts []Point, t1, t2 float64, m vector.Metric) ([]Centroid, error) {
	// Greedy emission: a point within t2 of an existing centre is covered;
	// anything else becomes a new centre.
	var centres []vector.Sparse
	for _, p := range pts {
		covered := false
		for _, c := range centres {
			d, err := m.Distance(p.Vec, c)
			if err != nil {
				return nil, err
			}
			if d <= t2 {
				covered = true
				break
			}
		}
		if !covered {
			centres = append(centres, p.Vec)
		}
	}

	// Global dedup: drop any centre within t2 of a lower-indexed survivor.
	var kept []vector.Sparse
	for _, c := range centres {
		dup := false
		for _, k := range kept {
			d, err := m.Distance(c, k)
			if err != nil {
				return nil, err
			}
			if d <= t2 {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil, &ErrInsufficientPoints{Kept: len(pts), Required: 1}
	}

	cents := make([]Centroid, len(kept))
	for i, c := range kept {
		cents[i] = Centroid{CID: i + 1, Vec: c}
	}

	// Membership threshold max(t1, 2*t2): dedup can move a point's nearest
	// centre up to 2*t2 away (triangle inequality), so every point lands in
	// at least one canopy.
	thr := t1
	if 2*t2 > thr {
		thr = 2 * t2
	}
	for i := range pts {
		var members []int
		nearest, nearestDist := 0, -1.0
		for _, c := range cents {
			d, err := m.Distance(pts[i].Vec, c.Vec)
			if err != nil {
				return nil, err
			}
			if d <= thr {
				members = append(members, c.CID)
			}
			if nearestDist < 0 || d < nearestDist {
				nearest, nearestDist = c.CID, d
			}
		}
		if len(members) == 0 {
			// Float rounding at the 2*t2 boundary; the canopy set is never
			// empty, so fall back to the nearest centre.
			members = []int{nearest}
		}
		pts[i].Canopies = members
	}
	return cents, nil
}
