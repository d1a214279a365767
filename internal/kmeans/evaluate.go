package kmeans

import (
	"math"

	"github.com/arahuja/madlib/internal/vector"
)

// evaluate computes the total within-cluster cost and the simplified
// silhouette coefficient over the final assignment. With a single centroid
// there is no "nearest other" distance, so the silhouette is zero.
func evaluate(pts []Point, cents []Centroid, m vector.Metric) (cost, silhouette float64, err error) {
	byCID := make([]vector.Sparse, len(cents))
	for _, c := range cents {
		byCID[c.CID-1] = c.Vec
	}

	var silSum float64
	for _, p := range pts {
		a, err := m.Distance(p.Vec, byCID[p.CID-1])
		if err != nil {
			return 0, 0, err
		}
		cost += a

		if len(cents) < 2 {
			continue
		}
		b := math.MaxFloat64
		for ci := range byCID {
			if ci+1 == p.CID {
				continue
			}
			d, err := m.Distance(p.Vec, byCID[ci])
			if err != nil {
				return 0, 0, err
			}
			if d < b {
				b = d
			}
		}
		if max := math.Max(a, b); max > 0 {
			silSum += (b - a) / max
		}
	}
	if len(cents) >= 2 && len(pts) > 0 {
		silhouette = silSum / float64(len(pts))
	}
	return cost, silhouette, nil
}
