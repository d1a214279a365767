package kmeans

import (
	"math/rand"

	"github.com/arahuja/madlib/internal/sampling"
)

// seedRandom selects k points uniformly at random via a Bernoulli filter at
// the Chernoff-bounded row probability, capped at k. Centroid ids are dense
// 1..k in arrival order.
func seedRandom(rng *rand.Rand, pts []Point, k int) ([]Centroid, error) {
	if len(pts) < k {
		return nil, &ErrInsufficientPoints{Kept: len(pts), Required: k}
	}
	cents := make([]Centroid, 0, k)
	for _, idx := range sampling.Indices(rng, len(pts), k) {
		cents = append(cents, Centroid{CID: len(cents) + 1, Vec: pts[idx].Vec})
	}
	return cents, nil
}
