package kmeans

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/arahuja/madlib/internal/metrics"
	"github.com/arahuja/madlib/internal/vector"
)

// lloyd iterates assignment and centroid refresh until the reassignment
// fraction drops below convThreshold or maxIter is reached. Each phase is
// data-parallel over disjoint point partitions with a barrier between
// phases; centroids are mutated only between phases. Every iteration's
// delta is recorded; the first is 1.0 since all points start unassigned.
func lloyd(ctx context.Context, pts []Point, cents []Centroid, m vector.Metric,
	maxIter int, convThreshold float64, progress func(msg string, args ...any)) (iterations int, convLog []float64, err error) {

	n := len(pts)
	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	// byCID[cid-1] is the centroid snapshot consulted during assignment.
	byCID := make([]vector.Sparse, len(cents))

	for iter := 1; iter <= maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return iter - 1, convLog, fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		for _, c := range cents {
			byCID[c.CID-1] = c.Vec
		}

		// Assignment phase: new cids land in a separate buffer so the
		// previous iteration's assignments stay readable for the delta.
		next := make([]int, n)
		changed := make([]int, workers)
		aggs := make([][]*vector.Aggregator, workers)

		g, gctx := errgroup.WithContext(ctx)
		chunk := (n + workers - 1) / workers
		for w := 0; w < workers; w++ {
			w := w
			lo, hi := w*chunk, (w+1)*chunk
			if hi > n {
				hi = n
			}
			if lo >= hi {
				continue
			}
			g.Go(func() error {
				local := make([]*vector.Aggregator, len(cents))
				for i := lo; i < hi; i++ {
					if i%1024 == 0 && gctx.Err() != nil {
						return gctx.Err()
					}
					cid, err := nearestCentroid(pts[i], byCID, m)
					if err != nil {
						return err
					}
					next[i] = cid
					if cid != pts[i].CID {
						changed[w]++
					}
					agg := local[cid-1]
					if agg == nil {
						agg = vector.NewAggregator(m, pts[i].Vec.Dim())
						local[cid-1] = agg
					}
					agg.Add(pts[i].Vec)
				}
				aggs[w] = local
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			if ctx.Err() != nil {
				return iter - 1, convLog, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			}
			return iter - 1, convLog, err
		}

		// Combine phase: merge per-worker aggregates and refresh centroids.
		// An orphan centroid keeps its previous position, never null.
		for ci := range cents {
			var merged *vector.Aggregator
			for w := range aggs {
				if aggs[w] == nil || aggs[w][ci] == nil {
					continue
				}
				if merged == nil {
					merged = aggs[w][ci]
				} else {
					merged.Merge(aggs[w][ci])
				}
			}
			if merged != nil {
				if mean, ok := merged.Mean(); ok {
					cents[ci].Vec = mean
				}
			}
		}

		totalChanged := 0
		for _, c := range changed {
			totalChanged += c
		}
		for i := range pts {
			pts[i].CID = next[i]
		}

		delta := float64(totalChanged) / float64(n)
		convLog = append(convLog, delta)
		iterations = iter
		metrics.ReassignmentFraction.Observe(delta)

		progress("iteration complete",
			"iteration", iter,
			"reassigned", totalChanged,
			"delta", delta,
		)

		if delta < convThreshold {
			break
		}
	}
	return iterations, convLog, nil
}

// nearestCentroid returns the argmin centroid id for p, restricted to
// p.Canopies when set. Ties resolve to the lowest cid.
func nearestCentroid(p Point, byCID []vector.Sparse, m vector.Metric) (int, error) {
	best, bestDist := 0, math.MaxFloat64
	if p.Canopies != nil {
		for _, cid := range p.Canopies {
			d, err := m.Distance(p.Vec, byCID[cid-1])
			if err != nil {
				return 0, err
			}
			if d < bestDist || (d == bestDist && cid < best) {
				best, bestDist = cid, d
			}
		}
	} else {
		for ci := range byCID {
			d, err := m.Distance(p.Vec, byCID[ci])
			if err != nil {
				return 0, err
			}
			if d < bestDist {
				best, bestDist = ci+1, d
			}
		}
	}
	return best, nil
}
