// Package sampling holds the probabilistic row-sampling bound and SQL
// identifier helpers shared by the seeders and the storage layer.
package sampling

import (
	"math"
	"math/rand"
	"strings"
)

// RowProbability returns the Chernoff-derived lower bound p such that a
// Bernoulli filter with acceptance probability p over n rows yields at least
// s rows with probability >= 1 - 1e-6:
//
//	p(s, n) = (s + 14 + sqrt(196 + 28*s)) / n
//
// The result is clamped to 1. Callers cap the accepted rows at s afterwards.
func RowProbability(s, n int) float64 {
	if n <= 0 {
		return 1
	}
	fs := float64(s)
	p := (fs + 14 + math.Sqrt(196+28*fs)) / float64(n)
	if p > 1 {
		return 1
	}
	return p
}

// Indices draws at least target indices from [0, n) using a Bernoulli filter
// at RowProbability(target, n), capped at target. Indices accepted in one
// pass are in index order; repeated passes cover the (probability <= 1e-6
// per pass) shortfall case and append their picks after the earlier ones.
// When target >= n every index is returned.
func Indices(rng *rand.Rand, n, target int) []int {
	if target >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	p := RowProbability(target, n)
	picked := make([]int, 0, target)
	taken := make(map[int]struct{}, target)
	for len(picked) < target {
		for i := 0; i < n && len(picked) < target; i++ {
			if _, ok := taken[i]; ok {
				continue
			}
			if rng.Float64() < p {
				picked = append(picked, i)
				taken[i] = struct{}{}
			}
		}
	}
	return picked
}

// QuoteIdent quotes a SQL identifier for DuckDB, doubling embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
