package kmeans

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arahuja/madlib/internal/vector"
)

// memStore is an in-memory Storage for engine tests.
type memStore struct {
	points    map[string][]Point
	centroids map[string][]vector.Sparse
	tables    map[string]bool

	outPoints    map[string][]Point
	outCentroids map[string][]Centroid
}

func newMemStore() *memStore {
	return &memStore{
		points:       map[string][]Point{},
		centroids:    map[string][]vector.Sparse{},
		tables:       map[string]bool{},
		outPoints:    map[string][]Point{},
		outCentroids: map[string][]Centroid{},
	}
}

func (m *memStore) ScanPoints(_ context.Context, rel, _, _ string) ([]Point, error) {
	src, ok := m.points[rel]
	if !ok {
		return nil, fmt.Errorf("relation %s not found", rel)
	}
	out := make([]Point, len(src))
	copy(out, src)
	return out, nil
}

func (m *memStore) ScanCentroids(_ context.Context, rel, _ string) ([]vector.Sparse, error) {
	src, ok := m.centroids[rel]
	if !ok {
		return nil, fmt.Errorf("relation %s not found", rel)
	}
	return src, nil
}

func (m *memStore) TableExists(_ context.Context, name string) (bool, error) {
	return m.tables[name], nil
}

func (m *memStore) CreatePointsTable(_ context.Context, name string) error {
	if m.tables[name] {
		return fmt.Errorf("table %s already exists", name)
	}
	m.tables[name] = true
	return nil
}

func (m *memStore) CreateCentroidsTable(ctx context.Context, name string) error {
	return m.CreatePointsTable(ctx, name)
}

func (m *memStore) WritePoints(_ context.Context, name string, pts []Point) error {
	out := make([]Point, len(pts))
	copy(out, pts)
	m.outPoints[name] = out
	return nil
}

func (m *memStore) WriteCentroids(_ context.Context, name string, cents []Centroid) error {
	out := make([]Centroid, len(cents))
	copy(out, cents)
	m.outCentroids[name] = out
	return nil
}

func (m *memStore) TruncateTable(_ context.Context, name string) error {
	m.outPoints[name] = nil
	m.outCentroids[name] = nil
	return nil
}

func (m *memStore) DropTable(_ context.Context, name string) error {
	delete(m.tables, name)
	return nil
}

func (m *memStore) addPoints(rel string, coords [][]float64) {
	pts := make([]Point, len(coords))
	for i, c := range coords {
		pts[i] = Point{ID: int64(i + 1), Vec: vector.FromDense(c)}
	}
	m.points[rel] = pts
}

func baseParams(k int) Params {
	return Params{
		SrcRelation:  "src",
		SrcColData:   "coords",
		K:            k,
		Metric:       vector.L2Norm,
		OutPoints:    "out_points",
		OutCentroids: "out_centroids",
		Seed:         42,
	}
}

// checkInvariants verifies coverage and membership over the written output
// tables. Local optimality is exact only for converged runs: a run cut off
// by max_iter carries one iteration of hysteresis, so the argmin check is
// skipped there.
func checkInvariants(t *testing.T, st *memStore, p Params, kept int, res *Result) {
	t.Helper()
	outPts := st.outPoints[p.OutPoints]
	outCents := st.outCentroids[p.OutCentroids]

	require.Len(t, outPts, kept, "coverage: every surviving point appears exactly once")

	converged := len(res.Convergence) > 0 &&
		res.Convergence[len(res.Convergence)-1] < DefaultConvThreshold

	seen := map[int64]bool{}
	cids := map[int]vector.Sparse{}
	for _, c := range outCents {
		cids[c.CID] = c.Vec
	}
	for _, pt := range outPts {
		require.False(t, seen[pt.ID], "duplicate pid %d", pt.ID)
		seen[pt.ID] = true
		_, ok := cids[pt.CID]
		require.True(t, ok, "membership: cid %d of pid %d missing from centroids", pt.CID, pt.ID)

		if !converged {
			continue
		}
		own, err := p.Metric.Distance(pt.Vec, cids[pt.CID])
		require.NoError(t, err)
		candidates := pt.Canopies
		if candidates == nil {
			for cid := range cids {
				candidates = append(candidates, cid)
			}
		}
		for _, cid := range candidates {
			d, err := p.Metric.Distance(pt.Vec, cids[cid])
			require.NoError(t, err)
			assert.GreaterOrEqual(t, d+1e-9, own,
				"pid %d: centroid %d beats assigned %d", pt.ID, cid, pt.CID)
		}
	}
}

func TestRunRandomTwoClusters(t *testing.T) {
	st := newMemStore()
	st.addPoints("src", [][]float64{{0, 0}, {0, 1}, {10, 10}, {10, 11}})

	p := baseParams(2)
	res, err := New(st, nil).Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "src", res.SrcRelation)
	assert.Equal(t, 4, res.KeptPoints)
	assert.Equal(t, "random", res.InitMethod)
	assert.Equal(t, 2, res.K)
	assert.Equal(t, "l2norm", res.Metric)
	require.NotNil(t, res.Cost)
	require.NotNil(t, res.Silhouette)
	assert.Len(t, st.outCentroids["out_centroids"], 2)

	checkInvariants(t, st, p, 4, res)

	// Convergence log: head 1.0, tail below threshold or max_iter reached.
	require.NotEmpty(t, res.Convergence)
	assert.Equal(t, 1.0, res.Convergence[0])
	tail := res.Convergence[len(res.Convergence)-1]
	if tail >= DefaultConvThreshold {
		assert.Equal(t, DefaultMaxIter, res.Iterations)
	}
}

func TestRunProvidedCentroidsOrphan(t *testing.T) {
	st := newMemStore()
	st.addPoints("src", [][]float64{{0}, {1}, {10}, {11}})
	st.centroids["init"] = []vector.Sparse{
		vector.FromDense([]float64{0}),
		vector.FromDense([]float64{10}),
		vector.FromDense([]float64{100}),
	}

	p := baseParams(0)
	p.InitRelation = "init"
	p.InitColumn = "coords"

	res, err := New(st, nil).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "provided", res.InitMethod)
	assert.Equal(t, 3, res.K)

	cents := st.outCentroids["out_centroids"]
	require.Len(t, cents, 3)
	assert.Equal(t, 100.0, cents[2].Vec.At(0),
		"orphan centroid must keep its initial coordinates")
}

func TestRunRerunConvergesImmediately(t *testing.T) {
	st := newMemStore()
	st.addPoints("src", [][]float64{{0, 0}, {0, 1}, {10, 10}, {10, 11}})

	p := baseParams(2)
	res, err := New(st, nil).Run(context.Background(), p)
	require.NoError(t, err)

	// Feed the produced centroids back as the initial set.
	produced := st.outCentroids["out_centroids"]
	vecs := make([]vector.Sparse, len(produced))
	for i, c := range produced {
		vecs[i] = c.Vec
	}
	st.centroids["prev_centroids"] = vecs

	p2 := baseParams(0)
	p2.InitRelation = "prev_centroids"
	p2.InitColumn = "coords"
	p2.MaxIter = 1
	p2.OutPoints = "out_points2"
	p2.OutCentroids = "out_centroids2"

	res2, err := New(st, nil).Run(context.Background(), p2)
	require.NoError(t, err)
	assert.LessOrEqual(t, res2.Iterations, 1)
	assert.Equal(t, res.K, res2.K)
	checkInvariants(t, st, p2, 4, res2)

	// The fixed point does not move the centroids.
	for i, c := range st.outCentroids["out_centroids2"] {
		for d := 0; d < c.Vec.Dim(); d++ {
			assert.InDelta(t, produced[i].Vec.At(d), c.Vec.At(d), 1e-12)
		}
	}
}

func TestRunKEqualsNZeroCost(t *testing.T) {
	st := newMemStore()
	st.addPoints("src", [][]float64{{0}, {5}, {10}, {20}})

	p := baseParams(4)
	res, err := New(st, nil).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 4, res.K)
	require.NotNil(t, res.Cost)
	assert.InDelta(t, 0.0, *res.Cost, 1e-12, "k = n with distinct points is free")
	checkInvariants(t, st, p, 4, res)
}

func TestRunDropsNullVectors(t *testing.T) {
	coords := make([][]float64, 100)
	for i := range coords {
		coords[i] = []float64{float64(i), float64(i % 7)}
	}
	coords[10][0] = math.NaN()
	coords[50][1] = math.NaN()
	coords[99][0] = math.NaN()

	st := newMemStore()
	st.addPoints("src", coords)

	p := baseParams(3)
	res, err := New(st, nil).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 97, res.KeptPoints)

	dropped := map[int64]bool{11: true, 51: true, 100: true}
	for _, pt := range st.outPoints["out_points"] {
		assert.False(t, dropped[pt.ID], "dropped pid %d leaked into output", pt.ID)
	}
	checkInvariants(t, st, p, 97, res)
}

func TestRunCanopyEndToEnd(t *testing.T) {
	st := newMemStore()
	st.addPoints("src", [][]float64{{0}, {1}, {2}, {10}, {11}, {12}})

	p := baseParams(0)
	p.InitMethod = InitCanopy
	p.T1 = 3
	p.T2 = 0.5

	res, err := New(st, nil).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "canopy", res.InitMethod)
	assert.Equal(t, 6, res.K, "no centres within t2 of each other")
	assert.GreaterOrEqual(t, res.K, 1)

	for _, pt := range st.outPoints["out_points"] {
		require.NotEmpty(t, pt.Canopies, "canopy sets must be non-empty")
	}
	checkInvariants(t, st, p, 6, res)
}

func TestRunKMeansPP(t *testing.T) {
	st := newMemStore()
	st.addPoints("src", [][]float64{{0}, {0}, {0}, {0}, {100}})

	p := baseParams(2)
	p.InitMethod = InitKMeansPP

	res, err := New(st, nil).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "kmeans++", res.InitMethod)

	cents := st.outCentroids["out_centroids"]
	require.Len(t, cents, 2)
	vals := []float64{cents[0].Vec.At(0), cents[1].Vec.At(0)}
	assert.ElementsMatch(t, []float64{0, 100}, vals,
		"distance-squared weighting must separate the outlier")
}

func TestRunOutputExists(t *testing.T) {
	st := newMemStore()
	st.addPoints("src", [][]float64{{0}, {1}})
	st.tables["out_points"] = true

	_, err := New(st, nil).Run(context.Background(), baseParams(1))
	var exists *ErrOutputExists
	require.True(t, errors.As(err, &exists))
	assert.Equal(t, "out_points", exists.Table)
}

func TestRunEvaluateDisabled(t *testing.T) {
	st := newMemStore()
	st.addPoints("src", [][]float64{{0}, {1}, {10}})

	p := baseParams(2)
	off := false
	p.Evaluate = &off

	res, err := New(st, nil).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Nil(t, res.Cost)
	assert.Nil(t, res.Silhouette)
}

func TestRunInsufficientPointsForProvidedCentroids(t *testing.T) {
	st := newMemStore()
	st.addPoints("src", [][]float64{{0}, {1}})
	st.centroids["init"] = []vector.Sparse{
		vector.FromDense([]float64{0}),
		vector.FromDense([]float64{1}),
		vector.FromDense([]float64{2}),
	}

	p := baseParams(0)
	p.InitRelation = "init"
	p.InitColumn = "coords"

	_, err := New(st, nil).Run(context.Background(), p)
	var insufficient *ErrInsufficientPoints
	require.True(t, errors.As(err, &insufficient))
}

func TestRunCancelled(t *testing.T) {
	st := newMemStore()
	st.addPoints("src", [][]float64{{0}, {1}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(st, nil).Run(ctx, baseParams(1))
	require.ErrorIs(t, err, ErrCancelled)
}

func TestParamsValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"missing source", func(p *Params) { p.SrcRelation = "" }},
		{"missing data column", func(p *Params) { p.SrcColData = "" }},
		{"missing outputs", func(p *Params) { p.OutPoints = "" }},
		{"same outputs", func(p *Params) { p.OutCentroids = p.OutPoints }},
		{"k not positive", func(p *Params) { p.K = 0 }},
		{"sample frac above 1", func(p *Params) { p.SampleFrac = 1.5 }},
		{"negative t1", func(p *Params) { p.T1 = -1 }},
		{"t1 not above t2", func(p *Params) { p.T1 = 1; p.T2 = 2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := baseParams(2)
			tc.mutate(&p)
			p.applyDefaults()
			require.Error(t, p.Validate())
		})
	}

	good := baseParams(2)
	good.applyDefaults()
	require.NoError(t, good.Validate())
}

func TestParamsDefaults(t *testing.T) {
	p := baseParams(2)
	p.applyDefaults()
	assert.Equal(t, DefaultMaxIter, p.MaxIter)
	assert.Equal(t, DefaultConvThreshold, p.ConvThreshold)
	assert.True(t, p.evaluate(), "missing evaluate means true")

	p2 := baseParams(2)
	p2.MaxIter = -3
	p2.ConvThreshold = -1
	p2.applyDefaults()
	assert.Equal(t, DefaultMaxIter, p2.MaxIter)
	assert.Equal(t, DefaultConvThreshold, p2.ConvThreshold)
}

func TestParseInitMethod(t *testing.T) {
	for name, want := range map[string]InitMethod{
		"random":   InitRandom,
		"":         InitRandom,
		"kmeans++": InitKMeansPP,
		"canopy":   InitCanopy,
	} {
		got, err := ParseInitMethod(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseInitMethod("spectral")
	var unknown *ErrUnknownInitMethod
	require.True(t, errors.As(err, &unknown))
}
