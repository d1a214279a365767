// Package kmeans implements the clustering engine: ingest and validation,
// the three centroid-seeding strategies (uniform random, k-means++,
// canopy), the Lloyd iteration loop, and model evaluation. Storage access
// goes through the Storage contract; the DuckDB implementation lives in
// internal/store.
package kmeans

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/arahuja/madlib/internal/metrics"
)

// Engine runs clustering jobs against a storage substrate. All run state is
// scoped to a single Run call; an Engine is safe for concurrent use.
type Engine struct {
	store  Storage
	logger *slog.Logger
}

// New creates an engine. A nil logger discards all output.
func New(store Storage, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{store: store, logger: logger}
}

// Run executes one clustering job to completion and returns the run record.
// Output tables are created up front so name collisions fail before any
// work; a failure in a later phase leaves them in their partial state.
func (e *Engine) Run(ctx context.Context, p Params) (res *Result, err error) {
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RunsTotal.WithLabelValues(p.InitMethod.String(), status).Inc()
	}()

	progress := e.logger.Debug
	if p.Verbose {
		progress = e.logger.Info
	}

	if err := e.createOutputs(ctx, &p); err != nil {
		return nil, err
	}

	pts, original, dim, err := e.ingest(ctx, &p)
	if err != nil {
		return nil, err
	}
	metrics.PointsIngested.WithLabelValues("kept").Add(float64(len(pts)))
	metrics.PointsIngested.WithLabelValues("dropped").Add(float64(original - len(pts)))
	progress("point set ready", "kept", len(pts), "dropped", original-len(pts), "dimension", dim)

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	seedStart := time.Now()
	cents, method, err := e.seed(ctx, &p, pts)
	if err != nil {
		return nil, err
	}
	metrics.RunDurationSeconds.WithLabelValues("seed").Observe(time.Since(seedStart).Seconds())
	progress("seeding complete", "method", method.String(), "k", len(cents))

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	iterStart := time.Now()
	iterations, convLog, err := lloyd(ctx, pts, cents, p.Metric, p.MaxIter, p.ConvThreshold, progress)
	if err != nil {
		return nil, err
	}
	metrics.RunDurationSeconds.WithLabelValues("iterate").Observe(time.Since(iterStart).Seconds())
	metrics.IterationsRun.Observe(float64(iterations))

	res = &Result{
		SrcRelation:  p.SrcRelation,
		KeptPoints:   len(pts),
		InitMethod:   method.String(),
		K:            len(cents),
		Metric:       p.Metric.String(),
		Iterations:   iterations,
		OutPoints:    p.OutPoints,
		OutCentroids: p.OutCentroids,
		Convergence:  convLog,
	}

	if p.evaluate() {
		evalStart := time.Now()
		cost, sil, err := evaluate(pts, cents, p.Metric)
		if err != nil {
			return nil, err
		}
		metrics.RunDurationSeconds.WithLabelValues("evaluate").Observe(time.Since(evalStart).Seconds())
		res.Cost = &cost
		res.Silhouette = &sil
	}

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	if err := e.store.WritePoints(ctx, p.OutPoints, pts); err != nil {
		return nil, fmt.Errorf("writing %s: %w", p.OutPoints, err)
	}
	if err := e.store.WriteCentroids(ctx, p.OutCentroids, cents); err != nil {
		return nil, fmt.Errorf("writing %s: %w", p.OutCentroids, err)
	}

	e.logger.Info("clustering run complete",
		"relation", p.SrcRelation,
		"init_method", res.InitMethod,
		"k", res.K,
		"metric", res.Metric,
		"iterations", res.Iterations,
		"kept_points", res.KeptPoints,
	)
	return res, nil
}

// createOutputs creates both output tables, failing early on collisions.
func (e *Engine) createOutputs(ctx context.Context, p *Params) error {
	for _, tbl := range []string{p.OutPoints, p.OutCentroids} {
		exists, err := e.store.TableExists(ctx, tbl)
		if err != nil {
			return err
		}
		if exists {
			return &ErrOutputExists{Table: tbl}
		}
	}
	if err := e.store.CreatePointsTable(ctx, p.OutPoints); err != nil {
		return err
	}
	return e.store.CreateCentroidsTable(ctx, p.OutCentroids)
}

// seed produces the initial centroid set. Explicit centroids win over any
// init method; canopy additionally records per-point membership.
func (e *Engine) seed(ctx context.Context, p *Params, pts []Point) ([]Centroid, InitMethod, error) {
	rng := rand.New(rand.NewSource(p.Seed))

	if p.centroidsProvided() {
		vecs, err := e.store.ScanCentroids(ctx, p.InitRelation, p.InitColumn)
		if err != nil {
			return nil, initProvided, err
		}
		if len(vecs) == 0 {
			return nil, initProvided, newInvalidInput("initial centroid relation %s is empty", p.InitRelation)
		}
		if len(pts) < len(vecs) {
			return nil, initProvided, &ErrInsufficientPoints{Kept: len(pts), Required: len(vecs)}
		}
		cents := make([]Centroid, len(vecs))
		for i, v := range vecs {
			if v.Dim() != pts[0].Vec.Dim() {
				return nil, initProvided, newInvalidInput(
					"initial centroids have dimension %d, points have %d", v.Dim(), pts[0].Vec.Dim())
			}
			cents[i] = Centroid{CID: i + 1, Vec: v}
		}
		return cents, initProvided, nil
	}

	switch p.InitMethod {
	case InitRandom:
		cents, err := seedRandom(rng, pts, p.K)
		return cents, InitRandom, err
	case InitKMeansPP:
		cents, err := seedKMeansPP(rng, pts, p.K, p.SampleFrac, p.Metric)
		return cents, InitKMeansPP, err
	case InitCanopy:
		t1, t2 := p.T1, p.T2
		if t1 == 0 || t2 == 0 {
			et1, et2, err := estimateThresholds(rng, pts, p.Metric)
			if err != nil {
				return nil, InitCanopy, err
			}
			if t1 == 0 {
				t1 = et1
			}
			if t2 == 0 {
				t2 = et2
			}
			if t1 <= t2 {
				return nil, InitCanopy, &ErrInvalidThreshold{Message: "t1 must be greater than t2"}
			}
		}
		cents, err := seedCanopy(pts, t1, t2, p.Metric)
		return cents, InitCanopy, err
	default:
		return nil, p.InitMethod, &ErrUnknownInitMethod{Name: p.InitMethod.String()}
	}
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}
