package kmeans

import (
	"context"
	"sort"
)

// ingest builds the working point set: scan the source relation, drop rows
// whose coordinates are null (SQL null, or a NaN or infinite component), and verify all
// survivors share one dimension. Points come back sorted by pid, which the
// weighted seeding draw relies on.
func (e *Engine) ingest(ctx context.Context, p *Params) (pts []Point, original int, dim int, err error) {
	scanned, err := e.store.ScanPoints(ctx, p.SrcRelation, p.SrcColID, p.SrcColData)
	if err != nil {
		return nil, 0, 0, err
	}
	original = len(scanned)
	if original == 0 {
		return nil, 0, 0, newInvalidInput("source relation %s is empty", p.SrcRelation)
	}

	pts = scanned[:0]
	for _, pt := range scanned {
		if pt.Vec.IsNull() {
			continue
		}
		pts = append(pts, pt)
	}
	if len(pts) == 0 {
		return nil, 0, 0, newInvalidInput("no points with non-null coordinates in %s", p.SrcRelation)
	}

	minDim, maxDim := pts[0].Vec.Dim(), pts[0].Vec.Dim()
	for _, pt := range pts[1:] {
		d := pt.Vec.Dim()
		if d < minDim {
			minDim = d
		}
		if d > maxDim {
			maxDim = d
		}
	}
	if minDim != maxDim {
		return nil, 0, 0, newInvalidInput("points must have the same dimensions")
	}

	sort.Slice(pts, func(i, j int) bool { return pts[i].ID < pts[j].ID })
	for i := 1; i < len(pts); i++ {
		if pts[i].ID == pts[i-1].ID {
			return nil, 0, 0, newInvalidInput("duplicate point id %d", pts[i].ID)
		}
	}

	e.logger.Debug("ingest complete",
		"relation", p.SrcRelation,
		"original", original,
		"kept", len(pts),
		"dropped", original-len(pts),
		"dimension", minDim,
	)
	return pts, original, minDim, nil
}
