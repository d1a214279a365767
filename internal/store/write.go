package store

import (
	"context"
	"fmt"

	duckdb "github.com/marcboeker/go-duckdb"

	"github.com/arahuja/madlib/internal/kmeans"
)

// WritePoints bulk-appends the final assignment (pid, coords, cid).
func (d *DB) WritePoints(ctx context.Context, name string, pts []kmeans.Point) error {
	err := d.withAppender(ctx, name, func(app *duckdb.Appender) error {
		for _, p := range pts {
			if err := app.AppendRow(p.ID, p.Vec.Dense(), int32(p.CID)); err != nil {
				return fmt.Errorf("appending pid %d: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	d.logger.Debug("points written", "table", name, "rows", len(pts))
	return nil
}

// WriteCentroids bulk-appends the final centroid set (cid, coords).
func (d *DB) WriteCentroids(ctx context.Context, name string, cents []kmeans.Centroid) error {
	err := d.withAppender(ctx, name, func(app *duckdb.Appender) error {
		for _, c := range cents {
			if err := app.AppendRow(int32(c.CID), c.Vec.Dense()); err != nil {
				return fmt.Errorf("appending cid %d: %w", c.CID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	d.logger.Debug("centroids written", "table", name, "rows", len(cents))
	return nil
}
