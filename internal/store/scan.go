package store

import (
	"context"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/arahuja/madlib/internal/kmeans"
	"github.com/arahuja/madlib/internal/sampling"
	"github.com/arahuja/madlib/internal/vector"
)

// ScanPoints reads (pid, coords) rows from a relation. When idCol is empty
// a dense 1..N pid is synthesized with row_number(). SQL-null coordinates
// come back as null vectors; null elements become NaN components. Ingest
// owns dropping them.
func (d *DB) ScanPoints(ctx context.Context, rel, idCol, vecCol string) ([]kmeans.Point, error) {
	pidExpr := "CAST(row_number() OVER () AS BIGINT)"
	if idCol != "" {
		pidExpr = fmt.Sprintf("CAST(%s AS BIGINT)", sampling.QuoteIdent(idCol))
	}
	query := fmt.Sprintf("SELECT %s AS pid, CAST(%s AS DOUBLE[]) AS coords FROM %s",
		pidExpr, sampling.QuoteIdent(vecCol), sampling.QuoteIdent(rel))

	rdr, cleanup, err := d.QueryArrow(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", rel, err)
	}
	defer cleanup()

	var pts []kmeans.Point
	for rdr.Next() {
		rec := rdr.Record()
		pids, ok := rec.Column(0).(*array.Int64)
		if !ok {
			return nil, fmt.Errorf("scanning %s: pid column is %s, want BIGINT", rel, rec.Column(0).DataType())
		}
		coords, err := listColumn(rec.Column(1))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", rel, err)
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			pts = append(pts, kmeans.Point{
				ID:  pids.Value(i),
				Vec: coords(i),
			})
		}
	}
	if err := rdr.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", rel, err)
	}
	return pts, nil
}

// ScanCentroids reads coordinate vectors from an explicit initial-centroid
// relation, in scan order.
func (d *DB) ScanCentroids(ctx context.Context, rel, vecCol string) ([]vector.Sparse, error) {
	query := fmt.Sprintf("SELECT CAST(%s AS DOUBLE[]) AS coords FROM %s",
		sampling.QuoteIdent(vecCol), sampling.QuoteIdent(rel))

	rdr, cleanup, err := d.QueryArrow(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", rel, err)
	}
	defer cleanup()

	var vecs []vector.Sparse
	for rdr.Next() {
		rec := rdr.Record()
		coords, err := listColumn(rec.Column(0))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", rel, err)
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			vecs = append(vecs, coords(i))
		}
	}
	if err := rdr.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", rel, err)
	}
	return vecs, nil
}

// CountRows returns the row count of a table.
func (d *DB) CountRows(ctx context.Context, name string) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx, "SELECT count(*) FROM "+sampling.QuoteIdent(name)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", name, err)
	}
	return count, nil
}

// listColumn adapts a LIST(DOUBLE) arrow column into a per-row sparse
// vector accessor.
func listColumn(col arrow.Array) (func(i int) vector.Sparse, error) {
	lst, ok := col.(*array.List)
	if !ok {
		return nil, fmt.Errorf("coords column is %s, want DOUBLE[]", col.DataType())
	}
	values, ok := lst.ListValues().(*array.Float64)
	if !ok {
		return nil, fmt.Errorf("coords elements are %s, want DOUBLE", lst.ListValues().DataType())
	}
	return func(i int) vector.Sparse {
		if lst.IsNull(i) {
			return vector.Sparse{}
		}
		start, end := lst.ValueOffsets(i)
		dense := make([]float64, 0, end-start)
		for j := start; j < end; j++ {
			if values.IsNull(int(j)) {
				dense = append(dense, math.NaN())
				continue
			}
			dense = append(dense, values.Value(int(j)))
		}
		return vector.FromDense(dense)
	}, nil
}
