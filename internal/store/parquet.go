package store

import (
	"context"
	"fmt"

	duckdb "github.com/marcboeker/go-duckdb"
	"github.com/parquet-go/parquet-go"

	"github.com/arahuja/madlib/internal/sampling"
)

// parquetPoint is the row shape expected from an ingest file.
type parquetPoint struct {
	PID    int64     `parquet:"pid"`
	Coords []float64 `parquet:"coords"`
}

// IngestParquet loads a parquet file of (pid, coords) rows into a new
// relation, making file-born point sets clusterable like any other table.
func (d *DB) IngestParquet(ctx context.Context, path, rel string) (int, error) {
	rows, err := parquet.ReadFile[parquetPoint](path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := d.Exec(ctx, fmt.Sprintf(
		"CREATE TABLE %s (pid BIGINT, coords DOUBLE[])", sampling.QuoteIdent(rel))); err != nil {
		return 0, fmt.Errorf("creating %s: %w", rel, err)
	}

	err = d.withAppender(ctx, rel, func(app *duckdb.Appender) error {
		for _, r := range rows {
			if err := app.AppendRow(r.PID, r.Coords); err != nil {
				return fmt.Errorf("appending pid %d: %w", r.PID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	d.logger.Info("parquet ingest complete", "path", path, "relation", rel, "rows", len(rows))
	return len(rows), nil
}
