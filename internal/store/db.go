// Package store implements the storage substrate the engine requires:
// relation scans with Arrow result readers, id synthesis via window
// functions, table lifecycle, and bulk appender writes, all on DuckDB.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/array"
	duckdb "github.com/marcboeker/go-duckdb"

	"github.com/arahuja/madlib/internal/sampling"
)

// DB wraps a DuckDB database handle.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) a DuckDB database at path. An empty path
// opens an in-memory database.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	return &DB{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Exec runs a statement without results.
func (d *DB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := d.db.ExecContext(ctx, query, args...)
	return err
}

// TableExists reports whether a table with the given name is present.
func (d *DB) TableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		"SELECT count(*) FROM information_schema.tables WHERE table_name = ?", name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return count > 0, nil
}

// CreatePointsTable creates an output point table (pid, coords, cid).
func (d *DB) CreatePointsTable(ctx context.Context, name string) error {
	return d.Exec(ctx, fmt.Sprintf(
		"CREATE TABLE %s (pid BIGINT, coords DOUBLE[], cid INTEGER)", sampling.QuoteIdent(name)))
}

// CreateCentroidsTable creates an output centroid table (cid, coords).
func (d *DB) CreateCentroidsTable(ctx context.Context, name string) error {
	return d.Exec(ctx, fmt.Sprintf(
		"CREATE TABLE %s (cid INTEGER, coords DOUBLE[])", sampling.QuoteIdent(name)))
}

// TruncateTable removes all rows from a table.
func (d *DB) TruncateTable(ctx context.Context, name string) error {
	return d.Exec(ctx, "TRUNCATE "+sampling.QuoteIdent(name))
}

// DropTable drops a table if present.
func (d *DB) DropTable(ctx context.Context, name string) error {
	return d.Exec(ctx, "DROP TABLE IF EXISTS "+sampling.QuoteIdent(name))
}

// QueryArrow executes a query on a dedicated connection and returns its
// results as an Arrow record reader plus a cleanup function the caller must
// invoke when done.
func (d *DB) QueryArrow(ctx context.Context, query string) (array.RecordReader, func(), error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open conn: %w", err)
	}

	var ar *duckdb.Arrow
	err = conn.Raw(func(c any) error {
		dc, ok := c.(driver.Conn)
		if !ok {
			return fmt.Errorf("not a duckdb driver connection")
		}
		var aerr error
		ar, aerr = duckdb.NewArrowFromConn(dc)
		return aerr
	})
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to init arrow: %w", err)
	}

	rdr, err := ar.QueryContext(ctx, query)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("query execution failed: %w", err)
	}

	cleanup := func() {
		rdr.Release()
		_ = conn.Close()
	}
	return rdr, cleanup, nil
}

// withAppender runs fn with a DuckDB appender for the given table on a raw
// connection, flushing and closing it afterwards.
func (d *DB) withAppender(ctx context.Context, table string, fn func(*duckdb.Appender) error) error {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to open conn: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(c any) error {
		dc, ok := c.(driver.Conn)
		if !ok {
			return fmt.Errorf("not a duckdb driver connection")
		}
		app, err := duckdb.NewAppenderFromConn(dc, "", table)
		if err != nil {
			return fmt.Errorf("creating appender for %s: %w", table, err)
		}
		if err := fn(app); err != nil {
			_ = app.Close()
			return err
		}
		return app.Close()
	})
}
