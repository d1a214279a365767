package kmeans

import (
	"context"

	"github.com/arahuja/madlib/internal/vector"
)

// Point is one member of the working set. CID is the currently assigned
// centroid id (0 before the first assignment). Canopies restricts the
// assignment search to a candidate centroid subset; nil means all centroids.
type Point struct {
	ID       int64
	Vec      vector.Sparse
	CID      int
	Canopies []int
}

// Centroid is a cluster centre. CIDs are dense in [1, k], assigned in the
// order centroids are inserted by the seeder. Vec is never null: an orphan
// centroid keeps its previous position.
type Centroid struct {
	CID int
	Vec vector.Sparse
}

// Storage is the substrate contract the engine requires (scan, materialize,
// table lifecycle). The DuckDB-backed implementation lives in
// internal/store; tests substitute an in-memory one.
type Storage interface {
	// ScanPoints reads the source relation, synthesizing dense 1..N ids when
	// idCol is empty. SQL-null coordinate rows come back as null vectors and
	// are dropped by ingest, not by the scan.
	ScanPoints(ctx context.Context, rel, idCol, vecCol string) ([]Point, error)

	// ScanCentroids reads an explicit initial-centroid relation.
	ScanCentroids(ctx context.Context, rel, vecCol string) ([]vector.Sparse, error)

	TableExists(ctx context.Context, name string) (bool, error)
	CreatePointsTable(ctx context.Context, name string) error
	CreateCentroidsTable(ctx context.Context, name string) error
	WritePoints(ctx context.Context, name string, pts []Point) error
	WriteCentroids(ctx context.Context, name string, cents []Centroid) error
	TruncateTable(ctx context.Context, name string) error
	DropTable(ctx context.Context, name string) error
}
