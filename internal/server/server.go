// Package server exposes the clustering engine over Arrow Flight: DoAction
// runs a clustering job, DoGet streams an output table as record batches.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/arahuja/madlib/internal/kmeans"
	"github.com/arahuja/madlib/internal/metrics"
	"github.com/arahuja/madlib/internal/sampling"
	"github.com/arahuja/madlib/internal/store"
	"github.com/arahuja/madlib/internal/vector"
)

// Server serves clustering jobs and output-table fetches.
type Server struct {
	flight.BaseFlightServer
	db     *store.DB
	engine *kmeans.Engine
	logger *slog.Logger
}

// New creates a Flight server around one database.
func New(db *store.DB, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		db:     db,
		engine: kmeans.New(db, logger),
		logger: logger,
	}
}

// ClusterRequest is the JSON body of the "cluster" action. Field names
// match the engine's option names.
type ClusterRequest struct {
	SrcRelation   string  `json:"src_relation"`
	SrcColData    string  `json:"src_col_data"`
	SrcColID      string  `json:"src_col_id,omitempty"`
	InitCsetRel   string  `json:"init_cset_rel,omitempty"`
	InitCsetCol   string  `json:"init_cset_col,omitempty"`
	InitMethod    string  `json:"init_method,omitempty"`
	SampleFrac    float64 `json:"sample_frac,omitempty"`
	K             int     `json:"k,omitempty"`
	T1            float64 `json:"t1,omitempty"`
	T2            float64 `json:"t2,omitempty"`
	DistMetric    string  `json:"dist_metric,omitempty"`
	MaxIter       int     `json:"max_iter,omitempty"`
	ConvThreshold float64 `json:"conv_threshold,omitempty"`
	Evaluate      *bool   `json:"evaluate,omitempty"`
	OutPoints     string  `json:"out_points"`
	OutCentroids  string  `json:"out_centroids"`
	Verbose       bool    `json:"verbose,omitempty"`
	Seed          int64   `json:"seed,omitempty"`
}

// Params converts the request into engine parameters.
func (r *ClusterRequest) Params() (kmeans.Params, error) {
	metric, err := vector.ParseMetric(r.DistMetric)
	if err != nil {
		return kmeans.Params{}, err
	}
	method, err := kmeans.ParseInitMethod(r.InitMethod)
	if err != nil {
		return kmeans.Params{}, err
	}
	return kmeans.Params{
		SrcRelation:   r.SrcRelation,
		SrcColData:    r.SrcColData,
		SrcColID:      r.SrcColID,
		InitRelation:  r.InitCsetRel,
		InitColumn:    r.InitCsetCol,
		InitMethod:    method,
		SampleFrac:    r.SampleFrac,
		K:             r.K,
		T1:            r.T1,
		T2:            r.T2,
		Metric:        metric,
		MaxIter:       r.MaxIter,
		ConvThreshold: r.ConvThreshold,
		Evaluate:      r.Evaluate,
		OutPoints:     r.OutPoints,
		OutCentroids:  r.OutCentroids,
		Verbose:       r.Verbose,
		Seed:          r.Seed,
	}, nil
}

// DoAction handles engine actions. "cluster" runs a job and returns the run
// record as JSON.
func (s *Server) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	switch action.Type {
	case "cluster":
		start := time.Now()
		var req ClusterRequest
		if err := json.Unmarshal(action.Body, &req); err != nil {
			return status.Errorf(codes.InvalidArgument, "invalid json body: %v", err)
		}
		params, err := req.Params()
		if err != nil {
			return toStatus(err)
		}

		res, err := s.engine.Run(stream.Context(), params)
		if err != nil {
			s.logger.Error("cluster action failed", "relation", req.SrcRelation, "error", err)
			return toStatus(err)
		}
		metrics.RunDurationSeconds.WithLabelValues("total").Observe(time.Since(start).Seconds())

		body, err := json.Marshal(res)
		if err != nil {
			return status.Errorf(codes.Internal, "failed to serialize result: %v", err)
		}
		return stream.Send(&flight.Result{Body: body})

	case "drop-table":
		name := string(action.Body)
		if name == "" {
			return status.Error(codes.InvalidArgument, "empty table name")
		}
		if err := s.db.DropTable(stream.Context(), name); err != nil {
			return status.Errorf(codes.Internal, "drop failed: %v", err)
		}
		return stream.Send(&flight.Result{Body: []byte("dropped")})

	default:
		return status.Errorf(codes.Unimplemented, "unknown action: %s", action.Type)
	}
}

// GetFlightInfo reports the row count of a table named by the descriptor
// path.
func (s *Server) GetFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	if len(desc.Path) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty path")
	}
	name := desc.Path[0]
	exists, err := s.db.TableExists(ctx, name)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	if !exists {
		return nil, status.Errorf(codes.NotFound, "table %s not found", name)
	}
	count, err := s.db.CountRows(ctx, name)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	return &flight.FlightInfo{
		FlightDescriptor: desc,
		TotalRecords:     count,
	}, nil
}

// DoGet streams a table (the ticket is its name) as Arrow record batches.
func (s *Server) DoGet(tkt *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	name := string(tkt.Ticket)
	if name == "" {
		return status.Error(codes.InvalidArgument, "empty ticket")
	}
	ctx := stream.Context()

	exists, err := s.db.TableExists(ctx, name)
	if err != nil {
		return status.Errorf(codes.Internal, "%v", err)
	}
	if !exists {
		return status.Errorf(codes.NotFound, "table %s not found", name)
	}

	rdr, cleanup, err := s.db.QueryArrow(ctx, "SELECT * FROM "+sampling.QuoteIdent(name))
	if err != nil {
		return status.Errorf(codes.Internal, "%v", err)
	}
	defer cleanup()

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(rdr.Schema()))
	defer writer.Close()

	rows := int64(0)
	for rdr.Next() {
		rec := rdr.Record()
		if err := writer.Write(rec); err != nil {
			return status.Errorf(codes.Internal, "streaming %s: %v", name, err)
		}
		rows += rec.NumRows()
	}
	if err := rdr.Err(); err != nil {
		return status.Errorf(codes.Internal, "reading %s: %v", name, err)
	}
	s.logger.Debug("table streamed", "table", name, "rows", rows)
	return nil
}

// toStatus maps engine errors onto gRPC status codes.
func toStatus(err error) error {
	var (
		invalidInput  *kmeans.ErrInvalidInput
		outputExists  *kmeans.ErrOutputExists
		insufficient  *kmeans.ErrInsufficientPoints
		sampleSmall   *kmeans.ErrSampleTooSmall
		badThreshold  *kmeans.ErrInvalidThreshold
		unknownMetric *vector.ErrUnknownMetric
		unknownInit   *kmeans.ErrUnknownInitMethod
	)
	switch {
	case errors.As(err, &invalidInput),
		errors.As(err, &sampleSmall),
		errors.As(err, &badThreshold),
		errors.As(err, &unknownMetric),
		errors.As(err, &unknownInit):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &outputExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.As(err, &insufficient),
		errors.Is(err, kmeans.ErrThresholdUnavailable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, kmeans.ErrCancelled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("clustering failed: %v", err))
	}
}
