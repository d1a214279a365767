// Package client is a thin Arrow Flight client for the clustering server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ClusterRequest mirrors the server's "cluster" action body. Field names
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

// ClusterResult is the run record returned for a completed job.
type ClusterResult struct {
	SrcRelation  string    `json:"src_relation"`
	KeptPoints   int       `json:"kept_points"`
	InitMethod   string    `json:"init_method"`
	K            int       `json:"k"`
	Metric       string    `json:"dist_metric"`
	Iterations   int       `json:"iterations_run"`
	Cost         *float64  `json:"cost"`
	Silhouette   *float64  `json:"silhouette"`
	OutPoints    string    `json:"out_points"`
	OutCentroids string    `json:"out_centroids"`
	Convergence  []float64 `json:"convergence_log"`
}

// Client wraps a Flight connection to one clustering server.
type Client struct {
	fc flight.Client
}

// New dials the server at addr.
func New(addr string) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(1024 * 1024 * 100),
			grpc.MaxCallSendMsgSize(1024 * 1024 * 100),
		),
	}
	fc, err := flight.NewClientWithMiddleware(addr, nil, nil, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &Client{fc: fc}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.fc.Close()
}

// Cluster runs a clustering job and returns its run record.
func (c *Client) Cluster(ctx context.Context, req ClusterRequest) (*ClusterResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	stream, err := c.fc.DoAction(ctx, &flight.Action{Type: "cluster", Body: body})
	if err != nil {
		return nil, err
	}
	result, err := stream.Recv()
	if err != nil {
		return nil, fmt.Errorf("cluster action failed: %w", err)
	}
	var res ClusterResult
	if err := json.Unmarshal(result.Body, &res); err != nil {
		return nil, fmt.Errorf("malformed cluster result: %w", err)
	}
	return &res, nil
}

// FetchTable pulls an output table as Arrow record batches. The caller owns
// releasing the returned records.
func (c *Client) FetchTable(ctx context.Context, name string) ([]arrow.Record, error) {
	stream, err := c.fc.DoGet(ctx, &flight.Ticket{Ticket: []byte(name)})
	if err != nil {
		return nil, err
	}
	rdr, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, fmt.Errorf("opening record stream for %s: %w", name, err)
	}
	defer rdr.Release()

	var recs []arrow.Record
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := rdr.Err(); err != nil && err != io.EOF {
		for _, r := range recs {
			r.Release()
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return recs, nil
}
