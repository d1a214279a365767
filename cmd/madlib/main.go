package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/arahuja/madlib/internal/kmeans"
	"github.com/arahuja/madlib/internal/logging"
	"github.com/arahuja/madlib/internal/server"
	"github.com/arahuja/madlib/internal/store"
	"github.com/arahuja/madlib/internal/vector"
)

func main() {
	serve := flag.Bool("serve", false, "Serve the clustering engine over Arrow Flight instead of running one job")
	flag.Parse()

	// .env is optional; real environments set MADLIB_* directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("MADLIB", &cfg); err != nil {
		fatal("failed to process configuration", err)
	}
	if err := ValidateConfig(&cfg, *serve); err != nil {
		fatal("invalid configuration", err)
	}

	logger, err := logging.New(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Output: os.Stderr})
	if err != nil {
		fatal("failed to build logger", err)
	}

	go func() {
		logger.Info("starting metrics server", "address", cfg.MetricsAddr)
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	db, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		fatal("failed to open database", err)
	}
	defer db.Close()

	ctx := context.Background()

	if cfg.ParquetPath != "" {
		if _, err := db.IngestParquet(ctx, cfg.ParquetPath, cfg.ParquetRelation); err != nil {
			fatal("parquet ingest failed", err)
		}
	}

	if *serve {
		lis, err := net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			fatal("failed to listen", err)
		}
		logger.Info("clustering Flight server starting", "address", cfg.ListenAddr)

		grpcServer := grpc.NewServer()
		flight.RegisterFlightServiceServer(grpcServer, server.New(db, logger))
		if err := grpcServer.Serve(lis); err != nil {
			fatal("failed to serve", err)
		}
		return
	}

	params, err := buildParams(&cfg)
	if err != nil {
		fatal("invalid run parameters", err)
	}

	res, err := kmeans.New(db, logger).Run(ctx, params)
	if err != nil {
		fatal("clustering run failed", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fatal("failed to encode result", err)
	}
}

// buildParams maps the binary configuration onto engine parameters.
func buildParams(cfg *Config) (kmeans.Params, error) {
	metric, err := vector.ParseMetric(cfg.DistMetric)
	if err != nil {
		return kmeans.Params{}, err
	}
	method, err := kmeans.ParseInitMethod(cfg.InitMethod)
	if err != nil {
		return kmeans.Params{}, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	evaluate := cfg.Evaluate
	return kmeans.Params{
		SrcRelation:   cfg.SrcRelation,
		SrcColData:    cfg.SrcColData,
		SrcColID:      cfg.SrcColID,
		InitRelation:  cfg.InitCsetRel,
		InitColumn:    cfg.InitCsetCol,
		InitMethod:    method,
		SampleFrac:    cfg.SampleFrac,
		K:             cfg.K,
		T1:            cfg.T1,
		T2:            cfg.T2,
		Metric:        metric,
		MaxIter:       cfg.MaxIter,
		ConvThreshold: cfg.ConvThreshold,
		Evaluate:      &evaluate,
		OutPoints:     cfg.OutPoints,
		OutCentroids:  cfg.OutCentroids,
		Verbose:       cfg.Verbose,
		Seed:          seed,
	}, nil
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
