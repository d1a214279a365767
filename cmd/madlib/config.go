package main

import (
	"errors"
)

// Config validation errors
var (
	ErrInvalidListenAddr  = errors.New("listen_addr cannot be empty")
	ErrInvalidMetricsAddr = errors.New("metrics_addr cannot be empty")
	ErrInvalidLogFormat   = errors.New("log_format must be 'json' or 'text'")
	ErrInvalidLogLevel    = errors.New("log_level must be debug, info, warn, or error")
	ErrMissingSource      = errors.New("src_relation and src_col_data are required for a one-shot run")
	ErrMissingOutputs     = errors.New("out_points and out_centroids are required for a one-shot run")
)

// Config is the binary configuration, read from MADLIB_* environment
// variables (and an optional .env file).
type Config struct {
	DBPath      string `envconfig:"DB_PATH" default:""`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:"0.0.0.0:3000"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:"0.0.0.0:9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Optional parquet ingest before the run or before serving.
	ParquetPath     string `envconfig:"PARQUET_PATH"`
	ParquetRelation string `envconfig:"PARQUET_RELATION" default:"points"`

	// One-shot run parameters.
	SrcRelation   string  `envconfig:"SRC_RELATION"`
	SrcColData    string  `envconfig:"SRC_COL_DATA" default:"coords"`
	SrcColID      string  `envconfig:"SRC_COL_ID"`
	InitCsetRel   string  `envconfig:"INIT_CSET_REL"`
	InitCsetCol   string  `envconfig:"INIT_CSET_COL"`
	InitMethod    string  `envconfig:"INIT_METHOD" default:"random"`
	SampleFrac    float64 `envconfig:"SAMPLE_FRAC"`
	K             int     `envconfig:"K"`
	T1            float64 `envconfig:"T1"`
	T2            float64 `envconfig:"T2"`
	DistMetric    string  `envconfig:"DIST_METRIC" default:"l2norm"`
	MaxIter       int     `envconfig:"MAX_ITER"`
	ConvThreshold float64 `envconfig:"CONV_THRESHOLD"`
	Evaluate      bool    `envconfig:"EVALUATE" default:"true"`
	OutPoints     string  `envconfig:"OUT_POINTS" default:"kmeans_points"`
	OutCentroids  string  `envconfig:"OUT_CENTROIDS" default:"kmeans_centroids"`
	Verbose       bool    `envconfig:"VERBOSE"`
	Seed          int64   `envconfig:"SEED"`
}

// ValidateConfig validates the configuration. serve selects the long-running
// Flight server mode, which does not need one-shot run parameters.
func ValidateConfig(cfg *Config, serve bool) error {
	if cfg.ListenAddr == "" {
		return ErrInvalidListenAddr
	}
	if cfg.MetricsAddr == "" {
		return ErrInvalidMetricsAddr
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return ErrInvalidLogFormat
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	if serve {
		return nil
	}
	if cfg.SrcRelation == "" || cfg.SrcColData == "" {
		return ErrMissingSource
	}
	if cfg.OutPoints == "" || cfg.OutCentroids == "" {
		return ErrMissingOutputs
	}
	return nil
}
