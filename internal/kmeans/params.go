package kmeans

import (
	"strings"

	"github.com/arahuja/madlib/internal/vector"
)

// InitMethod selects the centroid-seeding strategy.
type InitMethod int

const (
	InitRandom InitMethod = iota
	InitKMeansPP
	InitCanopy
	// initProvided is selected implicitly when an initial-centroid relation
	// is configured; it is not a recognized method name.
	initProvided
)

// ParseInitMethod resolves a seeding method name.
func ParseInitMethod(name string) (InitMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "random", "":
		return InitRandom, nil
	case "kmeans++", "kmeanspp":
		return InitKMeansPP, nil
	case "canopy":
		return InitCanopy, nil
	default:
		return 0, &ErrUnknownInitMethod{Name: name}
	}
}

func (m InitMethod) String() string {
	switch m {
	case InitRandom:
		return "random"
	case InitKMeansPP:
		return "kmeans++"
	case InitCanopy:
		return "canopy"
	case initProvided:
		return "provided"
	default:
		return "unknown"
	}
}

// Defaults for absent parameters. MaxIter and ConvThreshold take their
// default when absent or non-positive. DefaultSampleFrac is not applied to
// Params: with no sample_frac the k-means++ seeder targets floor(n/100)
// points, and a negative sample_frac is rejected by Validate.
const (
	DefaultMaxIter       = 20
	DefaultConvThreshold = 0.001
	DefaultSampleFrac    = 0.01
)

// Params configures one clustering run.
type Params struct {
	SrcRelation string
	SrcColData  string
	SrcColID    string // synthesized 1..N when empty

	// InitRelation/InitColumn name an explicit initial-centroid set; when
	// both are set, seeding is skipped and K is derived from the relation.
	InitRelation string
	InitColumn   string

	InitMethod InitMethod
	K          int
	SampleFrac float64 // k-means++ sub-sample fraction in (0,1]; 0 = default
	T1, T2     float64 // canopy thresholds; estimated when 0

	Metric        vector.Metric
	MaxIter       int
	ConvThreshold float64

	// Evaluate computes cost and simplified silhouette after convergence.
	// Absent means true.
	Evaluate *bool

	OutPoints    string
	OutCentroids string

	Verbose bool
	Seed    int64
}

func (p *Params) centroidsProvided() bool {
	return p.InitRelation != "" && p.InitColumn != ""
}

func (p *Params) evaluate() bool {
	return p.Evaluate == nil || *p.Evaluate
}

func (p *Params) applyDefaults() {
	if p.MaxIter <= 0 {
		p.MaxIter = DefaultMaxIter
	}
	if p.ConvThreshold <= 0 {
		p.ConvThreshold = DefaultConvThreshold
	}
}

// Validate checks everything that can be rejected before touching storage.
func (p *Params) Validate() error {
	if p.SrcRelation == "" {
		return newInvalidInput("src_relation is required")
	}
	if p.SrcColData == "" {
		return newInvalidInput("src_col_data is required")
	}
	if p.OutPoints == "" || p.OutCentroids == "" {
		return newInvalidInput("out_points and out_centroids are required")
	}
	if p.OutPoints == p.OutCentroids {
		return newInvalidInput("out_points and out_centroids must differ")
	}
	if !p.centroidsProvided() && p.InitMethod != InitCanopy && p.K <= 0 {
		return newInvalidInput("k must be positive")
	}
	if p.SampleFrac != 0 && (p.SampleFrac < 0 || p.SampleFrac > 1) {
		return newInvalidInput("sample_frac must be in (0,1]")
	}
	if p.T1 < 0 {
		return &ErrInvalidThreshold{Message: "t1 must be positive"}
	}
	if p.T2 < 0 {
		return &ErrInvalidThreshold{Message: "t2 must be positive"}
	}
	if p.T1 != 0 && p.T2 != 0 && p.T1 <= p.T2 {
		return &ErrInvalidThreshold{Message: "t1 must be greater than t2"}
	}
	return nil
}

// Result is the record returned for a completed run. Cost and Silhouette are
// nil when evaluation is disabled.
type Result struct {
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
