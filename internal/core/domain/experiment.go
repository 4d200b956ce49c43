package domain

import "time"

// SweepParameter identifies a configuration parameter an ablation sweep
// can vary.
type SweepParameter string

// Sweepable parameters.
const (
	// SweepChunkSize varies the segmenter chunk size. Requires a full
	// re-segmentation and reindex per candidate value.
	SweepChunkSize SweepParameter = "chunk_size"

	// SweepTopK varies the retrieval K. Re-queries only; the index is
	// untouched.
	SweepTopK SweepParameter = "top_k"
)

// IsValid returns true if the parameter is sweepable.
func (p SweepParameter) IsValid() bool {
	switch p {
	case SweepChunkSize, SweepTopK:
		return true
	default:
		return false
	}
}

// RequiresReindex returns true if varying this parameter invalidates
// the index.
func (p SweepParameter) RequiresReindex() bool {
	return p == SweepChunkSize
}

// String returns the string representation.
func (p SweepParameter) String() string {
	return string(p)
}

// ExperimentConfig is the full parameter set for one experiment.
// Value object; never mutated after creation.
type ExperimentConfig struct {
	// Name labels the experiment (e.g. "chunk_size_500").
	Name string

	// Description explains what is being tested.
	Description string

	// ChunkSize is the segmenter chunk size in characters.
	ChunkSize int

	// ChunkOverlap is the segmenter overlap in characters.
	ChunkOverlap int

	// TopK is the retrieval K.
	TopK int

	// SimilarityThreshold is the minimum retrieval score.
	SimilarityThreshold float64

	// EmbeddingModel is the embedding model identifier.
	EmbeddingModel string

	// CompletionModel is the completion model identifier.
	CompletionModel string

	// Temperature is the completion sampling temperature.
	Temperature float64

	// RerankingEnabled applies the heuristic rerank pass.
	RerankingEnabled bool
}

// ExperimentResult records one configuration tried in a sweep.
type ExperimentResult struct {
	// ID is the unique experiment identifier.
	ID string

	// Config is the parameter set that was run.
	Config ExperimentConfig

	// Metrics are the evaluation metrics under this config.
	Metrics EvaluationMetrics

	// RunAt is when the experiment ran.
	RunAt time.Time

	// DurationSeconds is the wall time for the experiment.
	DurationSeconds float64
}

// ExperimentComparison ranks recorded experiments against a baseline.
type ExperimentComparison struct {
	// Baseline is the experiment the others are measured against.
	Baseline ExperimentResult

	// Best is the strongest experiment: highest answer accuracy, ties
	// broken by lower average response time. May be the baseline itself.
	Best ExperimentResult

	// Results holds every compared experiment, in the order requested.
	Results []ExperimentResult

	// AccuracyImprovement is Best minus Baseline answer accuracy.
	AccuracyImprovement float64

	// ResponseTimeDeltaMS is Best minus Baseline average response time.
	ResponseTimeDeltaMS float64
}

// SweepReport summarises an ablation sweep over one parameter.
type SweepReport struct {
	// Parameter is the swept parameter.
	Parameter SweepParameter

	// Values are the candidate values, in the order tried.
	Values []int

	// Results holds one ExperimentResult per candidate value.
	Results []ExperimentResult

	// BestValue is the candidate maximising answer accuracy, ties broken
	// by lower average response time, then by order tried.
	BestValue int

	// BestAccuracy is the answer accuracy of the best value.
	BestAccuracy float64
}
